package network

import (
	"github.com/invopop/jsonschema"
)

// Schemas returns JSON Schema documents for every wire message, keyed by file stem
func Schemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}

	outbound := reflector.Reflect(&OutboundMessage{})
	outbound.Title = "Outbound anchor snapshot"
	outbound.Description = "Positions of locally tracked points, sent by the server every send interval."

	flat := reflector.Reflect(&FlatDocument{})
	flat.Title = "Inbound transformed anchors (flat)"
	flat.Description = "Positions computed by the tracking client, one list."

	split := reflector.Reflect(&SplitDocument{})
	split.Title = "Inbound transformed anchors (split)"
	split.Description = "Skeleton anchors and fiducial marker anchors in separate lists."

	return map[string]*jsonschema.Schema{
		"outbound":      outbound,
		"inbound-flat":  flat,
		"inbound-split": split,
	}
}
