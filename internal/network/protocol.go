// Package network defines the anchor wire messages and their JSON codec
package network

import (
	"encoding/json"
	"fmt"
	"math"
)

// Schema selects which inbound document layout is accepted
type Schema string

const (
	// SchemaAuto accepts either layout, preferring the flat one when both keys appear
	SchemaAuto Schema = "auto"
	// SchemaFlat is {"transformedAnchors":[...]}
	SchemaFlat Schema = "flat"
	// SchemaSplit is {"transformedSkeletonAnchors":[...],"transformedArcuoAnchors":[...]}
	SchemaSplit Schema = "split"
)

// Wire keys
const (
	KeyListOfAnchors      = "listOfAnchors"
	KeyTransformedAnchors = "transformedAnchors"
	KeySkeletonAnchors    = "transformedSkeletonAnchors"
	KeyMarkerAnchors      = "transformedArcuoAnchors"
)

// ParseSchema validates a schema name from flags or profiles
func ParseSchema(s string) (Schema, error) {
	switch Schema(s) {
	case SchemaAuto, SchemaFlat, SchemaSplit:
		return Schema(s), nil
	case "":
		return SchemaAuto, nil
	default:
		return "", fmt.Errorf("unknown inbound schema %q", s)
	}
}

// Vector3 is a position in the receiver's world space
type Vector3 struct {
	X float64 `json:"x" jsonschema:"required"`
	Y float64 `json:"y" jsonschema:"required"`
	Z float64 `json:"z" jsonschema:"required"`
}

// Add returns v+o
func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v-o
func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Len returns the euclidean length of v
func (v Vector3) Len() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// String formats v like "(1.00, 0.00, 1.00)"
func (v Vector3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}

// Anchor is one locally tracked point in an outbound snapshot
type Anchor struct {
	ID       int     `json:"id" jsonschema:"required"`
	Position Vector3 `json:"position" jsonschema:"required"`
}

// OutboundMessage is the snapshot the server sends every send interval
type OutboundMessage struct {
	Anchors []Anchor `json:"listOfAnchors" jsonschema:"required"`
}

// TransformedAnchor is a point after the tracking client applied its transform
type TransformedAnchor struct {
	AnchorID    int     `json:"anchor_id" jsonschema:"required"`
	Original    Vector3 `json:"original_position"`
	Transformed Vector3 `json:"transformed_position" jsonschema:"required"`
}

// FlatDocument is the wire form of a flat inbound message
type FlatDocument struct {
	TransformedAnchors []TransformedAnchor `json:"transformedAnchors" jsonschema:"required"`
}

// SplitDocument is the wire form of a split inbound message
type SplitDocument struct {
	SkeletonAnchors []TransformedAnchor `json:"transformedSkeletonAnchors"`
	MarkerAnchors   []TransformedAnchor `json:"transformedArcuoAnchors"`
}

// InboundMessage is one decoded document from the tracking client.
// Flat messages fill Anchors; split messages fill SkeletonAnchors and MarkerAnchors.
type InboundMessage struct {
	Schema          Schema
	Anchors         []TransformedAnchor
	SkeletonAnchors []TransformedAnchor
	MarkerAnchors   []TransformedAnchor
}

// Markers returns the anchors that drive marker tracking
func (m InboundMessage) Markers() []TransformedAnchor {
	if m.Schema == SchemaSplit {
		return m.MarkerAnchors
	}
	return m.Anchors
}

// Body returns the anchors that drive body/skeleton positions
func (m InboundMessage) Body() []TransformedAnchor {
	if m.Schema == SchemaSplit {
		return m.SkeletonAnchors
	}
	return m.Anchors
}

// Len returns the total number of anchors carried
func (m InboundMessage) Len() int {
	return len(m.Anchors) + len(m.SkeletonAnchors) + len(m.MarkerAnchors)
}

// DecodeError reports a frame that could not be turned into a message
type DecodeError struct {
	Reason string
	Size   int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %d bytes: %s: %v", e.Size, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %d bytes: %s", e.Size, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// EncodeOutbound serializes a snapshot; a nil list encodes as []
func EncodeOutbound(m OutboundMessage) ([]byte, error) {
	m.Anchors = orEmpty(m.Anchors)
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode outbound message: %w", err)
	}
	return data, nil
}

// EncodeInbound serializes an inbound message in its own layout
func EncodeInbound(m InboundMessage) ([]byte, error) {
	var doc interface{}
	switch m.Schema {
	case SchemaSplit:
		doc = SplitDocument{
			SkeletonAnchors: orEmpty(m.SkeletonAnchors),
			MarkerAnchors:   orEmpty(m.MarkerAnchors),
		}
	case SchemaFlat, SchemaAuto, "":
		doc = FlatDocument{TransformedAnchors: orEmpty(m.Anchors)}
	default:
		return nil, fmt.Errorf("failed to encode inbound message: unknown schema %q", m.Schema)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inbound message: %w", err)
	}
	return data, nil
}

type rawVector struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

func (r *rawVector) vector() (Vector3, bool) {
	if r == nil || r.X == nil || r.Y == nil || r.Z == nil {
		return Vector3{}, false
	}
	return Vector3{X: *r.X, Y: *r.Y, Z: *r.Z}, true
}

type rawTransformedAnchor struct {
	AnchorID    *int       `json:"anchor_id"`
	Original    *rawVector `json:"original_position"`
	Transformed *rawVector `json:"transformed_position"`
}

type rawAnchor struct {
	ID       *int       `json:"id"`
	Position *rawVector `json:"position"`
}

// DecodeInbound parses one inbound document. Unknown keys are ignored;
// malformed JSON or missing required fields return a *DecodeError.
func DecodeInbound(data []byte, schema Schema) (InboundMessage, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return InboundMessage{}, err
	}

	_, hasFlat := fields[KeyTransformedAnchors]
	_, hasSkeleton := fields[KeySkeletonAnchors]
	_, hasMarkers := fields[KeyMarkerAnchors]
	hasSplit := hasSkeleton || hasMarkers

	layout := schema
	if layout == SchemaAuto || layout == "" {
		switch {
		case hasFlat:
			layout = SchemaFlat
		case hasSplit:
			layout = SchemaSplit
		default:
			return InboundMessage{}, &DecodeError{Reason: "no anchor list present", Size: len(data)}
		}
	}

	msg := InboundMessage{Schema: layout}
	switch layout {
	case SchemaFlat:
		if !hasFlat {
			return InboundMessage{}, &DecodeError{Reason: "missing " + KeyTransformedAnchors, Size: len(data)}
		}
		if msg.Anchors, err = decodeTransformedList(fields[KeyTransformedAnchors], KeyTransformedAnchors, len(data)); err != nil {
			return InboundMessage{}, err
		}
	case SchemaSplit:
		if !hasSplit {
			return InboundMessage{}, &DecodeError{Reason: "missing " + KeySkeletonAnchors + " and " + KeyMarkerAnchors, Size: len(data)}
		}
		if msg.SkeletonAnchors, err = decodeTransformedList(fields[KeySkeletonAnchors], KeySkeletonAnchors, len(data)); err != nil {
			return InboundMessage{}, err
		}
		if msg.MarkerAnchors, err = decodeTransformedList(fields[KeyMarkerAnchors], KeyMarkerAnchors, len(data)); err != nil {
			return InboundMessage{}, err
		}
	default:
		return InboundMessage{}, &DecodeError{Reason: fmt.Sprintf("unknown schema %q", schema), Size: len(data)}
	}
	return msg, nil
}

// DecodeOutbound parses a snapshot; used by the tracking client
func DecodeOutbound(data []byte) (OutboundMessage, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return OutboundMessage{}, err
	}
	raw, ok := fields[KeyListOfAnchors]
	if !ok {
		return OutboundMessage{}, &DecodeError{Reason: "missing " + KeyListOfAnchors, Size: len(data)}
	}

	var items []rawAnchor
	if err := json.Unmarshal(raw, &items); err != nil {
		return OutboundMessage{}, &DecodeError{Reason: KeyListOfAnchors + " is not a list of anchors", Size: len(data), Err: err}
	}

	var msg OutboundMessage
	for i, item := range items {
		pos, ok := item.Position.vector()
		if item.ID == nil || !ok {
			return OutboundMessage{}, &DecodeError{Reason: fmt.Sprintf("%s[%d]: id and position are required", KeyListOfAnchors, i), Size: len(data)}
		}
		msg.Anchors = append(msg.Anchors, Anchor{ID: *item.ID, Position: pos})
	}
	return msg, nil
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodeError{Reason: "invalid JSON object", Size: len(data), Err: err}
	}
	if fields == nil {
		return nil, &DecodeError{Reason: "document is null", Size: len(data)}
	}
	return fields, nil
}

func decodeTransformedList(raw json.RawMessage, key string, size int) ([]TransformedAnchor, error) {
	if raw == nil {
		return nil, nil
	}
	var items []rawTransformedAnchor
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &DecodeError{Reason: key + " is not a list of transformed anchors", Size: size, Err: err}
	}

	var out []TransformedAnchor
	for i, item := range items {
		transformed, ok := item.Transformed.vector()
		if item.AnchorID == nil || !ok {
			return nil, &DecodeError{Reason: fmt.Sprintf("%s[%d]: anchor_id and transformed_position are required", key, i), Size: size}
		}
		original, _ := item.Original.vector()
		out = append(out, TransformedAnchor{
			AnchorID:    *item.AnchorID,
			Original:    original,
			Transformed: transformed,
		})
	}
	return out, nil
}
