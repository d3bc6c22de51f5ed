package client

import (
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/stestefe/reality-warpers/internal/network"
)

// Display prints the simulator's progress in colour
type Display struct {
	out          io.Writer
	serverColor  *color.Color
	connectColor *color.Color
	anchorColor  *color.Color
	markerColor  *color.Color
	statsColor   *color.Color
	errorColor   *color.Color
	warningColor *color.Color
	infoColor    *color.Color
}

// NewDisplay creates a display writing to out
func NewDisplay(out io.Writer) *Display {
	if out == nil {
		out = color.Output
	}
	return &Display{
		out:          out,
		serverColor:  color.New(color.FgCyan, color.Bold),
		connectColor: color.New(color.FgGreen, color.Bold),
		anchorColor:  color.New(color.FgYellow),
		markerColor:  color.New(color.FgMagenta),
		statsColor:   color.New(color.FgGreen),
		errorColor:   color.New(color.FgRed, color.Bold),
		warningColor: color.New(color.FgYellow),
		infoColor:    color.New(color.FgWhite),
	}
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}

// PrintBanner displays the simulator banner
func (d *Display) PrintBanner() {
	banner := `
╔═══════════════════════════════════════╗
║       REALITY WARPERS TRACKER SIM     ║
║        anchors in, anchors out        ║
╚═══════════════════════════════════════╝
`
	d.serverColor.Fprintln(d.out, banner)
}

// PrintServerStatus displays server connection status
func (d *Display) PrintServerStatus(message string) {
	d.serverColor.Fprintf(d.out, "[%s] [SERVER] %s\n", timestamp(), message)
}

// PrintConnection displays a successful connection
func (d *Display) PrintConnection(addr string, framing network.Framing, schema network.Schema) {
	d.connectColor.Fprintf(d.out, "[%s] [CONNECTED] %s (framing: %s, schema: %s)\n", timestamp(), addr, framing, schema)
}

// PrintSnapshot displays an outbound snapshot received from the server
func (d *Display) PrintSnapshot(msg network.OutboundMessage) {
	d.anchorColor.Fprintf(d.out, "[%s] [ANCHORS] %d received\n", timestamp(), len(msg.Anchors))
	for _, a := range msg.Anchors {
		d.anchorColor.Fprintf(d.out, "    #%d at %s\n", a.ID, a.Position)
	}
}

// PrintReply displays a transformed message sent back
func (d *Display) PrintReply(msg network.InboundMessage) {
	switch msg.Schema {
	case network.SchemaSplit:
		d.markerColor.Fprintf(d.out, "[%s] [REPLY] %d skeleton, %d markers\n",
			timestamp(), len(msg.SkeletonAnchors), len(msg.MarkerAnchors))
	default:
		d.markerColor.Fprintf(d.out, "[%s] [REPLY] %d anchors\n", timestamp(), len(msg.Anchors))
	}
}

// PrintStats displays session totals
func (d *Display) PrintStats(s Stats) {
	d.statsColor.Fprintf(d.out, "[%s] [STATS] %d snapshots in (%s), %d replies out (%s)\n",
		timestamp(), s.Snapshots, humanize.Bytes(s.BytesIn), s.Replies, humanize.Bytes(s.BytesOut))
}

// PrintError displays error messages
func (d *Display) PrintError(message string) {
	d.errorColor.Fprintf(d.out, "[ERROR] %s\n", message)
}

// PrintWarning displays warning messages
func (d *Display) PrintWarning(message string) {
	d.warningColor.Fprintf(d.out, "[WARNING] %s\n", message)
}

// PrintInfo displays informational messages
func (d *Display) PrintInfo(message string) {
	d.infoColor.Fprintf(d.out, "[INFO] %s\n", message)
}

// PrintSeparator prints a visual separator
func (d *Display) PrintSeparator() {
	d.infoColor.Fprintln(d.out, "═══════════════════════════════════════════════════════════════")
}
