// Package sym defines the glyphs Modelry uses to mark CLI output and
// log lines. Each subsystem gets one stable glyph so humans can scan
// terminal output by shape.
package sym

// Subsystem glyphs.
const (
	DB     = "⊔" // database and storage layer
	Canvas = "⌗" // canvas workspaces and diagrams
	Rule   = "⊨" // design rule evaluation
	Impact = "⋈" // impact analysis and traversal
	Server = "⟐" // HTTP/WebSocket server
	Config = "≡" // configuration management
	Audit  = "✦" // audit trail entries
)

// RAG status glyphs for design-rule verdicts.
const (
	Red   = "●R"
	Amber = "●A"
	Green = "●G"
)

// ForRAG returns the status glyph for a RAG color label. Unknown labels
// get an empty string so callers can print them bare.
func ForRAG(color string) string {
	switch color {
	case "Red":
		return Red
	case "Amber":
		return Amber
	case "Green":
		return Green
	default:
		return ""
	}
}
