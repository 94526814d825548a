// Package replay renders correlated session timelines for the terminal.
// It offers a static transcript dump suitable for piping, and an
// interactive stepper that walks the timeline event by event while
// showing which communication edges are live at the current position.
package replay

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/reflow/wordwrap"

	"github.com/agentsight/agentsight/internal/flow"
	"github.com/agentsight/agentsight/internal/session"
	"github.com/agentsight/agentsight/internal/timeline"
)

const (
	rowTimeLayout = "15:04:05.000"
	summaryWidth  = 60
	wrapWidth     = 76
	boxWidth      = 60

	// detailPrefix aligns continuation lines under the label column.
	detailPrefix = "     │              │   "
)

// Renderer writes a timeline as plain text. Output carries no ANSI
// escapes so it can be piped or archived as-is.
type Renderer struct {
	out     io.Writer
	verbose bool
}

// NewRenderer returns a Renderer writing to out. With verbose set it
// prints full message content, tool parameters and detection matches
// instead of one-line summaries.
func NewRenderer(out io.Writer, verbose bool) *Renderer {
	return &Renderer{out: out, verbose: verbose}
}

// Render prints the session header followed by one numbered row per
// event. rec may be nil when no stored metadata is available.
func (r *Renderer) Render(rec *session.Record, events []timeline.Event) {
	r.renderHeader(rec, events)
	for i := range events {
		r.renderEvent(i, &events[i])
	}
}

func (r *Renderer) renderHeader(rec *session.Record, events []timeline.Event) {
	line := strings.Repeat("═", boxWidth)
	row := func(text string) {
		fmt.Fprintf(r.out, "║  %-*s║\n", boxWidth-2, shorten(text, boxWidth-2))
	}

	fmt.Fprintf(r.out, "╔%s╗\n", line)
	row("SESSION REPLAY")
	if rec != nil {
		row("Session:  " + rec.ID)
		if rec.Label != "" {
			row("Label:    " + rec.Label)
		}
		if rec.Source != "" {
			row("Source:   " + rec.Source)
		}
		if !rec.ImportedAt.IsZero() {
			row("Imported: " + rec.ImportedAt.Format("2006-01-02 15:04:05"))
		}
	}
	row(fmt.Sprintf("Events: %d   Violations: %d", len(events), countViolations(events)))
	fmt.Fprintf(r.out, "╚%s╝\n\n", line)
}

func (r *Renderer) renderEvent(i int, ev *timeline.Event) {
	fmt.Fprintf(r.out, "%4d │ %s │ %s\n", i+1, ev.Timestamp.Format(rowTimeLayout), summaryLabel(ev))

	for di := range ev.Detections {
		d := &ev.Detections[di]
		fmt.Fprintf(r.out, "%s⚠ [%s] %s (%s)\n", detailPrefix, d.Severity, d.DetectionType, d.ID)
	}
	if r.verbose {
		r.renderDetail(ev)
	}
}

// renderDetail prints the variant payload the one-line summary elides.
func (r *Renderer) renderDetail(ev *timeline.Event) {
	switch ev.Type {
	case timeline.EventUserMessage, timeline.EventAgentResponse:
		if ev.Content != "" {
			r.printIndented(wordwrap.String(ev.Content, wrapWidth))
		}
	case timeline.EventHandoff:
		if ev.Details != nil && ev.Details.Reason != "" {
			r.printIndented(wordwrap.String("reason: "+ev.Details.Reason, wrapWidth))
		}
	case timeline.EventToolCall:
		if ev.Details == nil {
			return
		}
		for key, val := range ev.Details.Parameters {
			r.printIndented(fmt.Sprintf("%s = %v", key, val))
		}
		if ev.Details.Result != "" {
			r.printIndented(wordwrap.String("result: "+ev.Details.Result, wrapWidth))
		}
	case timeline.EventViolation:
		if ev.Details != nil && len(ev.Details.Matches) > 0 {
			r.printIndented("matches: " + strings.Join(ev.Details.Matches, ", "))
		}
		if ev.Content != "" {
			r.printIndented(wordwrap.String("context: "+ev.Content, wrapWidth))
		}
	}
}

func (r *Renderer) printIndented(text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(r.out, "%s%s\n", detailPrefix, line)
	}
}

// RenderFlow prints the reconstructed communication graph: participants
// in first-appearance order, then edges with their occurrence counts.
func (r *Renderer) RenderFlow(f *flow.Flow) {
	fmt.Fprintf(r.out, "FLOW  %d participants · %d edges\n", f.TotalParticipants, f.TotalEdges)
	fmt.Fprintln(r.out, strings.Repeat("─", boxWidth))

	for _, p := range f.SortedParticipants() {
		fmt.Fprintf(r.out, "  %s %s (%s)\n", roleGlyph(p.Role), p.DisplayName, roleLabel(p.Role))
	}
	if f.PrimaryAgent != "" {
		fmt.Fprintf(r.out, "  primary: %s\n", displayName(f, f.PrimaryAgent))
	}
	fmt.Fprintln(r.out)

	for _, e := range f.Edges {
		fmt.Fprintf(r.out, "  %s  ×%d\n", EdgeLabel(f, e), len(e.Occurrences))
	}
}

// EdgeLabel renders one edge as "from → to" for directional edges and
// "from ⇄ to" for bidirectional ones, using participant display names.
// From/To keep the first-seen orientation, so the initiator reads first.
func EdgeLabel(f *flow.Flow, e *flow.Edge) string {
	arrow := "⇄"
	if e.Directional {
		arrow = "→"
	}
	return fmt.Sprintf("%s %s %s", displayName(f, e.From), arrow, displayName(f, e.To))
}

func displayName(f *flow.Flow, key string) string {
	if p, ok := f.Participants[key]; ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return key
}

// summaryLabel is the one-line row body shared by the static renderer
// and the interactive stepper.
func summaryLabel(ev *timeline.Event) string {
	switch ev.Type {
	case timeline.EventUserMessage:
		return "👤 USER: " + shorten(firstLine(ev.Content), summaryWidth)
	case timeline.EventAgentResponse:
		return fmt.Sprintf("🤖 %s: %s", ev.Agent, shorten(firstLine(ev.Content), summaryWidth))
	case timeline.EventHandoff:
		label := fmt.Sprintf("🤝 HANDOFF: %s → %s", ev.Agent, handoffTarget(ev))
		if ev.Details != nil && ev.Details.HandoffType != "" {
			label += " (" + ev.Details.HandoffType + ")"
		}
		return label
	case timeline.EventToolCall:
		name := "?"
		if ev.Details != nil && ev.Details.ToolName != "" {
			name = ev.Details.ToolName
		}
		return fmt.Sprintf("🔧 TOOL: %s ← %s", name, ev.Agent)
	case timeline.EventViolation:
		sev, dtype := "?", "?"
		if ev.Details != nil {
			sev, dtype = ev.Details.Severity, ev.Details.DetectionType
		}
		return fmt.Sprintf("🚨 VIOLATION [%s]: %s", sev, dtype)
	default:
		return string(ev.Type)
	}
}

func handoffTarget(ev *timeline.Event) string {
	if ev.Details != nil && ev.Details.ToAgentID != "" {
		return ev.Details.ToAgentID
	}
	return "?"
}

func countViolations(events []timeline.Event) int {
	n := 0
	for i := range events {
		if events[i].Type == timeline.EventViolation {
			n++
		}
	}
	return n
}

func roleGlyph(role flow.Role) string {
	switch role {
	case flow.RoleUser:
		return "👤"
	case flow.RoleTool:
		return "🔧"
	default:
		return "🤖"
	}
}

func roleLabel(role flow.Role) string {
	switch role {
	case flow.RoleUser:
		return "user"
	case flow.RoleOuterAgent:
		return "outer agent"
	case flow.RoleActualAgent:
		return "agent"
	case flow.RoleTool:
		return "tool"
	default:
		return string(role)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
