package main

import (
	"fmt"
	"time"

	"github.com/agentsight/agentsight/internal/flow"
	"github.com/agentsight/agentsight/internal/timeline"
)

func main() {
	scales := []int{100, 1000, 5000, 10000, 50000}

	fmt.Println("=== SCALING BENCHMARK (correlate + reconstruct) ===")
	fmt.Println()

	for _, turns := range scales {
		t := syntheticTranscript(turns)

		iters := 20
		if turns >= 10000 {
			iters = 5
		}

		start := time.Now()
		var events []timeline.Event
		for range iters {
			events = timeline.Correlate(t)
		}
		correlateMs := avgMs(time.Since(start), iters)

		start = time.Now()
		var fl *flow.Flow
		for range iters {
			fl = flow.Reconstruct(events)
		}
		reconstructMs := avgMs(time.Since(start), iters)

		// One full cursor sweep, the access pattern of a replay session.
		start = time.Now()
		for i := range events {
			fl.ActiveEdges(events, i)
		}
		sweepMs := float64(time.Since(start).Microseconds()) / 1000.0

		fmt.Printf("--- %d turns | %d events | %d participants | %d edges ---\n",
			turns, len(events), fl.TotalParticipants, fl.TotalEdges)
		fmt.Printf("  %-22s %7.1f ms\n", "Correlate", correlateMs)
		fmt.Printf("  %-22s %7.1f ms\n", "Reconstruct", reconstructMs)
		fmt.Printf("  %-22s %7.1f ms\n", "ActiveEdges sweep", sweepMs)
		fmt.Println()
	}
}

func avgMs(elapsed time.Duration, iters int) float64 {
	return float64(elapsed.Microseconds()) / float64(iters) / 1000.0
}

// syntheticTranscript builds a steady-state session: one user turn and one
// agent response per turn, a tool call every 3rd response, a handoff every
// 5th, a detection on every 7th message.
func syntheticTranscript(turns int) *timeline.Transcript {
	base := time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)
	agents := []string{"frontdesk", "triage", "billing", "orders", "research", "support"}

	t := &timeline.Transcript{SessionID: fmt.Sprintf("bench-%d", turns)}

	for i := 0; i < turns; i++ {
		ts := base.Add(time.Duration(i) * 5 * time.Second)
		msgID := fmt.Sprintf("m-%07d", i)
		reqID := fmt.Sprintf("req-%07d", i)
		agent := agents[i%len(agents)]

		t.ChatMessages = append(t.ChatMessages, timeline.ChatMessage{
			Role:      timeline.RoleUser,
			Content:   fmt.Sprintf("request %d: look up the order", i),
			Timestamp: ts,
			MessageID: msgID,
			RequestID: reqID,
		})

		resp := timeline.AgentResponse{
			RequestID:    reqID,
			AgentID:      agent,
			OuterAgentID: agents[0],
			Response:     fmt.Sprintf("handled request %d", i),
			Timestamp:    ts.Add(2 * time.Second),
		}
		if i%3 == 0 {
			resp.ToolsUsed = []timeline.ToolUsage{{
				Name:       "orders_db",
				Parameters: map[string]any{"order_id": i},
				Result:     "ok",
			}}
		}
		if i%5 == 0 && i > 0 {
			resp.Handoff = &timeline.Handoff{
				FromAgentID: agents[(i-1)%len(agents)],
				ToAgentID:   agent,
				Reason:      "routing",
				HandoffType: "delegate",
			}
		}
		t.AgentResponses = append(t.AgentResponses, resp)

		if i%7 == 0 {
			t.Detections = append(t.Detections, timeline.Detection{
				ID:            fmt.Sprintf("d-%07d", i),
				Severity:      "high",
				DetectionType: "prompt_injection",
				Matches:       []string{"ignore previous"},
				MessageID:     msgID,
			})
		}
	}
	return t
}
