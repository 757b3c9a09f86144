package famulus

import (
	"context"
	"fmt"
	"strings"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/zyn"
)

// ContextLayer names one layer of the assembled prompt.
type ContextLayer string

const (
	LayerImmediate ContextLayer = "immediate"
	LayerSummary   ContextLayer = "summary"
	LayerProfile   ContextLayer = "profile"
	LayerEvents    ContextLayer = "events"
)

// Assembled is the bounded prompt produced by context assembly.
type Assembled struct {
	System string
	Window []zyn.Message
	Layers map[ContextLayer]string
	Tokens int
}

// Messages renders the assembled context as the provider call payload.
func (a *Assembled) Messages(userMessage string) []zyn.Message {
	messages := make([]zyn.Message, 0, len(a.Window)+2)
	if a.System != "" {
		messages = append(messages, zyn.Message{Role: "system", Content: a.System})
	}
	messages = append(messages, a.Window...)
	messages = append(messages, zyn.Message{Role: "user", Content: userMessage})
	return messages
}

// sessionSummaryDoc caches a generated summary keyed by how many messages
// it covered, so each threshold crossing generates at most one summary.
type sessionSummaryDoc struct {
	MessageCount int    `json:"messageCount"`
	Summary      string `json:"summary"`
}

// assembler owns the dependencies of the context-assembly stage.
type assembler struct {
	store     DocStore
	memories  MemoryStore
	providers *Registry
}

// assemblyStage builds the four-layer prompt under the global token budget.
// This stage is critical by default: a model call without any context is
// unsafe to send silently.
func (a *assembler) assemblyStage() stageDef {
	return stageDef{
		stage: StageContextAssembly,
		skip:  skipWhenBlocked,
		work: func(ctx context.Context, run *Run) (map[string]any, error) {
			cfg := run.Config.Context

			layers := map[ContextLayer]string{
				LayerSummary: a.sessionSummary(ctx, run),
				LayerProfile: profileLayer(run, cfg.ProfileTokens),
				LayerEvents:  a.eventsLayer(ctx, run),
			}

			window := immediateWindow(run.Input.History, cfg.ImmediateWindow)

			// Per-layer budgets first, then the global budget via the
			// configured trim order.
			layers[LayerSummary] = truncateToTokens(layers[LayerSummary], cfg.SummaryTokens)
			layers[LayerProfile] = truncateToTokens(layers[LayerProfile], cfg.ProfileTokens)
			layers[LayerEvents] = truncateToTokens(layers[LayerEvents], cfg.EventTokens)
			window = trimWindowToTokens(window, cfg.ImmediateTokens)

			total := windowTokens(window)
			for _, text := range layers {
				total += EstimateTokens(text)
			}

			for _, layer := range cfg.TrimOrder {
				if total <= cfg.MaxTokens {
					break
				}
				excess := total - cfg.MaxTokens
				if layer == LayerImmediate {
					before := windowTokens(window)
					window = trimWindowToTokens(window, maxInt(0, before-excess))
					total -= before - windowTokens(window)
					continue
				}
				before := EstimateTokens(layers[layer])
				layers[layer] = truncateToTokens(layers[layer], maxInt(0, before-excess))
				total -= before - EstimateTokens(layers[layer])
			}

			if total > cfg.MaxTokens {
				return nil, fmt.Errorf("context exceeds budget after trimming: %d > %d", total, cfg.MaxTokens)
			}

			run.Assembled = &Assembled{
				System: renderSystem(layers),
				Window: window,
				Layers: layers,
				Tokens: total,
			}

			return map[string]any{
				"tokens":        total,
				"windowSize":    len(window),
				"summaryCached": layers[LayerSummary] != "",
			}, nil
		},
	}
}

// sessionSummary returns the cached or freshly generated session summary.
// Sessions below the message-count threshold have none. Summary generation
// failures degrade to an empty layer rather than failing assembly.
func (a *assembler) sessionSummary(ctx context.Context, run *Run) string {
	sessionID := run.Input.SessionID
	if sessionID == "" || len(run.Input.History) < run.Config.Context.SummaryThreshold {
		return ""
	}

	path := "sessions/" + sessionID + "/summary"
	var cached sessionSummaryDoc
	if err := a.store.Get(ctx, path, &cached); err == nil && cached.MessageCount >= len(run.Input.History) {
		return cached.Summary
	}

	provider, err := a.providers.Resolve(run.Config.Fallback.DefaultProvider)
	if err != nil {
		return cached.Summary
	}

	transform, err := zyn.Transform(
		"Summarize this conversation history into a concise context that preserves key information, decisions made, and important details for continuing the conversation",
		provider,
	)
	if err != nil {
		return cached.Summary
	}

	var history strings.Builder
	for _, msg := range run.Input.History {
		history.WriteString(msg.Role)
		history.WriteString(": ")
		history.WriteString(msg.Content)
		history.WriteString("\n")
	}

	summary, err := transform.FireWithInput(ctx, zyn.NewSession(), zyn.TransformInput{
		Text:  history.String(),
		Style: "Be concise but comprehensive. Preserve factual details and decisions needed to continue the conversation coherently.",
	})
	if err != nil {
		capitan.Error(ctx, StageFailed,
			FieldTraceID.Field(run.TraceID),
			FieldStageName.Field("session_summary"),
			FieldError.Field(err),
		)
		return cached.Summary
	}

	_ = a.store.Set(ctx, path, sessionSummaryDoc{
		MessageCount: len(run.Input.History),
		Summary:      summary,
	})
	return summary
}

// profileLayer renders the subject's profile facts from queried memories
// and the inbound profile hints.
func profileLayer(run *Run, budget int) string {
	var b strings.Builder
	for key, value := range run.Input.Profile {
		fmt.Fprintf(&b, "%s: %s\n", key, value)
	}
	for _, m := range run.Memories {
		if m.Type == MemoryTypePreference || m.Type == MemoryTypeFact {
			b.WriteString("- ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
		if EstimateTokens(b.String()) > budget {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

// eventsLayer renders the upcoming-events lookahead.
func (a *assembler) eventsLayer(ctx context.Context, run *Run) string {
	events, err := a.memories.UpcomingEvents(ctx, run.Input.SubjectID, run.Config.Context.EventLookahead)
	if err != nil || len(events) == 0 {
		return ""
	}

	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "- %s (%s)\n", e.Title, e.StartsAt.Format("Mon Jan 2 15:04"))
	}
	return strings.TrimSpace(b.String())
}

// renderSystem stitches the non-window layers into the system message.
func renderSystem(layers map[ContextLayer]string) string {
	var b strings.Builder
	b.WriteString("You are a personal assistant with long-term memory of the user.")
	if s := layers[LayerSummary]; s != "" {
		b.WriteString("\n\nEarlier in this session:\n")
		b.WriteString(s)
	}
	if p := layers[LayerProfile]; p != "" {
		b.WriteString("\n\nWhat you know about the user:\n")
		b.WriteString(p)
	}
	if e := layers[LayerEvents]; e != "" {
		b.WriteString("\n\nUpcoming events:\n")
		b.WriteString(e)
	}
	return b.String()
}

// immediateWindow keeps the most recent messages of the conversation.
func immediateWindow(history []zyn.Message, size int) []zyn.Message {
	if size <= 0 || len(history) <= size {
		return append([]zyn.Message(nil), history...)
	}
	return append([]zyn.Message(nil), history[len(history)-size:]...)
}

// trimWindowToTokens drops the oldest window messages until under budget.
func trimWindowToTokens(window []zyn.Message, budget int) []zyn.Message {
	for len(window) > 0 && windowTokens(window) > budget {
		window = window[1:]
	}
	return window
}

func windowTokens(window []zyn.Message) int {
	total := 0
	for _, msg := range window {
		total += EstimateTokens(msg.Content)
	}
	return total
}

// truncateToTokens cuts text to approximately the token budget.
func truncateToTokens(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	limit := budget * 4
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
