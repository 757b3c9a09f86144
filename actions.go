package famulus

import "fmt"

// ActionKind tags the closed set of client-facing UI actions.
type ActionKind string

const (
	ActionTimeline          ActionKind = "RenderTimeline"
	ActionSelectionGrid     ActionKind = "RenderSelectionGrid"
	ActionRelationshipGraph ActionKind = "RenderRelationshipGraph"
	ActionMemoryCard        ActionKind = "RenderMemoryCard"
	ActionConflictResolver  ActionKind = "RenderConflictResolver"
	ActionQuickReplies      ActionKind = "RenderQuickReplies"
	ActionToast             ActionKind = "ShowToast"
)

// conflictPriorityBase offsets conflict-resolver priorities past any
// memory-card priorities, which use their array index.
const conflictPriorityBase = 100

// ActionMeta carries rendering hints shared by every action kind.
type ActionMeta struct {
	Priority         int  `json:"priority"`
	Dismissable      bool `json:"dismissable"`
	RequiresResponse bool `json:"requiresResponse"`
}

// Action is one instruction describing a UI affordance the client should
// render. Actions are ephemeral: constructed fresh per run, ordered by the
// builder's priority convention, never persisted.
type Action struct {
	Tool   ActionKind     `json:"tool"`
	ID     string         `json:"id"`
	Params map[string]any `json:"params"`
	Meta   ActionMeta     `json:"meta"`
}

// BuildActions merges stage outputs into the ordered client action list.
// It is a pure function of the run: timeline, then selection grid, then
// relationship graph, then one memory card per held candidate, then
// conflict resolvers, then quick replies (suppressed while holding), then
// a success toast when memories were persisted (also suppressed while
// holding). Returns nil when empty, never an empty slice, so clients can
// treat action presence as a boolean.
func BuildActions(run *Run) []Action {
	var actions []Action

	if run.Timeline != nil {
		actions = append(actions, Action{
			Tool: ActionTimeline,
			ID:   "timeline",
			Params: map[string]any{
				"title":   run.Timeline.Title,
				"entries": run.Timeline.Entries,
			},
			Meta: ActionMeta{Dismissable: true},
		})
	}

	if run.Intent != nil && run.Intent.Bucket == BucketMemoryRecall && len(run.Memories) > 1 {
		actions = append(actions, Action{
			Tool: ActionSelectionGrid,
			ID:   "memory-grid",
			Params: map[string]any{
				"memories": run.Memories,
			},
			Meta: ActionMeta{Dismissable: true},
		})
	}

	if graph := relationshipGraph(run.Memories); graph != nil {
		actions = append(actions, Action{
			Tool:   ActionRelationshipGraph,
			ID:     "memory-graph",
			Params: graph,
			Meta:   ActionMeta{Dismissable: true},
		})
	}

	for i, card := range run.PendingCards {
		actions = append(actions, Action{
			Tool: ActionMemoryCard,
			ID:   card.TempID,
			Params: map[string]any{
				"type":          card.Type,
				"content":       card.Content,
				"missingFields": card.MissingFields,
				"icon":          card.Icon,
				"color":         card.Color,
			},
			Meta: ActionMeta{Priority: i, RequiresResponse: true},
		})
	}

	for i, conflict := range run.Conflicts {
		actions = append(actions, Action{
			Tool: ActionConflictResolver,
			ID:   fmt.Sprintf("conflict-%d", i),
			Params: map[string]any{
				"newContent":       conflict.Candidate.Content,
				"existingContent":  conflict.ExistingContent,
				"existingMemoryId": conflict.ExistingMemoryID,
			},
			Meta: ActionMeta{Priority: conflictPriorityBase + i, RequiresResponse: true},
		})
	}

	if !run.Holding && len(run.QuickReplies) > 0 {
		actions = append(actions, Action{
			Tool: ActionQuickReplies,
			ID:   "quick-replies",
			Params: map[string]any{
				"replies": run.QuickReplies,
			},
			Meta: ActionMeta{Dismissable: true},
		})
	}

	if !run.Holding && len(run.Saved) > 0 {
		actions = append(actions, Action{
			Tool: ActionToast,
			ID:   "saved-toast",
			Params: map[string]any{
				"message": fmt.Sprintf("Saved %d %s", len(run.Saved), plural("memory", "memories", len(run.Saved))),
				"level":   "success",
			},
			Meta: ActionMeta{Dismissable: true},
		})
	}

	if len(actions) == 0 {
		return nil
	}
	return actions
}

// relationshipGraph links memories that share a type. Only worth rendering
// when at least one pair relates.
func relationshipGraph(memories []StoredMemory) map[string]any {
	byType := make(map[string][]string)
	for _, m := range memories {
		byType[m.Type] = append(byType[m.Type], m.ID)
	}

	var edges [][2]string
	for _, ids := range byType {
		for i := 1; i < len(ids); i++ {
			edges = append(edges, [2]string{ids[0], ids[i]})
		}
	}
	if len(edges) == 0 {
		return nil
	}
	return map[string]any{"edges": edges}
}

func plural(singular, pluralForm string, n int) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}
