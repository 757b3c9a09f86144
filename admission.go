package famulus

import (
	"context"
	"errors"
	"time"

	"github.com/zoobzio/capitan"
)

// Machine-readable rejection tags returned alongside the fixed user-facing
// strings when the admission gate stops a request.
const (
	TagPipelineDisabled = "PIPELINE_DISABLED"
	TagMaintenanceMode  = "MAINTENANCE_MODE"
	TagRateLimited      = "RATE_LIMITED"
)

// rateWindow is the sliding-window width of the rate limiter.
const rateWindow = 60 * time.Second

// Rejection describes why the admission gate refused a request.
type Rejection struct {
	Tag     string
	Message string
}

// Gate performs the pre-stage admission checks: master kill switch,
// maintenance mode with allow-list, and the per-subject sliding-window
// rate limit.
type Gate struct {
	store DocStore
	now   func() time.Time
}

// NewGate creates the admission gate.
func NewGate(store DocStore) *Gate {
	return &Gate{store: store, now: time.Now}
}

// rateDoc is the stored per-subject request window.
type rateDoc struct {
	SubjectID  string      `json:"subjectId"`
	Timestamps []time.Time `json:"timestamps"`
}

// Admit runs the admission checks in order and returns nil when the request
// may proceed to the stage sequence.
func (g *Gate) Admit(ctx context.Context, cfg *Config, subjectID string) *Rejection {
	if !cfg.Master.PipelineEnabled {
		g.emitRejected(ctx, subjectID, TagPipelineDisabled)
		return &Rejection{Tag: TagPipelineDisabled, Message: cfg.Fallback.DisabledResponse}
	}

	if cfg.Master.MaintenanceMode && !contains(cfg.Master.MaintenanceAllowlist, subjectID) {
		g.emitRejected(ctx, subjectID, TagMaintenanceMode)
		return &Rejection{Tag: TagMaintenanceMode, Message: cfg.Fallback.MaintenanceResponse}
	}

	if g.overLimit(ctx, subjectID, cfg.Master.MaxRequestsPerMinute) {
		g.emitRejected(ctx, subjectID, TagRateLimited)
		return &Rejection{Tag: TagRateLimited, Message: cfg.Fallback.RateLimitResponse}
	}

	return nil
}

// overLimit applies the sliding-window check. A store failure fails open:
// availability is prioritized over strict limiting, so an unreachable
// window document never blocks a request.
func (g *Gate) overLimit(ctx context.Context, subjectID string, maxPerMinute int) bool {
	if maxPerMinute <= 0 || g.store == nil {
		return false
	}

	path := "ratelimit/" + subjectID
	now := g.now()

	var doc rateDoc
	if err := g.store.Get(ctx, path, &doc); err != nil && !errors.Is(err, ErrNotFound) {
		return false
	}

	kept := doc.Timestamps[:0]
	for _, ts := range doc.Timestamps {
		if now.Sub(ts) < rateWindow {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= maxPerMinute {
		return true
	}

	doc.SubjectID = subjectID
	doc.Timestamps = append(kept, now)
	// Persist failure is swallowed: same fail-open posture as the read.
	_ = g.store.Set(ctx, path, doc)

	return false
}

func (g *Gate) emitRejected(ctx context.Context, subjectID, tag string) {
	capitan.Emit(ctx, PipelineRejected,
		FieldSubjectID.Field(subjectID),
		FieldReason.Field(tag),
	)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
