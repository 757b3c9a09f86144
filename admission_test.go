package famulus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAdmitKillSwitch(t *testing.T) {
	cfg := newTestConfig()
	cfg.Master.PipelineEnabled = false
	gate := NewGate(newMockDocStore())

	rejection := gate.Admit(context.Background(), cfg, "subject-1")
	if rejection == nil {
		t.Fatal("expected rejection when pipeline disabled")
	}
	if rejection.Tag != TagPipelineDisabled {
		t.Errorf("expected %s, got %s", TagPipelineDisabled, rejection.Tag)
	}
	if rejection.Message != cfg.Fallback.DisabledResponse {
		t.Errorf("expected fixed disabled response, got %q", rejection.Message)
	}
}

func TestAdmitMaintenanceMode(t *testing.T) {
	cfg := newTestConfig()
	cfg.Master.MaintenanceMode = true
	cfg.Master.MaintenanceAllowlist = []string{"admin-1"}
	gate := NewGate(newMockDocStore())

	rejection := gate.Admit(context.Background(), cfg, "subject-1")
	if rejection == nil || rejection.Tag != TagMaintenanceMode {
		t.Fatalf("expected maintenance rejection, got %+v", rejection)
	}

	// Allow-listed subjects pass through.
	if rejection := gate.Admit(context.Background(), cfg, "admin-1"); rejection != nil {
		t.Errorf("allow-listed subject should be admitted, got %+v", rejection)
	}
}

func TestAdmitRateLimitWindow(t *testing.T) {
	cfg := newTestConfig()
	cfg.Master.MaxRequestsPerMinute = 3
	gate := NewGate(newMockDocStore())

	now := time.Now()
	gate.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if rejection := gate.Admit(context.Background(), cfg, "subject-1"); rejection != nil {
			t.Fatalf("request %d should be admitted, got %+v", i+1, rejection)
		}
	}

	rejection := gate.Admit(context.Background(), cfg, "subject-1")
	if rejection == nil || rejection.Tag != TagRateLimited {
		t.Fatalf("4th request within the window should be rate limited, got %+v", rejection)
	}

	// Other subjects have independent windows.
	if rejection := gate.Admit(context.Background(), cfg, "subject-2"); rejection != nil {
		t.Errorf("different subject should be admitted, got %+v", rejection)
	}

	// Once the window slides past the old requests, the subject is admitted
	// again.
	gate.now = func() time.Time { return now.Add(61 * time.Second) }
	if rejection := gate.Admit(context.Background(), cfg, "subject-1"); rejection != nil {
		t.Errorf("request after window should be admitted, got %+v", rejection)
	}
}

func TestAdmitRateLimitFailsOpen(t *testing.T) {
	cfg := newTestConfig()
	cfg.Master.MaxRequestsPerMinute = 1

	store := newMockDocStore()
	store.getErr = errors.New("store unavailable")
	gate := NewGate(store)

	// An unreachable window document never blocks requests.
	for i := 0; i < 5; i++ {
		if rejection := gate.Admit(context.Background(), cfg, "subject-1"); rejection != nil {
			t.Fatalf("store failure must fail open, got %+v", rejection)
		}
	}
}

func TestAdmitRateLimitWrappedNotFound(t *testing.T) {
	cfg := newTestConfig()
	cfg.Master.MaxRequestsPerMinute = 3

	store := newMockDocStore()
	store.getErr = fmt.Errorf("window lookup: %w", ErrNotFound)
	gate := NewGate(store)

	// A wrapped not-found is a missing window document, not a store failure:
	// the request is admitted and still counted.
	if rejection := gate.Admit(context.Background(), cfg, "subject-1"); rejection != nil {
		t.Fatalf("wrapped not-found must admit, got %+v", rejection)
	}
	if store.setCalls == 0 {
		t.Error("the admitted request must still be recorded in the window")
	}
}

func TestAdmitRateLimitDisabledByZero(t *testing.T) {
	cfg := newTestConfig()
	cfg.Master.MaxRequestsPerMinute = 0
	gate := NewGate(newMockDocStore())

	for i := 0; i < 50; i++ {
		if rejection := gate.Admit(context.Background(), cfg, "subject-1"); rejection != nil {
			t.Fatalf("zero limit disables rate limiting, got %+v", rejection)
		}
	}
}
