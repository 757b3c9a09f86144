package famulus

import (
	"context"
	"time"
)

// Config is the orchestrator configuration for a single pipeline run. It is
// fetched from the document store once at the start of each run and treated
// as an immutable snapshot from then on: the stored document may change
// between runs (hot reload) but never within one.
type Config struct {
	Master        MasterConfig        `json:"master"`
	Stages        map[Stage]bool      `json:"stages"`
	Execution     ExecutionConfig     `json:"execution"`
	ErrorHandling ErrorHandlingConfig `json:"errorHandling"`
	Performance   PerformanceConfig   `json:"performance"`
	Fallback      FallbackConfig      `json:"fallback"`
	Notifications NotificationConfig  `json:"notifications"`
	Context       ContextConfig       `json:"context"`
	Intent        IntentConfig        `json:"intent"`
	Conflict      ConflictConfig      `json:"conflict"`
	Debug         DebugConfig         `json:"debug"`
}

// MasterConfig holds the kill switch, maintenance mode, and rate limit.
type MasterConfig struct {
	PipelineEnabled      bool     `json:"pipelineEnabled"`
	MaintenanceMode      bool     `json:"maintenanceMode"`
	MaintenanceAllowlist []string `json:"maintenanceAllowlist"`
	MaxRequestsPerMinute int      `json:"maxRequestsPerMinute"`
}

// ExecutionConfig controls failure propagation and forced stages.
type ExecutionConfig struct {
	StopOnFirstError bool `json:"stopOnFirstError"`
	// Required stages run even when disabled in Stages.
	Required []Stage `json:"required"`
}

// ErrorHandlingConfig controls the retry policy and criticality.
type ErrorHandlingConfig struct {
	MaxRetries      int           `json:"maxRetries"`
	RetryDelay      time.Duration `json:"retryDelayMs"`
	CriticalStages  []Stage       `json:"criticalStages"`
	FallbackMessage string        `json:"fallbackMessage"`
}

// PerformanceConfig holds the timeout classes.
type PerformanceConfig struct {
	GlobalTimeout time.Duration `json:"globalTimeoutMs"`
	StageTimeout  time.Duration `json:"stageTimeoutMs"`
	LLMTimeout    time.Duration `json:"llmTimeoutMs"`
}

// AttemptTimeout returns the per-attempt budget for a stage. The response
// stage gets the longer class: room for a primary call, a fallback call,
// and the non-LLM work around them.
func (p PerformanceConfig) AttemptTimeout(s Stage) time.Duration {
	if s == StageResponse {
		return 2*p.LLMTimeout + p.StageTimeout
	}
	return p.StageTimeout
}

// FallbackConfig names providers and the fixed user-facing strings.
type FallbackConfig struct {
	DefaultProvider     string `json:"defaultProvider"`
	DefaultModel        string `json:"defaultModel"`
	FallbackProvider    string `json:"fallbackProvider"`
	FallbackModel       string `json:"fallbackModel"`
	UseFallbackOnError  bool   `json:"useFallbackOnError"`
	ErrorResponse       string `json:"errorResponse"`
	DisabledResponse    string `json:"disabledResponse"`
	MaintenanceResponse string `json:"maintenanceResponse"`
	RateLimitResponse   string `json:"rateLimitResponse"`
}

// NotificationConfig holds alerting thresholds checked by the post-response
// logger.
type NotificationConfig struct {
	SlowResponse       time.Duration `json:"slowResponseMs"`
	ErrorRateThreshold float64       `json:"errorRateThreshold"`
}

// ContextConfig bounds the assembled prompt.
type ContextConfig struct {
	MaxTokens        int `json:"maxTokens"`
	ImmediateTokens  int `json:"immediateTokens"`
	SummaryTokens    int `json:"summaryTokens"`
	ProfileTokens    int `json:"profileTokens"`
	EventTokens      int `json:"eventTokens"`
	ImmediateWindow  int `json:"immediateWindow"`
	SummaryThreshold int `json:"summaryThreshold"`
	EventLookahead   time.Duration `json:"eventLookaheadMs"`
	// TrimOrder lists layers from first-trimmed to last-trimmed.
	TrimOrder []ContextLayer `json:"trimOrder"`
}

// IntentConfig tunes the keyword classifier.
type IntentConfig struct {
	BaseScore     float64             `json:"baseScore"`
	Multiplier    float64             `json:"multiplier"`
	ScoreCap      float64             `json:"scoreCap"`
	MinConfidence float64             `json:"minConfidence"`
	DefaultBucket string              `json:"defaultBucket"`
	Keywords      map[string][]string `json:"keywords,omitempty"`
}

// ConflictConfig tunes the conflict check.
type ConflictConfig struct {
	CompareLimit  int  `json:"compareLimit"`
	DropDuplicate bool `json:"dropDuplicate"`
}

// DebugConfig gates stage detail in responses.
type DebugConfig struct {
	Enabled  bool     `json:"enabled"`
	Subjects []string `json:"subjects"`
}

// ConfigPath is the document store path of the pipeline configuration.
const ConfigPath = "config/pipeline"

// DefaultConfig returns the configuration used when no document is stored or
// the store is unreachable. The pipeline prefers running with defaults over
// refusing requests.
func DefaultConfig() *Config {
	return &Config{
		Master: MasterConfig{
			PipelineEnabled:      true,
			MaxRequestsPerMinute: 20,
		},
		Stages: map[Stage]bool{},
		Execution: ExecutionConfig{
			StopOnFirstError: false,
		},
		ErrorHandling: ErrorHandlingConfig{
			MaxRetries:      1,
			RetryDelay:      200 * time.Millisecond,
			CriticalStages:  []Stage{StageContextAssembly, StageResponse},
			FallbackMessage: "Sorry, something went wrong on my end. Please try again.",
		},
		Performance: PerformanceConfig{
			GlobalTimeout: 60 * time.Second,
			StageTimeout:  5 * time.Second,
			LLMTimeout:    20 * time.Second,
		},
		Fallback: FallbackConfig{
			DefaultProvider:     "openai",
			DefaultModel:        "gpt-4o",
			FallbackProvider:    "anthropic",
			FallbackModel:       "claude-sonnet",
			UseFallbackOnError:  true,
			ErrorResponse:       "I couldn't reach my language model just now. Please try again in a moment.",
			DisabledResponse:    "The assistant is currently turned off.",
			MaintenanceResponse: "The assistant is down for maintenance. Please check back soon.",
			RateLimitResponse:   "You're sending messages a little too quickly. Give me a moment to catch up.",
		},
		Notifications: NotificationConfig{
			SlowResponse:       10 * time.Second,
			ErrorRateThreshold: 0.25,
		},
		Context: ContextConfig{
			MaxTokens:        3000,
			ImmediateTokens:  1500,
			SummaryTokens:    600,
			ProfileTokens:    500,
			EventTokens:      400,
			ImmediateWindow:  10,
			SummaryThreshold: 12,
			EventLookahead:   7 * 24 * time.Hour,
			TrimOrder:        []ContextLayer{LayerImmediate, LayerSummary, LayerProfile, LayerEvents},
		},
		Intent: IntentConfig{
			BaseScore:     0.4,
			Multiplier:    1.5,
			ScoreCap:      1.0,
			MinConfidence: 0.3,
			DefaultBucket: BucketCasual,
			Keywords:      defaultIntentKeywords(),
		},
		Conflict: ConflictConfig{
			CompareLimit:  5,
			DropDuplicate: true,
		},
	}
}

// StageEnabled reports whether a stage should run under this config.
// Stages default to enabled when absent from the map; stages listed in
// Execution.Required run regardless of the map.
func (c *Config) StageEnabled(s Stage) bool {
	for _, r := range c.Execution.Required {
		if r == s {
			return true
		}
	}
	enabled, ok := c.Stages[s]
	if !ok {
		return true
	}
	return enabled
}

// Critical reports whether a stage failure aborts the run.
func (c *Config) Critical(s Stage) bool {
	if c.Execution.StopOnFirstError {
		return true
	}
	for _, cs := range c.ErrorHandling.CriticalStages {
		if cs == s {
			return true
		}
	}
	return false
}

// DebugFor reports whether debug detail should be included for a subject.
func (c *Config) DebugFor(subjectID string, forced bool) bool {
	if forced || c.Debug.Enabled {
		return true
	}
	for _, s := range c.Debug.Subjects {
		if s == subjectID {
			return true
		}
	}
	return false
}

// LoadConfig fetches the configuration snapshot for one run. Missing or
// unreadable documents yield DefaultConfig; a partially populated document
// is backfilled with defaults so zero values never disable the safety nets.
func LoadConfig(ctx context.Context, store DocStore) *Config {
	cfg := DefaultConfig()
	if store == nil {
		return cfg
	}

	// Decode over a second set of defaults so fields the document omits
	// keep their default values: an absent boolean must never read as an
	// explicit false and flip a safety switch off.
	merged := DefaultConfig()
	if err := store.Get(ctx, ConfigPath, merged); err != nil {
		return cfg
	}

	if merged.Stages == nil {
		merged.Stages = map[Stage]bool{}
	}
	if merged.Master.MaxRequestsPerMinute == 0 {
		merged.Master.MaxRequestsPerMinute = cfg.Master.MaxRequestsPerMinute
	}
	if merged.ErrorHandling.RetryDelay == 0 {
		merged.ErrorHandling.RetryDelay = cfg.ErrorHandling.RetryDelay
	}
	if merged.ErrorHandling.CriticalStages == nil {
		merged.ErrorHandling.CriticalStages = cfg.ErrorHandling.CriticalStages
	}
	if merged.ErrorHandling.FallbackMessage == "" {
		merged.ErrorHandling.FallbackMessage = cfg.ErrorHandling.FallbackMessage
	}
	if merged.Performance.GlobalTimeout == 0 {
		merged.Performance.GlobalTimeout = cfg.Performance.GlobalTimeout
	}
	if merged.Performance.StageTimeout == 0 {
		merged.Performance.StageTimeout = cfg.Performance.StageTimeout
	}
	if merged.Performance.LLMTimeout == 0 {
		merged.Performance.LLMTimeout = cfg.Performance.LLMTimeout
	}
	if merged.Fallback.DefaultProvider == "" {
		merged.Fallback = cfg.Fallback
	}
	if merged.Fallback.ErrorResponse == "" {
		merged.Fallback.ErrorResponse = cfg.Fallback.ErrorResponse
	}
	if merged.Fallback.DisabledResponse == "" {
		merged.Fallback.DisabledResponse = cfg.Fallback.DisabledResponse
	}
	if merged.Fallback.MaintenanceResponse == "" {
		merged.Fallback.MaintenanceResponse = cfg.Fallback.MaintenanceResponse
	}
	if merged.Fallback.RateLimitResponse == "" {
		merged.Fallback.RateLimitResponse = cfg.Fallback.RateLimitResponse
	}
	if merged.Notifications.SlowResponse == 0 {
		merged.Notifications.SlowResponse = cfg.Notifications.SlowResponse
	}
	if merged.Context.MaxTokens == 0 {
		merged.Context = cfg.Context
	}
	if len(merged.Context.TrimOrder) == 0 {
		merged.Context.TrimOrder = cfg.Context.TrimOrder
	}
	if merged.Intent.BaseScore == 0 {
		merged.Intent = cfg.Intent
	}
	if len(merged.Intent.Keywords) == 0 {
		merged.Intent.Keywords = defaultIntentKeywords()
	}
	if merged.Conflict.CompareLimit == 0 {
		merged.Conflict = cfg.Conflict
	}

	return merged
}
