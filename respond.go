package famulus

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
	"github.com/zoobzio/zyn"
)

// defaultTemperature is used for the response call.
const defaultTemperature float32 = 0.7

// responder owns the response-stage dependencies.
type responder struct {
	providers *Registry
}

// responseStage obtains the model response. The primary provider is tried
// first; when it fails and fallback is enabled, the fallback provider gets
// one attempt. Both failing substitutes the fixed error string: this stage
// always leaves a user-visible reply on the run, never a raw error.
func (r *responder) responseStage() stageDef {
	return stageDef{
		stage: StageResponse,
		skip:  skipWhenBlocked,
		work: func(ctx context.Context, run *Run) (map[string]any, error) {
			primaryName, primaryModel := run.Config.Fallback.DefaultProvider, run.Config.Fallback.DefaultModel
			if run.Input.Provider != "" {
				primaryName = run.Input.Provider
			}
			if run.Input.Model != "" {
				primaryModel = run.Input.Model
			}

			llmTimeout := run.Config.Performance.LLMTimeout
			chain := r.callProcessor(primaryName, primaryModel, llmTimeout)
			if run.Config.Fallback.UseFallbackOnError {
				chain = pipz.NewFallback(pipz.NewIdentity("provider-fallback", ""),
					chain,
					r.fallbackProcessor(run.Config.Fallback, llmTimeout),
				)
			}

			if _, err := chain.Process(ctx, run); err != nil {
				run.Reply = &Reply{
					Text:     run.Config.Fallback.ErrorResponse,
					Provider: primaryName,
					Model:    primaryModel,
					Degraded: true,
				}
				capitan.Error(ctx, StageFailed,
					FieldTraceID.Field(run.TraceID),
					FieldStageName.Field("provider_chain"),
					FieldError.Field(err),
				)
			}

			return map[string]any{
				"provider": run.Reply.Provider,
				"degraded": run.Reply.Degraded,
				"tokens":   run.Reply.InputTokens + run.Reply.OutputTokens,
			}, nil
		},
	}
}

// callProcessor performs one provider call under the LLM timeout class.
func (r *responder) callProcessor(name, model string, timeout time.Duration) pipz.Chainable[*Run] {
	call := pipz.Apply(pipz.NewIdentity("call-"+name, ""), func(ctx context.Context, run *Run) (*Run, error) {
		// Assembly may be disabled or its failure absorbed; the call still
		// goes out with the bare user message.
		messages := []zyn.Message{{Role: "user", Content: run.Input.Message}}
		if run.Assembled != nil {
			messages = run.Assembled.Messages(run.Input.Message)
		}

		gen, err := r.providers.Generate(ctx, messages, GenerateParams{
			Provider:    name,
			Model:       model,
			Temperature: defaultTemperature,
		})
		if err != nil {
			return run, err
		}

		run.Reply = &Reply{
			Text:         gen.Text,
			Provider:     gen.Provider,
			Model:        gen.Model,
			InputTokens:  gen.InputTokens,
			OutputTokens: gen.OutputTokens,
		}
		return run, nil
	})

	return pipz.NewTimeout(pipz.NewIdentity("timeout-"+name, ""), call, timeout)
}

// fallbackProcessor is the one fallback-provider attempt, with its own
// signal so operators can watch fallback rates.
func (r *responder) fallbackProcessor(cfg FallbackConfig, timeout time.Duration) pipz.Chainable[*Run] {
	inner := r.callProcessor(cfg.FallbackProvider, cfg.FallbackModel, timeout)
	return pipz.Apply(pipz.NewIdentity("fallback-"+cfg.FallbackProvider, ""), func(ctx context.Context, run *Run) (*Run, error) {
		capitan.Emit(ctx, ProviderFallback,
			FieldTraceID.Field(run.TraceID),
			FieldProvider.Field(cfg.FallbackProvider),
		)
		return inner.Process(ctx, run)
	})
}
