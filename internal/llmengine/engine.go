package llmengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hybridgroup/yzma/pkg/llama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/glyphoxa-chat/internal/observe"
	"github.com/MrWong99/glyphoxa-chat/pkg/chattypes"
)

// ModelCapabilities mirrors pkg/provider/llm.Provider.Capabilities from the
// teacher's provider interface, reporting what callers can rely on without
// reaching into Config directly.
type ModelCapabilities struct {
	NCtx                int
	MaxGenerationTokens int
	// ToolCallingNative is always false: tool calls are a convention this
	// runtime's grammar and lifecycle enforce, not a model-native feature.
	ToolCallingNative bool
}

// Engine owns one loaded model, its vocabulary, and the warmed base-prompt
// session. It is safe for concurrent Infer calls: the model and vocab
// handles are read-only after Load, and Infer never touches e.session. Each
// call loads the session file from disk into its own context; only
// WarmSession assigns e.session, under the lock, and a call's fallback
// inline warm keeps its result local.
type Engine struct {
	cfg   Config
	model llama.Model
	vocab llama.Vocab

	grammarText string

	logger  *slog.Logger
	metrics *observe.Metrics

	mu      sync.RWMutex
	session *Session

	warmGroup singleflight.Group
}

// Load loads the GGUF weights at cfg.ModelPath. It does not warm the
// session; call WarmSession separately so bootstrap can decide whether a
// warm failure is fatal (it is not — Infer falls back to an inline warm).
func Load(cfg Config, logger *slog.Logger, metrics *observe.Metrics) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	params := llama.ModelDefaultParams()
	params.NGpuLayers = cfg.NGpuLayers

	model, err := llama.ModelLoadFromFile(cfg.ModelPath, params)
	if err != nil {
		return nil, fmt.Errorf("llmengine: load model %s: %w", cfg.ModelPath, err)
	}

	grammarText := defaultGrammar
	if cfg.GrammarPath != "" {
		if text, err := loadGrammarFile(cfg.GrammarPath); err != nil {
			logger.Warn("llmengine: falling back to built-in grammar", "path", cfg.GrammarPath, "err", err)
		} else {
			grammarText = text
		}
	}

	return &Engine{
		cfg:         cfg,
		model:       model,
		vocab:       llama.ModelGetVocab(model),
		grammarText: grammarText,
		logger:      logger,
		metrics:     metrics,
	}, nil
}

// WarmSession runs the one-time startup warm path: decode the base prompt
// once and persist the resulting attention state for every later call to
// load instead of re-decoding.
func (e *Engine) WarmSession(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, warmTimeout)
	defer cancel()

	lctx, err := llama.InitFromModel(e.model, e.cfg.newContextParams())
	if err != nil {
		return fmt.Errorf("llmengine: warm: create context: %w", err)
	}
	defer llama.Free(lctx)

	session, err := e.warmSession(lctx, e.cfg.BasePrompt)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.session = session
	e.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("llmengine: warm: %w", ctx.Err())
	default:
	}
	return nil
}

// Infer runs the full per-call hot path: fresh context, session load (or
// inline-warm fallback), dynamic prompt decode, generation, and parse of the
// resulting JSON into a chattypes.Outcome.
func (e *Engine) Infer(ctx context.Context, input chattypes.LLMInput, history chattypes.History) (outcome chattypes.Outcome, err error) {
	ctx, span := observe.StartSpan(ctx, "llmengine.Infer",
		trace.WithAttributes(attribute.Int("llmengine.history_len", len(history))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	lctx, err := llama.InitFromModel(e.model, e.cfg.newContextParams())
	if err != nil {
		return chattypes.Outcome{}, fmt.Errorf("llmengine: infer: create context: %w", err)
	}
	defer llama.Free(lctx)

	baseTokens, err := e.loadSession(lctx)
	if err != nil {
		e.logger.Warn("llmengine: session load failed, falling back to inline warm", "err", err)
		e.metrics.RecordSessionCacheResult(ctx, "fallback")

		session, werr := e.warmSession(lctx, e.cfg.BasePrompt)
		if werr != nil {
			return chattypes.Outcome{}, fmt.Errorf("llmengine: inline warm fallback: %w", werr)
		}
		baseTokens = session.BaseTokens
		// Deliberately not stored into e.session: a degraded-latency call
		// should not silently promote its local fallback into the
		// process-wide warmed session used by concurrent callers.
	} else {
		e.metrics.RecordSessionCacheResult(ctx, "hit")
	}
	nCur := len(baseTokens)

	dynamicPrompt, err := buildDynamicPrompt(input, history)
	if err != nil {
		return chattypes.Outcome{}, err
	}
	dynamicTokens := llama.Tokenize(e.vocab, dynamicPrompt, false, true)
	if len(dynamicTokens) == 0 {
		return chattypes.Outcome{}, fmt.Errorf("llmengine: dynamic prompt tokenized to zero tokens")
	}

	sampler := buildSampler(e.vocab, e.grammarText, e.cfg.TempMin, e.cfg.TempMax)
	defer llama.SamplerFree(sampler)

	result, _, err := runGeneration(ctx, lctx, e.vocab, sampler, dynamicTokens, nCur, e.cfg)
	if err != nil {
		return chattypes.Outcome{}, err
	}
	if e.metrics != nil {
		e.metrics.TokensGenerated.Add(ctx, int64(result.tokensGenerated))
	}

	var wire wireOutcome
	if err := json.Unmarshal([]byte(result.text), &wire); err != nil {
		return chattypes.Outcome{}, fmt.Errorf("llmengine: parse grammar-constrained output as JSON: %w", err)
	}
	return wire.Outcome.toDomain()
}

// TokenToText detokenizes a single raw token, exposed for callers that need
// to inspect generation piece-by-piece. runGeneration does not use it; it
// calls llama.Detokenize directly.
func (e *Engine) TokenToText(tok llama.Token) (string, error) {
	return llama.Detokenize(e.vocab, []llama.Token{tok}, false, true), nil
}

// Capabilities reports static facts about this engine's configuration.
func (e *Engine) Capabilities() ModelCapabilities {
	return ModelCapabilities{
		NCtx:                int(e.cfg.NCtx),
		MaxGenerationTokens: e.cfg.MaxGenerationTokens,
		ToolCallingNative:   false,
	}
}

// Close releases the model. Safe to call once; calling Infer afterward is a
// programmer error, matching NativeProvider.Close's contract in the
// teacher's whisper package.
func (e *Engine) Close() error {
	llama.ModelFree(e.model)
	return nil
}
