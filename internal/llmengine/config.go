// Package llmengine owns the local language model: loading the weights
// once, warming a reusable base-prompt session, and running the per-call
// hot path that produces a grammar-constrained [chattypes.Outcome]. It runs
// on github.com/hybridgroup/yzma, trading streaming text generation for a
// single structured JSON verdict per call, and caches the warmed base-prompt
// attention state on disk across process restarts.
package llmengine

import "time"

// Config holds the fixed parameters that define one Engine's identity. The
// three context-shape fields (NCtx, NThreads, NThreadsBatch) are not written
// into the saved session file, and a session file saved under different
// values is not detected when it is loaded.
type Config struct {
	// ModelPath is the GGUF weights file passed to yzma at load time.
	ModelPath string

	// SessionPath is where the warmed base-prompt attention state is
	// persisted. Defaults to resources/session.bin.
	SessionPath string

	// GrammarPath optionally overrides the embedded default GBNF grammar.
	// Empty means use the built-in grammar in grammar.go.
	GrammarPath string

	// BasePrompt is the static system/instruction text warmed once at
	// startup and replayed, via the session cache, on every call.
	BasePrompt string

	NCtx          uint32
	NThreads      int32
	NThreadsBatch int32
	NGpuLayers    int32

	// MaxGenerationTokens hard-caps the generation loop independent of NCtx.
	MaxGenerationTokens int

	// TempMin/TempMax bound the per-call randomized sampling temperature.
	TempMin float32
	TempMax float32
}

// DefaultConfig returns a Config with sensible defaults; callers fill in
// ModelPath and BasePrompt.
func DefaultConfig() Config {
	return Config{
		SessionPath:         "resources/session.bin",
		NCtx:                4096,
		NThreads:            4,
		NThreadsBatch:       4,
		NGpuLayers:          0,
		MaxGenerationTokens: 512,
		TempMin:             0.2,
		TempMax:             0.4,
	}
}

// warmTimeout bounds the one-time startup warm call; it is generous because
// it only runs once and a slow disk/model load should not be mistaken for a
// hang.
const warmTimeout = 2 * time.Minute
