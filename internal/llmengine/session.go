package llmengine

import (
	"fmt"

	"github.com/hybridgroup/yzma/pkg/llama"
)

// sessionSaved is the singleflight result value for a collapsed session-file
// write; the call only needs to know whether it failed.
type sessionSaved struct{}

// sessionParams is the fixed context shape a Session was warmed under. It
// is kept only on the in-memory Session: the saved session file holds the
// base tokens and attention state, not these values, and nothing compares
// them when a session file is loaded.
type sessionParams struct {
	NCtx          uint32
	NThreads      int32
	NThreadsBatch int32
}

func (e *Engine) fingerprint() sessionParams {
	return sessionParams{NCtx: e.cfg.NCtx, NThreads: e.cfg.NThreads, NThreadsBatch: e.cfg.NThreadsBatch}
}

// Session is the warmed base-prompt attention state: the exact token
// sequence that produced it (length B) plus the context fingerprint it was
// captured under.
type Session struct {
	Path       string
	BaseTokens []llama.Token
	Params     sessionParams
}

// newContextParams builds the fixed-shape context parameters from cfg. Both
// the warm path and every hot-path call construct contexts this way, so the
// Params recorded on a Session match what a context allocated by the same
// process will report.
func (c Config) newContextParams() llama.ContextParams {
	p := llama.ContextDefaultParams()
	p.NCtx = c.NCtx
	p.NBatch = 512
	p.NUbatch = 512
	p.NThreads = c.NThreads
	p.NThreadsBatch = c.NThreadsBatch
	return p
}

// warmSession tokenizes the base prompt with BOS, decodes it once into a
// fresh context at positions [0, B), and persists the resulting attention
// state to disk.
//
// Every inline-warm fallback on Infer's hot path decodes into its own
// context (each call needs its own KV state, so that part can't be shared),
// but concurrent fallbacks all produce byte-identical base tokens from the
// same basePrompt and would otherwise race writing the same SessionPath.
// The disk write is collapsed through e.warmGroup so only one save per
// overlapping burst actually touches the file; the rest reuse its result.
func (e *Engine) warmSession(lctx llama.Context, basePrompt string) (*Session, error) {
	tokens := llama.Tokenize(e.vocab, basePrompt, true, true)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("llmengine: base prompt tokenized to zero tokens")
	}

	batch := llama.BatchGetOne(tokens)
	if _, err := llama.Decode(lctx, batch); err != nil {
		return nil, fmt.Errorf("llmengine: warm decode: %w", err)
	}

	_, err, _ := e.warmGroup.Do(e.cfg.SessionPath, func() (any, error) {
		if err := llama.StateSaveFile(lctx, e.cfg.SessionPath, tokens); err != nil {
			return nil, fmt.Errorf("llmengine: save session %s: %w", e.cfg.SessionPath, err)
		}
		return sessionSaved{}, nil
	})
	if err != nil {
		return nil, err
	}

	return &Session{Path: e.cfg.SessionPath, BaseTokens: tokens, Params: e.fingerprint()}, nil
}

// loadSession restores lctx's attention state for positions [0, B) from
// disk without re-decoding any base token. Only an error from
// llama.StateLoadFile or an empty token list counts as a load failure, on
// which the caller falls back to an inline warm; the context shape the file
// was saved under is not checked against the current one.
func (e *Engine) loadSession(lctx llama.Context) ([]llama.Token, error) {
	path := e.cfg.SessionPath

	tokens, err := llama.StateLoadFile(lctx, path, int(e.cfg.NCtx))
	if err != nil {
		return nil, fmt.Errorf("llmengine: load session %s: %w", path, err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("llmengine: loaded session %s has zero base tokens", path)
	}
	return tokens, nil
}
