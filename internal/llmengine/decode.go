package llmengine

import (
	"context"
	"fmt"

	"github.com/hybridgroup/yzma/pkg/llama"
)

// lastLogitsIdx is the sampler's "last logits index" argument: -1 always
// means "the most recently decoded position", which is all this engine ever
// needs since every decode call's final token is the one marked to produce
// logits.
const lastLogitsIdx = -1

// decodeResult carries the generated text plus the number of tokens
// generated, which Infer adds to the tokens-generated metric.
type decodeResult struct {
	text          string
	tokensGenerated int
}

// runGeneration decodes the dynamic prompt tokens, then samples one token at
// a time until end-of-generation, the hard context cap, or
// MaxGenerationTokens, whichever comes first. The batches come from
// llama.BatchGetOne and carry no explicit positions: the library places each
// batch right after the last position already in the context. nCur starts at
// the caller's base-token count and advances with every decoded token; it is
// used only for the n_ctx cap and in error messages.
//
// Hitting n_ctx is a graceful stop, the same as exhausting MaxGenerationTokens:
// both return whatever text was generated so far rather than an error, since
// the grammar-constrained caller still has to attempt a JSON parse of that
// text and a hard error would otherwise force-reset the conversation to
// Idle(None) and drop its history.
func runGeneration(ctx context.Context, lctx llama.Context, vocab llama.Vocab, sampler llama.Sampler, dynamicTokens []llama.Token, nCur int, cfg Config) (decodeResult, int, error) {
	batch := llama.BatchGetOne(dynamicTokens)
	if _, err := llama.Decode(lctx, batch); err != nil {
		return decodeResult{}, nCur, fmt.Errorf("llmengine: dynamic-prompt decode at n_cur=%d: %w", nCur, err)
	}
	nCur += len(dynamicTokens)

	var out []byte
	generated := 0
	maxGen := cfg.MaxGenerationTokens

	for generated < maxGen {
		select {
		case <-ctx.Done():
			return decodeResult{}, nCur, fmt.Errorf("llmengine: generation cancelled: %w", ctx.Err())
		default:
		}

		tok := llama.SamplerSample(sampler, lctx, lastLogitsIdx)
		llama.SamplerAccept(sampler, tok)

		if llama.VocabIsEOG(vocab, tok) {
			break
		}

		piece := llama.Detokenize(vocab, []llama.Token{tok}, false, true)
		out = append(out, piece...)
		generated++

		if nCur >= int(cfg.NCtx) {
			break
		}

		step := llama.BatchGetOne([]llama.Token{tok})
		if _, err := llama.Decode(lctx, step); err != nil {
			return decodeResult{}, nCur, fmt.Errorf("llmengine: generation-step decode at n_cur=%d: %w", nCur, err)
		}
		nCur++
	}

	return decodeResult{text: string(out), tokensGenerated: generated}, nCur, nil
}
