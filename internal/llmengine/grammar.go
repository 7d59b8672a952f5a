package llmengine

import (
	"math/rand/v2"

	"github.com/hybridgroup/yzma/pkg/llama"
)

// defaultGrammar is the built-in GBNF constraining generation to the wire
// JSON shape of LLMResponse = { outcome: Outcome }. It is also written out
// at resources/outcome.gbnf for operators who want to edit it without
// rebuilding; Config.GrammarPath, when set, is preferred over this.
//
// The grammar admits the full Outcome variant set (final and
// intermediate_tool_call, the latter with one of the three known tool
// kinds) and nothing else.
const defaultGrammar = `
root        ::= "{" ws "\"outcome\"" ws ":" ws outcome ws "}"
outcome     ::= final | itc
final       ::= "{" ws "\"kind\"" ws ":" ws "\"final\"" ws "," ws "\"response\"" ws ":" ws string ws "}"
itc         ::= "{" ws "\"kind\"" ws ":" ws "\"intermediate_tool_call\"" ws "," ws "\"maybe_intermediate_response\"" ws ":" ws string ws "," ws "\"tool_call\"" ws ":" ws toolcall ws "}"
toolcall    ::= weather | dice | lore
weather     ::= "{" ws "\"kind\"" ws ":" ws "\"get_weather\"" ws "," ws "\"location\"" ws ":" ws string ws "}"
dice        ::= "{" ws "\"kind\"" ws ":" ws "\"roll_dice\"" ws "," ws "\"expression\"" ws ":" ws string ws "}"
lore        ::= "{" ws "\"kind\"" ws ":" ws "\"search_lore\"" ws "," ws "\"query\"" ws ":" ws string ws "}"
string      ::= "\"" char* "\""
char        ::= [^"\\] | "\\" .
ws          ::= [ \t\n]*
`

// grammarRoot is the GBNF root rule name passed to SamplerInitGrammar.
const grammarRoot = "root"

// buildSampler constructs a fresh sampler chain for a single generation:
// grammar constraint first (so every candidate token keeps the output
// schema-legal), then a repetition penalty, then a randomized low
// temperature, then the distribution sampler that actually draws from what
// remains. The repetition penalty costs nothing for short JSON outputs and
// guards pathological grammars with repeated optional fields.
func buildSampler(vocab llama.Vocab, grammarText string, tempMin, tempMax float32) llama.Sampler {
	params := llama.SamplerChainDefaultParams()
	chain := llama.SamplerChainInit(params)

	llama.SamplerChainAdd(chain, llama.SamplerInitGrammar(vocab, grammarText, grammarRoot))
	llama.SamplerChainAdd(chain, llama.SamplerInitPenalties(64, 1.1, 0.0, 0.0))

	temp := randomTemp(tempMin, tempMax)
	llama.SamplerChainAdd(chain, llama.SamplerInitTempExt(temp, 0, 1))
	llama.SamplerChainAdd(chain, llama.SamplerInitDist(0))

	return chain
}

// randomTemp draws a temperature uniformly from [lo, hi], falling back to a
// [0.2, 0.4] band when the range is unset.
func randomTemp(lo, hi float32) float32 {
	if lo <= 0 && hi <= 0 {
		lo, hi = 0.2, 0.4
	}
	return lo + rand.Float32()*(hi-lo)
}
