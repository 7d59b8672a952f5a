// Package transport implements the chat transport shim: channel-specific
// adapters that turn inbound chat events into the canonical
// chattypes.NewMessage action, and a Sender implementation the effects
// layer uses to deliver outbound text. The lifecycle package never imports
// this one.
package transport

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

// knownCommands is the set of command words the fuzzy corrector snaps a
// leading "/"-stripped token onto, scored by plain Jaro-Winkler string
// similarity against a short, fixed command vocabulary.
var knownCommands = []string{"weather", "roll", "lore", "help", "reset"}

// fuzzyCommandThreshold is the minimum Jaro-Winkler score required before a
// mistyped leading token is corrected to a known command.
const fuzzyCommandThreshold = 0.84

var mentionPattern = regexp.MustCompile(`<@!?\d+>`)

// Normalize canonicalizes raw chat text: strip mentions, trim, strip a
// leading "/", collapse internal whitespace, lowercase, and, when the text
// began with "/", fuzzy-correct its leading token against knownCommands.
func Normalize(raw string) string {
	text := mentionPattern.ReplaceAllString(raw, "")
	text = strings.TrimSpace(text)
	isCommand := strings.HasPrefix(text, "/")
	text = strings.TrimPrefix(text, "/")
	text = strings.ToLower(text)
	text = strings.Join(strings.Fields(text), " ")
	if text == "" || !isCommand {
		return text
	}

	fields := strings.Fields(text)
	if corrected, ok := correctCommand(fields[0]); ok {
		fields[0] = corrected
		text = strings.Join(fields, " ")
	}
	return text
}

// correctCommand returns the known command token with the highest
// Jaro-Winkler similarity to word, if that similarity clears
// fuzzyCommandThreshold. It never corrects a word that is already an exact
// match, since that match already has a perfect score.
func correctCommand(word string) (string, bool) {
	var best string
	var bestScore float64
	for _, cmd := range knownCommands {
		score := matchr.JaroWinkler(word, cmd, false)
		if score > bestScore {
			best = cmd
			bestScore = score
		}
	}
	if bestScore >= fuzzyCommandThreshold {
		return best, true
	}
	return "", false
}
