package text

import "strings"

// punctReplacer maps full-width and typographic punctuation variants onto
// their ASCII equivalents. Longer sequences are listed first so the replacer
// matches them before their single-character prefixes.
var punctReplacer = strings.NewReplacer(
	"...", "…",
	"：", ",",
	"；", ",",
	"，", ",",
	"。", ".",
	"！", "!",
	"？", "?",
	"·", ",",
	"、", ",",
	"$", ".",
	"“", "'",
	"”", "'",
	"‘", "'",
	"’", "'",
	"（", "'",
	"）", "'",
	"(", "'",
	")", "'",
	"《", "'",
	"》", "'",
	"【", "'",
	"】", "'",
	"[", "'",
	"]", "'",
	"「", "'",
	"」", "'",
	"—", "-",
	"～", "-",
	"~", "-",
)

// Normalize canonicalizes raw input text for the phoneme pipeline: runs of
// whitespace collapse to a single space and full-width/typographic
// punctuation is substituted with ASCII equivalents. It is total over its
// input and never fails.
func Normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return punctReplacer.Replace(s)
}
