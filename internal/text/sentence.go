package text

import (
	"strings"
	"unicode/utf8"
)

// DefaultMinSentenceLen is the merge threshold used by SplitSentences when
// the caller passes a non-positive minimum.
const DefaultMinSentenceLen = 10

// sentence-terminal punctuation, ASCII and full-width forms.
const sentenceTerminators = ",.!?;，。！？；"

// SplitSentences splits normalized text into sentences at terminal
// punctuation and re-merges fragments until each merged sentence exceeds
// minLen characters (except possibly the last). A trailing sentence of two
// characters or fewer is folded into its predecessor so no stray
// single-character utterance survives. Empty input yields nil.
func SplitSentences(text string, minLen int) []string {
	if minLen <= 0 {
		minLen = DefaultMinSentenceLen
	}

	fragments := splitOnTerminators(text)
	if len(fragments) == 0 {
		return nil
	}

	// Greedy merge: accumulate fragments until the running length passes
	// minLen, then flush. The last fragment always flushes.
	var merged []string
	var current strings.Builder
	countLen := 0
	for i, frag := range fragments {
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(frag)
		countLen += utf8.RuneCountInString(frag)

		if countLen > minLen || i == len(fragments)-1 {
			merged = append(merged, current.String())
			current.Reset()
			countLen = 0
		}
	}

	// Fold very short sentences into their predecessor.
	var result []string
	for _, s := range merged {
		if len(result) > 0 && utf8.RuneCountInString(s) <= 2 {
			result[len(result)-1] += " " + s
		} else {
			result = append(result, s)
		}
	}
	if len(result) > 1 && utf8.RuneCountInString(result[len(result)-1]) <= 2 {
		last := result[len(result)-1]
		result = result[:len(result)-1]
		result[len(result)-1] += " " + last
	}

	return result
}

// splitOnTerminators breaks text at sentence-terminal punctuation, dropping
// the terminators and any fragments that are empty after trimming.
func splitOnTerminators(text string) []string {
	var fragments []string
	flush := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			fragments = append(fragments, s)
		}
	}

	start := 0
	for i, r := range text {
		if strings.ContainsRune(sentenceTerminators, r) {
			flush(text[start:i])
			start = i + utf8.RuneLen(r)
		}
	}
	flush(text[start:])

	return fragments
}
