package text

import "strings"

// TokenKind is the coarse category assigned by the word segmenter.
type TokenKind string

const (
	KindWord    TokenKind = "n"   // noun-like run of non-Latin characters
	KindEnglish TokenKind = "eng" // maximal run of Latin letters/apostrophe
	KindPunct   TokenKind = "w"   // single punctuation character
)

// Token is one segmenter unit: a surface form plus its category. The merge
// passes may fuse adjacent tokens into one.
type Token struct {
	Surface string
	Kind    TokenKind
}

const (
	negationParticle = "不"
	numeralOne       = "一"
)

// punctuationSet holds every character treated as stand-alone punctuation by
// the segmenter and the resolver, in ASCII and full-width forms.
var punctuationSet = map[string]struct{}{}

func init() {
	for _, p := range []string{
		"!", "?", "…", ",", ".", "'", "-", "¿", "¡",
		"。", "，", "、", "；", "：", "？", "！",
		"“", "”", "‘", "’",
		"（", "）", "《", "》", "【", "】", "—", "～", "「", "」",
	} {
		punctuationSet[p] = struct{}{}
	}
}

// IsPunct reports whether s is a member of the fixed punctuation set.
func IsPunct(s string) bool {
	_, ok := punctuationSet[s]
	return ok
}

func isLatinChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '\''
}

// IsLatinWord reports whether s consists entirely of Latin letters or
// apostrophes. The empty string is not a Latin word.
func IsLatinWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isLatinChar(r) {
			return false
		}
	}
	return true
}

// Segment tokenizes one sentence into (surface, category) tokens and applies
// the three sandhi/merge passes in their required order: negation fusion,
// numeral-one fusion, then reduplication fusion. Each pass consumes the
// previous pass's output; the first two can create adjacency that the last
// one folds.
func Segment(sentence string) []Token {
	tokens := scan(sentence)
	tokens = mergeBu(tokens)
	tokens = mergeYi(tokens)
	tokens = MergeReduplication(tokens)
	return tokens
}

// scan walks the sentence rune by rune: Latin runs become English tokens,
// punctuation characters become their own token, whitespace flushes the
// pending word, everything else accumulates into a noun-like token.
func scan(sentence string) []Token {
	var tokens []Token
	var word strings.Builder
	flushWord := func() {
		if word.Len() > 0 {
			tokens = append(tokens, Token{Surface: word.String(), Kind: KindWord})
			word.Reset()
		}
	}

	runes := []rune(sentence)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case isLatinChar(r):
			flushWord()
			j := i
			for j < len(runes) && isLatinChar(runes[j]) {
				j++
			}
			tokens = append(tokens, Token{Surface: string(runes[i:j]), Kind: KindEnglish})
			i = j
		case IsPunct(string(r)):
			flushWord()
			tokens = append(tokens, Token{Surface: string(r), Kind: KindPunct})
			i++
		case r == ' ':
			flushWord()
			i++
		default:
			word.WriteRune(r)
			i++
		}
	}
	flushWord()

	return tokens
}

// mergeBu fuses the negation particle with the token that follows it, so
// negation-attached prosody resolves as one unit. A trailing isolated
// particle is kept standalone.
func mergeBu(tokens []Token) []Token {
	var result []Token
	lastWord := ""
	for _, tok := range tokens {
		if lastWord == negationParticle {
			result = append(result, Token{Surface: negationParticle + tok.Surface, Kind: tok.Kind})
		} else if tok.Surface != negationParticle {
			result = append(result, tok)
		}
		lastWord = tok.Surface
	}
	if lastWord == negationParticle {
		result = append(result, Token{Surface: negationParticle, Kind: KindWord})
	}
	return result
}

// mergeYi handles the numeral "one": in a V 一 V reduplication pattern the
// three tokens fold into one doubled token; otherwise a standalone numeral
// fuses with its following token.
func mergeYi(tokens []Token) []Token {
	var result []Token
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok.Surface == numeralOne &&
			i > 0 && i < len(tokens)-1 &&
			tokens[i-1].Surface == tokens[i+1].Surface:
			if len(result) > 0 {
				prev := result[len(result)-1].Surface
				result[len(result)-1].Surface = prev + numeralOne + prev
			}
			i++ // the trailing verb was folded in
		case tok.Surface == numeralOne && i < len(tokens)-1:
			next := tokens[i+1]
			result = append(result, Token{Surface: numeralOne + next.Surface, Kind: next.Kind})
			i++
		default:
			result = append(result, tok)
		}
	}
	return result
}

// MergeReduplication fuses any token identical to its immediate predecessor
// into one doubled token. The pass is idempotent: a doubled surface no
// longer equals its neighbour, so a second run changes nothing.
func MergeReduplication(tokens []Token) []Token {
	var result []Token
	for _, tok := range tokens {
		if len(result) > 0 && result[len(result)-1].Surface == tok.Surface {
			result[len(result)-1].Surface += tok.Surface
		} else {
			result = append(result, tok)
		}
	}
	return result
}
