// Package lexicon maps text onto the phoneme-ID and tone-ID sequences the
// acoustic model consumes. It owns the phoneme token table and the
// pronunciation dictionary, both loaded once at construction and read-only
// afterwards.
package lexicon

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/mozillazg/go-pinyin"

	"github.com/example/go-melotts/internal/text"
)

// Special token-table symbols. Their absence is a startup warning, not an
// error: the resolver degrades to ID 0 for the missing role.
const (
	PadSymbol     = "_"
	UnknownSymbol = "UNK"
)

// MaxTone is the highest valid tone class. Tones outside [0, MaxTone] are
// reset to the neutral tone 0.
const MaxTone = 5

// Config carries the asset paths and knobs for building a Lexicon.
type Config struct {
	LexiconPath    string
	TokensPath     string
	RemapPath      string // optional; empty selects the built-in remap table
	MinSentenceLen int
	Logger         *slog.Logger
}

// Lexicon resolves surface text to parallel phoneme/tone ID sequences.
type Lexicon struct {
	log *slog.Logger

	word2ph  map[string][]string
	english  map[string][]string // Latin-only surface forms, the English sub-dictionary
	token2id map[string]int64
	id2token map[int64]string
	remap    map[string]string

	padID  int64
	unkID  int64
	hasUnk bool

	minSentenceLen int
	pinyinArgs     pinyin.Args
}

// New loads the token table and dictionary and returns a ready resolver.
// Missing or unreadable asset files are fatal; missing pad/unknown symbols
// inside an otherwise valid token table only log a warning.
func New(cfg Config) (*Lexicon, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	token2id, id2token, err := loadTokens(cfg.TokensPath)
	if err != nil {
		return nil, fmt.Errorf("load token table: %w", err)
	}

	word2ph, english, err := loadLexicon(cfg.LexiconPath)
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}

	remap := defaultRemapTable()
	if cfg.RemapPath != "" {
		remap, err = loadRemapTable(cfg.RemapPath)
		if err != nil {
			return nil, fmt.Errorf("load phoneme remap table: %w", err)
		}
	}

	l := &Lexicon{
		log:            log,
		word2ph:        word2ph,
		english:        english,
		token2id:       token2id,
		id2token:       id2token,
		remap:          remap,
		minSentenceLen: cfg.MinSentenceLen,
	}

	if id, ok := token2id[PadSymbol]; ok {
		l.padID = id
	} else {
		log.Warn("token table is missing the padding symbol", "symbol", PadSymbol)
	}
	if id, ok := token2id[UnknownSymbol]; ok {
		l.unkID = id
		l.hasUnk = true
	} else {
		log.Warn("token table is missing the unknown symbol", "symbol", UnknownSymbol)
	}

	args := pinyin.NewArgs()
	args.Style = pinyin.Tone3
	l.pinyinArgs = args

	log.Info("lexicon loaded",
		"entries", len(word2ph),
		"english_entries", len(english),
		"tokens", len(token2id),
	)

	return l, nil
}

// BlankID returns the padding-symbol ID used for blank interleaving.
func (l *Lexicon) BlankID() int64 { return l.padID }

// UnknownID returns the unknown-symbol ID substituted on resolution misses.
func (l *Lexicon) UnknownID() int64 { return l.unkID }

// NumTokens returns the size of the phoneme token table.
func (l *Lexicon) NumTokens() int { return len(l.token2id) }

// Convert resolves input text into parallel phoneme-ID and tone-ID
// sequences. It drives the full front end: normalization, sentence
// segmentation, word segmentation with sandhi merges, then per-token
// resolution with ordered fallbacks. The returned slices always have equal,
// non-zero length; resolution misses substitute the unknown symbol and are
// logged rather than surfaced.
func (l *Lexicon) Convert(input string) (phones, tones []int64) {
	normalized := text.Normalize(input)
	sentences := text.SplitSentences(normalized, l.minSentenceLen)

	for _, sentence := range sentences {
		for _, tok := range text.Segment(sentence) {
			if tok.Surface == "" {
				continue
			}
			if tok.Kind == text.KindEnglish || text.IsLatinWord(tok.Surface) {
				phones, tones = l.resolveEnglish(tok.Surface, phones, tones)
				continue
			}
			if phonemes, ok := l.word2ph[tok.Surface]; ok {
				for _, ph := range phonemes {
					phones, tones = l.appendPhoneme(ph, phones, tones)
				}
				continue
			}
			phones, tones = l.resolveCharByChar(tok.Surface, phones, tones)
		}
	}

	return l.validate(phones, tones)
}

// resolveEnglish tries the English sub-dictionary for the whole word and
// falls back to one phoneme per surface character.
func (l *Lexicon) resolveEnglish(word string, phones, tones []int64) ([]int64, []int64) {
	if phonemes, ok := l.english[word]; ok {
		for _, ph := range phonemes {
			phones, tones = l.appendPhoneme(ph, phones, tones)
		}
		return phones, tones
	}

	for _, r := range word {
		if id, ok := l.token2id[string(r)]; ok {
			phones = append(phones, id)
			tones = append(tones, 0)
		} else {
			phones = append(phones, l.unkID)
			tones = append(tones, 0)
		}
	}
	return phones, tones
}

// resolveCharByChar handles words absent from the dictionary one Unicode
// character at a time: dictionary by single character, then the punctuation
// table, then a pinyin-derived pronunciation, then the unknown symbol.
func (l *Lexicon) resolveCharByChar(word string, phones, tones []int64) ([]int64, []int64) {
	for _, r := range word {
		ch := string(r)

		if phonemes, ok := l.word2ph[ch]; ok {
			for _, ph := range phonemes {
				phones, tones = l.appendPhoneme(ph, phones, tones)
			}
			continue
		}

		if text.IsPunct(ch) {
			if id, ok := l.token2id[ch]; ok {
				phones = append(phones, id)
			} else {
				phones = append(phones, l.unkID)
			}
			tones = append(tones, 0)
			continue
		}

		if syllablePhones, ok := l.pinyinPhonemes(r); ok {
			for _, ph := range syllablePhones {
				phones, tones = l.appendPhoneme(ph, phones, tones)
			}
			continue
		}

		l.log.Warn("unknown character", "char", ch)
		phones = append(phones, l.unkID)
		tones = append(tones, 0)
	}
	return phones, tones
}

// pinyinPhonemes derives phoneme tokens for a single Han character that the
// dictionary does not cover: the tone-annotated syllable (e.g. "hao3") is
// split into initial and final, with the tone digit kept on the final.
func (l *Lexicon) pinyinPhonemes(r rune) ([]string, bool) {
	readings := pinyin.Pinyin(string(r), l.pinyinArgs)
	if len(readings) == 0 || len(readings[0]) == 0 {
		return nil, false
	}
	syllable := readings[0][0]
	if syllable == "" {
		return nil, false
	}

	tone := ""
	if last := syllable[len(syllable)-1]; last >= '0' && last <= '9' {
		tone = string(last)
		syllable = syllable[:len(syllable)-1]
	}

	initial := pinyinInitial(syllable)
	final := strings.TrimPrefix(syllable, initial)

	var out []string
	if initial != "" {
		out = append(out, initial)
	}
	if final != "" {
		out = append(out, final+tone)
	}
	if len(out) == 0 {
		return nil, false
	}

	l.log.Debug("pinyin fallback", "char", string(r), "phonemes", out)
	return out, true
}

// pinyinInitials lists syllable onsets longest-first so "zh" wins over "z".
var pinyinInitials = []string{
	"zh", "ch", "sh",
	"b", "p", "m", "f", "d", "t", "n", "l",
	"g", "k", "h", "j", "q", "x",
	"r", "z", "c", "s", "y", "w",
}

func pinyinInitial(syllable string) string {
	for _, ini := range pinyinInitials {
		if strings.HasPrefix(syllable, ini) {
			return ini
		}
	}
	return ""
}

// appendPhoneme decomposes one phoneme token into (base phoneme ID, tone)
// and appends the pair. Resolution order: trailing-digit split against the
// table, whole string against the table, remap table, unknown symbol.
func (l *Lexicon) appendPhoneme(ph string, phones, tones []int64) ([]int64, []int64) {
	base, tone := splitTone(ph)

	if id, ok := l.token2id[base]; ok {
		return append(phones, id), append(tones, tone)
	}
	if id, ok := l.token2id[ph]; ok {
		return append(phones, id), append(tones, extractTone(ph))
	}

	if mapped := l.remapPhoneme(ph); mapped != ph {
		if id, ok := l.token2id[mapped]; ok {
			l.log.Debug("remapped phoneme", "from", ph, "to", mapped)
			return append(phones, id), append(tones, extractTone(mapped))
		}
	}

	l.log.Warn("unknown phoneme", "phoneme", ph)
	return append(phones, l.unkID), append(tones, 0)
}

// remapPhoneme consults the remap table, retrying with the tone digit
// stripped when the full form has no entry.
func (l *Lexicon) remapPhoneme(ph string) string {
	if mapped, ok := l.remap[ph]; ok {
		return mapped
	}
	base, _ := splitTone(ph)
	if base != ph {
		if mapped, ok := l.remap[base]; ok {
			return mapped
		}
		return base
	}
	return ph
}

// splitTone separates a trailing tone digit from its base phoneme. The digit
// is clamped to [0, MaxTone]; a phoneme without a trailing digit keeps the
// neutral tone.
func splitTone(ph string) (base string, tone int64) {
	if ph == "" {
		return ph, 0
	}
	last := ph[len(ph)-1]
	if last < '0' || last > '9' {
		return ph, 0
	}
	tone = int64(last - '0')
	if tone > MaxTone {
		tone = 0
	}
	return ph[:len(ph)-1], tone
}

func extractTone(ph string) int64 {
	_, tone := splitTone(ph)
	return tone
}

// validate repairs the invariants the caller relies on: equal-length
// sequences (the longer one is truncated), table-backed phoneme IDs (unknown
// IDs become the unknown symbol), tones inside [0, MaxTone], and a non-empty
// result (an empty conversion yields a single unknown/neutral pair).
func (l *Lexicon) validate(phones, tones []int64) ([]int64, []int64) {
	if len(phones) != len(tones) {
		l.log.Warn("phoneme/tone length mismatch, truncating",
			"phones", len(phones), "tones", len(tones))
		n := min(len(phones), len(tones))
		phones, tones = phones[:n], tones[:n]
	}

	for i := range phones {
		if _, ok := l.id2token[phones[i]]; !ok {
			phones[i] = l.unkID
		}
		if tones[i] < 0 || tones[i] > MaxTone {
			tones[i] = 0
		}
	}

	if len(phones) == 0 {
		l.log.Warn("empty phoneme sequence, substituting unknown symbol")
		phones = []int64{l.unkID}
		tones = []int64{0}
	}

	return phones, tones
}

// Intersperse inserts blank between every pair of adjacent elements and at
// both ends, returning a sequence of length 2*len(seq)+1 with blank at every
// even index. The acoustic model is trained on blank-interleaved input, so
// this is part of the wire format, not a cosmetic step.
func Intersperse(seq []int64, blank int64) []int64 {
	result := make([]int64, len(seq)*2+1)
	for i := range result {
		result[i] = blank
	}
	for i := 1; i < len(result); i += 2 {
		result[i] = seq[i/2]
	}
	return result
}
