package lexicon

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/example/go-melotts/internal/text"
)

// loadTokens reads the phoneme table: one `<token> <id>` pair per line,
// whitespace-delimited, trailing carriage returns stripped. Lines that do
// not parse are skipped.
func loadTokens(path string) (map[string]int64, map[int64]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	token2id := make(map[string]int64)
	id2token := make(map[int64]string)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		token2id[fields[0]] = id
		id2token[id] = fields[0]
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	if len(token2id) == 0 {
		return nil, nil, fmt.Errorf("token table %s has no entries", path)
	}

	return token2id, id2token, nil
}

// loadLexicon reads the pronunciation dictionary: one
// `<surface> <phoneme> <phoneme> ...` line per entry. Entries whose surface
// form is purely Latin are additionally indexed as the English
// sub-dictionary.
func loadLexicon(path string) (word2ph, english map[string][]string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	word2ph = make(map[string][]string)
	english = make(map[string][]string)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		word := fields[0]
		phonemes := fields[1:]

		word2ph[word] = phonemes
		if text.IsLatinWord(word) {
			english[word] = phonemes
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	if len(word2ph) == 0 {
		return nil, nil, fmt.Errorf("lexicon %s has no entries", path)
	}

	return word2ph, english, nil
}
