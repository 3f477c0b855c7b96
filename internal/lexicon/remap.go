package lexicon

import (
	"bufio"
	"os"
	"strings"
)

// defaultRemapTable returns the built-in phonetic simplification table
// applied to phonemes the token table does not carry. The entries are
// ad-hoc patches (retroflex/non-retroflex initial pairs, contracted finals,
// stray digit tokens), kept as replaceable data rather than rules.
func defaultRemapTable() map[string]string {
	return map[string]string{
		// initial simplifications
		"zh": "z", "ch": "c", "sh": "s",
		"b": "p", "d": "t", "g": "k",

		// contracted finals
		"iu": "iou", "ui": "uei", "un": "uen",
		"ü": "v", "üe": "ve", "üan": "van", "ün": "vn",

		// stray digit tokens
		"3": "er", "4": "ai", "0": "",

		// observed one-off misses
		"c3": "c", "sh4": "sh", "j3": "j", "ie4": "ie",
	}
}

// loadRemapTable reads a remap table from a file of
// `<phoneme> <replacement>` lines. A line with a single field maps the
// phoneme to the empty string (drop). Comment lines start with '#'.
func loadRemapTable(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	remap := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimRight(scanner.Text(), "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch len(fields) {
		case 1:
			remap[fields[0]] = ""
		default:
			remap[fields[0]] = fields[1]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return remap, nil
}
