package markov

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	abbrCapped = toSet(strings.Split(
		"ala|ariz|ark|calif|colo|conn|del|fla|ga|ill|ind|kan|ky|la|md|mass|mich|minn|miss|mo|mont|neb|nev|okla|ore|pa|tenn|vt|va|wash|wis|wyo|"+
			"u.s|"+
			"mr|ms|mrs|msr|dr|gov|pres|sen|sens|rep|reps|prof|gen|messrs|col|sr|jf|sgt|mgr|fr|rev|jr|snr|atty|supt|"+
			"ave|blvd|st|rd|hwy|"+
			"jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec|"+
			"a|b|c|d|e|f|g|h|i|j|k|l|m|n|o|p|q|r|s|t|u|v|w|x|y|z", "|"))
	abbrLower  = toSet([]string{"etc", "v", "vs", "viz", "al", "pct"})
	exceptions = toSet([]string{"U.S.", "U.N.", "E.U.", "F.B.I.", "C.I.A."})

	// rejectPattern drops input sentences whose quotes or brackets would be
	// left unbalanced by recombination.
	rejectPattern = regexp.MustCompile(`(^')|('$)|\s'|'\s|["()\[\]]`)

	quoteFolder = strings.NewReplacer("‘", "'", "’", "'", "“", `"`, "”", `"`)
)

const closers = "‘’“”'\")]"

func toSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func isAbbreviation(dotted string) bool {
	clipped := strings.TrimSuffix(dotted, ".")
	if clipped == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(clipped)
	if unicode.IsUpper(first) {
		_, ok := abbrCapped[strings.ToLower(clipped)]
		return ok
	}
	_, ok := abbrLower[clipped]
	return ok
}

func isSentenceEnder(word string) bool {
	if _, ok := exceptions[word]; ok {
		return false
	}
	if strings.HasSuffix(word, "?") || strings.HasSuffix(word, "!") {
		return true
	}
	capitals := 0
	for _, r := range word {
		if r >= 'A' && r <= 'Z' {
			capitals++
		}
	}
	if capitals > 1 {
		return true
	}
	return strings.HasSuffix(word, ".") && !isAbbreviation(word)
}

// endsSentence reports whether word closes a sentence given the word after it.
func endsSentence(word, next string) bool {
	if next == "" {
		return false
	}
	n, _ := utf8.DecodeRuneInString(next)
	if unicode.IsLower(n) || n == '-' || n == '–' || n == '—' {
		return false
	}
	core := strings.TrimRight(word, closers)
	if utf8.RuneCountInString(core) < 2 {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(core)
	if last != '.' && last != '?' && last != '!' {
		return false
	}
	return isSentenceEnder(core)
}

// splitSentences breaks text into sentences on newlines and on terminal
// punctuation that is not part of a known abbreviation.
func splitSentences(text string) []string {
	var sentences []string
	for _, line := range strings.Split(text, "\n") {
		words := strings.Fields(line)
		start := 0
		for i, w := range words {
			next := ""
			if i+1 < len(words) {
				next = words[i+1]
			}
			if endsSentence(w, next) {
				sentences = append(sentences, strings.Join(words[start:i+1], " "))
				start = i + 1
			}
		}
		if start < len(words) {
			sentences = append(sentences, strings.Join(words[start:], " "))
		}
	}
	return sentences
}

// acceptInput reports whether a sentence is usable as training input.
func acceptInput(sentence string) bool {
	if strings.TrimSpace(sentence) == "" {
		return false
	}
	return !rejectPattern.MatchString(quoteFolder.Replace(sentence))
}
