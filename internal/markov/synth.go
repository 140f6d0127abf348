package markov

import (
	"math"
	"math/rand/v2"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultTries is how many walks a synthesizer makes per sentence.
	DefaultTries = 10000
	// DefaultMaxOverlapRatio bounds copied runs as a share of sentence words.
	DefaultMaxOverlapRatio = 0.5
	// DefaultMaxOverlapTotal bounds copied runs in words.
	DefaultMaxOverlapTotal = 10
)

// SentenceSource produces sentences until it runs out of attempts.
type SentenceSource interface {
	MakeSentence() (string, bool)
}

// Synthesizer draws sentences from a model, rejecting ones that copy too
// long a run of words from the training text.
type Synthesizer struct {
	Tries           int
	MaxOverlapRatio float64
	MaxOverlapTotal int

	model *Model
	rng   *rand.Rand
}

// NewSynthesizer returns a Synthesizer with the default limits.
func NewSynthesizer(m *Model, rng *rand.Rand) *Synthesizer {
	return &Synthesizer{
		Tries:           DefaultTries,
		MaxOverlapRatio: DefaultMaxOverlapRatio,
		MaxOverlapTotal: DefaultMaxOverlapTotal,
		model:           m,
		rng:             rng,
	}
}

// MakeSentence returns a novel sentence, or false when every attempt failed.
func (s *Synthesizer) MakeSentence() (string, bool) {
	return s.make(0)
}

// MakeShortSentence is MakeSentence restricted to maxChars runes.
func (s *Synthesizer) MakeShortSentence(maxChars int) (string, bool) {
	return s.make(maxChars)
}

func (s *Synthesizer) make(maxChars int) (string, bool) {
	for i := 0; i < s.Tries; i++ {
		words := s.model.chain.walk(s.rng)
		if len(words) == 0 {
			continue
		}
		sentence := strings.Join(words, " ")
		if maxChars > 0 && utf8.RuneCountInString(sentence) > maxChars {
			continue
		}
		if s.novel(words) {
			return sentence, true
		}
	}
	return "", false
}

// novel reports whether no run of overlapMax+1 consecutive words appears
// in the training text.
func (s *Synthesizer) novel(words []string) bool {
	ratio := int(math.RoundToEven(s.MaxOverlapRatio * float64(len(words))))
	overlapMax := min(s.MaxOverlapTotal, ratio)
	span := overlapMax + 1
	grams := max(len(words)-overlapMax, 1)
	for i := 0; i < grams; i++ {
		gram := strings.Join(words[i:min(i+span, len(words))], " ")
		if strings.Contains(s.model.rejoined, gram) {
			return false
		}
	}
	return true
}

// Paragraph joins sentences until a random stop whose likelihood grows as
// the text approaches target runes.
func Paragraph(src SentenceSource, rng *rand.Rand, target float64) string {
	var b strings.Builder
	emitted := 0
	for {
		portion := 1.0
		if target > 0 {
			portion = float64(emitted) / target
		}
		if rng.Float64() > ContinueChance(portion) {
			break
		}
		sentence, ok := src.MakeSentence()
		if !ok {
			break
		}
		sentence = normalizeSentence(sentence, rng)
		if sentence == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
			emitted++
		}
		b.WriteString(sentence)
		emitted += utf8.RuneCountInString(sentence)
	}
	return b.String()
}

// ContinueChance is the probability of adding another sentence when
// portion of the target length has been emitted.
func ContinueChance(portion float64) float64 {
	return max(0, 1-portion) + 0.1
}

// Body appends sentences while the text is shorter than target runes.
func Body(src SentenceSource, target float64) string {
	var parts []string
	length := 0
	for float64(length) < target {
		sentence, ok := src.MakeSentence()
		if !ok {
			break
		}
		parts = append(parts, sentence)
		length += utf8.RuneCountInString(sentence) + 1
	}
	return strings.Join(parts, " ")
}

// Title generates a short sentence without trailing periods.
func Title(s *Synthesizer, maxChars int) (string, bool) {
	title, ok := s.MakeShortSentence(maxChars)
	if !ok {
		return "", false
	}
	title = strings.TrimRight(title, ".")
	if strings.TrimSpace(title) == "" {
		return "", false
	}
	return title, true
}

var terminals = []string{".", "!", "?"}

// normalizeSentence trims, capitalizes the first letter and ensures
// terminal punctuation.
func normalizeSentence(s string, rng *rand.Rand) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	if unicode.IsLower(r) {
		s = string(unicode.ToUpper(r)) + s[size:]
	}
	last, _ := utf8.DecodeLastRuneInString(strings.TrimRight(s, closers))
	if last != '.' && last != '!' && last != '?' {
		s += terminals[rng.IntN(len(terminals))]
	}
	return s
}
