// Package markov builds word-level Markov chain text models from sample
// text and synthesizes new sentences and paragraphs from them.
package markov

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/montanaflynn/stats"
	"golang.org/x/text/unicode/norm"
)

// ErrInsufficientData is returned when samples yield no usable sentences.
var ErrInsufficientData = errors.New("insufficient data")

const (
	// MaxMeanLength caps the mean sample length used as a generation target.
	MaxMeanLength = 250
	// LongTextThreshold is the mean length at which order 3 is used.
	LongTextThreshold = 140
)

// Model is a trained text model. It is immutable once built.
type Model struct {
	Order      int
	MeanLength float64
	Sentences  int

	chain    *chain
	rejoined string
}

// ChooseOrder returns the chain order for a mean sample length.
func ChooseOrder(meanLength float64) int {
	if meanLength >= LongTextThreshold {
		return 3
	}
	return 2
}

// Build trains a model choosing the order from the mean sample length.
func Build(samples []string) (*Model, error) {
	clean, mean, err := prepare(samples)
	if err != nil {
		return nil, err
	}
	return build(clean, mean, ChooseOrder(mean))
}

// BuildWithOrder trains a model with a fixed order.
func BuildWithOrder(samples []string, order int) (*Model, error) {
	if order < 1 {
		return nil, fmt.Errorf("invalid order %d", order)
	}
	clean, mean, err := prepare(samples)
	if err != nil {
		return nil, err
	}
	return build(clean, mean, order)
}

// MeanLength returns the mean rune length of samples, capped at MaxMeanLength.
func MeanLength(samples []string) float64 {
	if len(samples) == 0 {
		return 0
	}
	lengths := make(stats.Float64Data, len(samples))
	for i, s := range samples {
		lengths[i] = float64(utf8.RuneCountInString(s))
	}
	mean, err := lengths.Mean()
	if err != nil {
		return 0
	}
	return min(mean, MaxMeanLength)
}

func prepare(samples []string) ([]string, float64, error) {
	clean := make([]string, 0, len(samples))
	for _, s := range samples {
		s = norm.NFC.String(html.UnescapeString(s))
		if strings.TrimSpace(s) == "" {
			continue
		}
		clean = append(clean, s)
	}
	if len(clean) == 0 {
		return nil, 0, ErrInsufficientData
	}
	return clean, MeanLength(clean), nil
}

func build(samples []string, mean float64, order int) (*Model, error) {
	var runs [][]string
	for _, s := range samples {
		for _, sentence := range splitSentences(s) {
			if !acceptInput(sentence) {
				continue
			}
			words := strings.Fields(sentence)
			if len(words) == 0 {
				continue
			}
			runs = append(runs, words)
		}
	}
	if len(runs) == 0 {
		return nil, ErrInsufficientData
	}

	c := newChain(order, runs)
	if !c.hasStart() {
		return nil, ErrInsufficientData
	}

	joined := make([]string, len(runs))
	for i, r := range runs {
		joined[i] = strings.Join(r, " ")
	}

	return &Model{
		Order:      order,
		MeanLength: mean,
		Sentences:  len(runs),
		chain:      c,
		rejoined:   strings.Join(joined, " "),
	}, nil
}
