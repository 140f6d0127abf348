package markov

import (
	"math/rand/v2"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

const (
	begin = "___BEGIN__"
	end   = "___END__"

	// maxWalk bounds a single walk through a cyclic chain.
	maxWalk = 1000
)

// transitions holds the follow-token distribution for one state.
// Tokens keep first-seen order so seeded walks are reproducible.
type transitions struct {
	tokens []string
	counts []float64
	cum    []float64
	index  map[string]int
}

func (t *transitions) add(token string) {
	if i, ok := t.index[token]; ok {
		t.counts[i]++
		return
	}
	t.index[token] = len(t.tokens)
	t.tokens = append(t.tokens, token)
	t.counts = append(t.counts, 1)
}

func (t *transitions) freeze() {
	t.cum = make([]float64, len(t.counts))
	floats.CumSum(t.cum, t.counts)
	t.index = nil
}

func (t *transitions) choose(rng *rand.Rand) string {
	total := t.cum[len(t.cum)-1]
	r := rng.Float64() * total
	i := sort.Search(len(t.cum), func(i int) bool { return t.cum[i] > r })
	if i == len(t.cum) {
		i = len(t.cum) - 1
	}
	return t.tokens[i]
}

// chain maps a state (order preceding tokens) to its follow distribution.
type chain struct {
	order  int
	states map[string]*transitions
}

func stateKey(state []string) string {
	return strings.Join(state, "\x1f")
}

func newChain(order int, runs [][]string) *chain {
	c := &chain{order: order, states: make(map[string]*transitions)}
	for _, run := range runs {
		items := make([]string, 0, order+len(run)+1)
		for i := 0; i < order; i++ {
			items = append(items, begin)
		}
		items = append(items, run...)
		items = append(items, end)

		for i := 0; i <= len(run); i++ {
			key := stateKey(items[i : i+order])
			t, ok := c.states[key]
			if !ok {
				t = &transitions{index: make(map[string]int)}
				c.states[key] = t
			}
			t.add(items[i+order])
		}
	}
	for _, t := range c.states {
		t.freeze()
	}
	return c
}

func (c *chain) hasStart() bool {
	start := make([]string, c.order)
	for i := range start {
		start[i] = begin
	}
	_, ok := c.states[stateKey(start)]
	return ok
}

// walk generates one run of tokens from the begin state until end.
func (c *chain) walk(rng *rand.Rand) []string {
	state := make([]string, c.order)
	for i := range state {
		state[i] = begin
	}
	var words []string
	for {
		t, ok := c.states[stateKey(state)]
		if !ok {
			return words
		}
		next := t.choose(rng)
		if next == end {
			return words
		}
		words = append(words, next)
		if len(words) > maxWalk {
			return nil
		}
		state = append(state[1:], next)
	}
}
