package keyword

import (
	"sort"
	"strings"
	"sync"
)

// Suggestion is a dictionary term close to a query term.
type Suggestion struct {
	Term      string  `json:"term"`
	Distance  int     `json:"distance"`
	Frequency int     `json:"frequency"`
	Score     float64 `json:"score"`
}

// Suggester proposes corrected food-name queries from the indexed vocabulary.
// Typical use is "did you mean" when a name search returns nothing.
type Suggester struct {
	dictionary     TermDictionary
	maxDistance    int
	maxSuggestions int

	mu    sync.RWMutex
	terms []string
	set   map[string]struct{}
	valid bool
}

// SuggesterOption configures a Suggester.
type SuggesterOption func(*Suggester)

// WithMaxDistance sets the maximum edit distance for suggestions.
func WithMaxDistance(d int) SuggesterOption {
	return func(s *Suggester) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMaxSuggestions sets the maximum number of suggestions per term.
func WithMaxSuggestions(n int) SuggesterOption {
	return func(s *Suggester) {
		if n > 0 {
			s.maxSuggestions = n
		}
	}
}

// NewSuggester returns a Suggester reading terms from dict.
func NewSuggester(dict TermDictionary, opts ...SuggesterOption) *Suggester {
	s := &Suggester{
		dictionary:     dict,
		maxDistance:    2,
		maxSuggestions: 5,
		set:            make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate forces the vocabulary to be reloaded on next use. Call it after
// the name index changes.
func (s *Suggester) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}

func (s *Suggester) vocabulary() ([]string, map[string]struct{}, error) {
	s.mu.RLock()
	if s.valid {
		terms, set := s.terms, s.set
		s.mu.RUnlock()
		return terms, set, nil
	}
	s.mu.RUnlock()

	terms, err := s.dictionary.AllTerms()
	if err != nil {
		return nil, nil, err
	}
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[strings.ToLower(t)] = struct{}{}
	}
	s.mu.Lock()
	s.terms, s.set, s.valid = terms, set, true
	s.mu.Unlock()
	return terms, set, nil
}

// Suggest returns dictionary terms within the edit distance of term, best first.
func (s *Suggester) Suggest(term string) ([]Suggestion, error) {
	terms, _, err := s.vocabulary()
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(term)
	n := len([]rune(term))

	out := make([]Suggestion, 0)
	for _, candidate := range terms {
		if candidate == term {
			continue
		}
		diff := len([]rune(candidate)) - n
		if diff < 0 {
			diff = -diff
		}
		if diff > s.maxDistance {
			continue
		}
		d := LevenshteinDistance(term, candidate)
		if d > s.maxDistance {
			continue
		}
		freq, err := s.dictionary.TermFrequency(candidate)
		if err != nil || freq == 0 {
			continue
		}
		out = append(out, Suggestion{
			Term:      candidate,
			Distance:  d,
			Frequency: freq,
			Score:     float64(freq) / float64(d+1),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > s.maxSuggestions {
		out = out[:s.maxSuggestions]
	}
	return out, nil
}

// Correct replaces each unknown query term with its best suggestion. The
// second result reports whether anything changed.
func (s *Suggester) Correct(query string) (string, bool, error) {
	_, set, err := s.vocabulary()
	if err != nil {
		return "", false, err
	}
	terms := tokenizeQuery(query)
	changed := false
	for i, term := range terms {
		if _, ok := set[term]; ok {
			continue
		}
		sugg, err := s.Suggest(term)
		if err != nil {
			return "", false, err
		}
		if len(sugg) > 0 {
			terms[i] = sugg[0].Term
			changed = true
		}
	}
	if !changed {
		return query, false, nil
	}
	return strings.Join(terms, " "), true, nil
}
