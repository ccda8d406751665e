package models

import (
	"encoding/json"
	"fmt"
)

// ParsedItem is one candidate line parsed from menu OCR text.
// PriceText is nil when the line had no recognizable name/price separator.
type ParsedItem struct {
	Name      string  `json:"name"`
	PriceText *string `json:"price_text"`
}

// MatchCandidate is a catalog food with its cosine similarity to a parsed item.
type MatchCandidate struct {
	Food       *Food   `json:"-"`
	Similarity float64 `json:"-"`
}

// MarshalJSON renders the candidate as {food_id, food_name, similarity}.
func (c MatchCandidate) MarshalJSON() ([]byte, error) {
	out := struct {
		FoodID     int64   `json:"food_id"`
		FoodName   string  `json:"food_name"`
		Similarity float64 `json:"similarity"`
	}{Similarity: c.Similarity}
	if c.Food != nil {
		out.FoodID = c.Food.ID
		out.FoodName = c.Food.Name
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the {food_id, food_name, similarity} form back into a
// candidate with a minimal Food (used by HTTP clients of the match API).
func (c *MatchCandidate) UnmarshalJSON(data []byte) error {
	var in struct {
		FoodID     int64   `json:"food_id"`
		FoodName   string  `json:"food_name"`
		Similarity float64 `json:"similarity"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	c.Food = &Food{ID: in.FoodID, Name: in.FoodName}
	c.Similarity = in.Similarity
	return nil
}

// MatchResult pairs a parsed item with its ranked candidates (possibly empty).
type MatchResult struct {
	Item       ParsedItem       `json:"-"`
	Candidates []MatchCandidate `json:"-"`
}

type matchResultJSON struct {
	ParsedName   string           `json:"parsed_name"`
	PriceText    *string          `json:"price_text"`
	SimilarFoods []MatchCandidate `json:"similar_foods"`
}

// MarshalJSON renders the result as {parsed_name, price_text, similar_foods}.
// similar_foods is always an array, never null.
func (r MatchResult) MarshalJSON() ([]byte, error) {
	cands := r.Candidates
	if cands == nil {
		cands = []MatchCandidate{}
	}
	return json.Marshal(matchResultJSON{
		ParsedName:   r.Item.Name,
		PriceText:    r.Item.PriceText,
		SimilarFoods: cands,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *MatchResult) UnmarshalJSON(data []byte) error {
	var in matchResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Item = ParsedItem{Name: in.ParsedName, PriceText: in.PriceText}
	r.Candidates = in.SimilarFoods
	if r.Candidates == nil {
		r.Candidates = []MatchCandidate{}
	}
	return nil
}

// MatchRequest is the body of a match call.
type MatchRequest struct {
	Text      string   `json:"text"`
	TopK      int      `json:"top_k,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// Validate checks the request. TopK of zero means "use the configured default";
// values above maxTopK are capped.
func (q *MatchRequest) Validate(maxTopK int) error {
	if q.Text == "" {
		return fmt.Errorf("text cannot be empty")
	}
	if q.TopK < 0 {
		return fmt.Errorf("top_k cannot be negative")
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	if q.Threshold != nil && (*q.Threshold < -1 || *q.Threshold > 1) {
		return fmt.Errorf("threshold must be within [-1, 1]")
	}
	return nil
}

// MatchResponse is the response of a match call.
type MatchResponse struct {
	MatchID   string        `json:"match_id"`
	Results   []MatchResult `json:"results"`
	QueryTime int64         `json:"query_time_ms"`
}
