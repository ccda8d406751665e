// Package cli provides output helpers for the wtm command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/wtm/internal/models"
	"github.com/hyperjump/wtm/pkg/utils"
)

// OutputFormat is the format for match result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputCompact prints one tab-separated line per menu item with its best match.
	OutputCompact OutputFormat = "compact"
)

// ParseOutputFormat validates a --output flag value. Empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON, OutputCompact:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or compact)", s)
	}
}

// WriteMatchResults writes match results to w in the given format.
func WriteMatchResults(w io.Writer, response *models.MatchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		writeCompact(w, response)
		return nil
	default:
		writeText(w, response)
		return nil
	}
}

func writeText(w io.Writer, response *models.MatchResponse) {
	matched := 0
	for _, r := range response.Results {
		if len(r.Candidates) > 0 {
			matched++
		}
	}
	fmt.Fprintf(w, "\n%d menu items, %d matched in %dms\n\n", len(response.Results), matched, response.QueryTime)
	for i, r := range response.Results {
		fmt.Fprintf(w, "%2d. %s", i+1, r.Item.Name)
		if r.Item.PriceText != nil {
			fmt.Fprintf(w, "  (%s)", *r.Item.PriceText)
		}
		fmt.Fprintln(w)
		if len(r.Candidates) == 0 {
			fmt.Fprintln(w, "    no match")
			continue
		}
		for _, c := range r.Candidates {
			fmt.Fprintf(w, "    %s %.4f  #%d\n", utils.PadRight(utils.Truncate(candidateName(c), 40), 40), c.Similarity, candidateID(c))
		}
	}
	fmt.Fprintln(w)
}

func writeCompact(w io.Writer, response *models.MatchResponse) {
	for _, r := range response.Results {
		price := ""
		if r.Item.PriceText != nil {
			price = *r.Item.PriceText
		}
		best, score := "-", ""
		if len(r.Candidates) > 0 {
			best = candidateName(r.Candidates[0])
			score = fmt.Sprintf("%.4f", r.Candidates[0].Similarity)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Item.Name, price, best, score)
	}
}

func candidateName(c models.MatchCandidate) string {
	if c.Food == nil {
		return "?"
	}
	return c.Food.Name
}

func candidateID(c models.MatchCandidate) int64 {
	if c.Food == nil {
		return 0
	}
	return c.Food.ID
}
