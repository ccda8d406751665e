// Package menuparse splits raw OCR text into candidate menu items.
package menuparse

import (
	"regexp"
	"strings"

	"github.com/hyperjump/wtm/internal/models"
)

// itemPattern splits "name SEP price" on the first ':', '—' or '-'.
var itemPattern = regexp.MustCompile(`^(.*?)\s*[:—-]\s*(.*?)\s*$`)

// Parse returns one item per non-empty line of rawText, in input order.
// A line yields a name/price pair only when both sides of the first separator
// are non-empty; otherwise the whole trimmed line is the name and PriceText is nil.
func Parse(rawText string) []models.ParsedItem {
	lines := strings.Split(rawText, "\n")
	items := make([]models.ParsedItem, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		items = append(items, parseLine(line))
	}
	return items
}

func parseLine(line string) models.ParsedItem {
	m := itemPattern.FindStringSubmatch(line)
	if m != nil {
		name := strings.TrimSpace(m[1])
		price := strings.TrimSpace(m[2])
		if name != "" && price != "" {
			return models.ParsedItem{Name: name, PriceText: &price}
		}
	}
	return models.ParsedItem{Name: line}
}

// Format renders an item back to a single menu line.
func Format(item models.ParsedItem) string {
	if item.PriceText == nil {
		return item.Name
	}
	return item.Name + ": " + *item.PriceText
}

// FormatAll renders items as newline-separated lines; Parse(FormatAll(items)) returns items.
func FormatAll(items []models.ParsedItem) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = Format(item)
	}
	return strings.Join(lines, "\n")
}
