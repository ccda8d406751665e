package ocr

import (
	"fmt"
	"strings"

	"github.com/lu4p/cat"
)

// extractOffice reads RTF and ODT menus. Lines are trimmed so the parser sees
// the same shape it gets from plain text.
func extractOffice(content []byte) (string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n"), nil
}
