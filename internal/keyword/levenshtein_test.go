package keyword

import "testing"

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"pizza", "pizza", 0},
		{"pizza", "piza", 1},
		{"pizza", "pizzas", 1},
		{"pizza", "pizze", 1},
		{"kitten", "sitting", 3},
		{"김치찌개", "김치찌게", 1},
		{"김치찌개", "된장찌개", 2},
	}
	for _, tt := range tests {
		if got := LevenshteinDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := LevenshteinDistance(tt.b, tt.a); got != tt.want {
			t.Errorf("LevenshteinDistance(%q, %q) not symmetric: %d", tt.b, tt.a, got)
		}
	}
}
