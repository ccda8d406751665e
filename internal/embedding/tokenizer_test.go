package embedding

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("hello world", 10)
	if len(ids) != 10 {
		t.Errorf("len(ids)=%d", len(ids))
	}
	if ids[0] != 101 {
		t.Errorf("expected CLS 101, got %d", ids[0])
	}
	if attn[0] != 1 || attn[3] != 1 || attn[4] != 0 {
		t.Errorf("unexpected attention mask: %v", attn)
	}
	if ids[3] != 102 {
		t.Errorf("expected SEP at 3, got %d", ids[3])
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  a  b  c  ")
	if len(words) != 3 {
		t.Errorf("expected 3 words, got %v", words)
	}
	if len(SplitWords("")) != 0 {
		t.Error("empty string should return no words")
	}
}

func TestHashString(t *testing.T) {
	h := HashString("abc")
	if h == 0 {
		t.Error("hash should be non-zero")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString(strings.Repeat("김치찌개", 50)) < 0 {
		t.Error("hash should be non-negative")
	}
}

func testVocab() map[string]int64 {
	return map[string]int64{
		"[PAD]": 0, "[UNK]": 1, "[CLS]": 2, "[SEP]": 3,
		"김치": 4, "##찌개": 5, "pasta": 6, ":": 7, "##s": 8,
	}
}

func TestWordPieceTokenizer_Tokenize(t *testing.T) {
	tok, err := NewWordPieceTokenizer(testVocab(), true)
	if err != nil {
		t.Fatal(err)
	}
	ids, attn, types := tok.Tokenize("김치찌개: Pastas 피자", 10)
	want := []int64{2, 4, 5, 7, 6, 8, 1, 3, 0, 0}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids: got %v, want %v", ids, want)
		}
	}
	if attn[7] != 1 || attn[8] != 0 {
		t.Errorf("unexpected attention mask: %v", attn)
	}
	for _, v := range types {
		if v != 0 {
			t.Fatalf("token types should be zero: %v", types)
		}
	}
}

func TestWordPieceTokenizer_truncates(t *testing.T) {
	tok, err := NewWordPieceTokenizer(testVocab(), true)
	if err != nil {
		t.Fatal(err)
	}
	ids, _, _ := tok.Tokenize("pasta pasta pasta pasta", 4)
	want := []int64{2, 6, 6, 3}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}

func TestLoadWordPieceTokenizer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte("[PAD]\n[UNK]\n[CLS]\n[SEP]\npasta\n"), 0600); err != nil {
		t.Fatal(err)
	}
	tok, err := LoadWordPieceTokenizer(path, false)
	if err != nil {
		t.Fatal(err)
	}
	ids, _, _ := tok.Tokenize("pasta", 4)
	if ids[0] != 2 || ids[1] != 4 || ids[2] != 3 {
		t.Errorf("got %v", ids)
	}

	if err := os.WriteFile(path, []byte("[PAD]\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadWordPieceTokenizer(path, false); err == nil {
		t.Error("expected error for vocab without special tokens")
	}
}
