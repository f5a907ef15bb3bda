package session

import (
	"bytes"
	"testing"
)

func TestGenerateMapsEntropyToLetters(t *testing.T) {
	g := NewIDGenerator(bytes.NewReader([]byte{0, 1, 2, 25, 26, 51}))

	id, err := g.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if id != "ABCZAZ" {
		t.Fatalf("expected ABCZAZ, got %q", id)
	}
}

func TestGenerateShape(t *testing.T) {
	g := NewIDGenerator(nil)

	for i := 0; i < 64; i++ {
		id, err := g.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(id) != idLength {
			t.Fatalf("expected %d characters, got %q", idLength, id)
		}
		for _, r := range id {
			if r < 'A' || r > 'Z' {
				t.Fatalf("expected only uppercase letters, got %q", id)
			}
		}
	}
}

func TestGenerateFailsOnExhaustedSource(t *testing.T) {
	g := NewIDGenerator(bytes.NewReader([]byte{1, 2, 3}))

	if _, err := g.Generate(); err == nil {
		t.Fatalf("expected an error from a short entropy source")
	}
}
