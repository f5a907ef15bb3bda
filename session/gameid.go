package session

import (
	"crypto/rand"
	"io"
)

const (
	idLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	idLength  = 6
)

// IDGenerator produces short shareable game ids: six uppercase letters.
// Ids are not guaranteed unique; the store's create-if-absent is the
// collision check, and the engine retries on collision.
type IDGenerator struct {
	src io.Reader
}

// NewIDGenerator returns a generator reading entropy from src, or from
// crypto/rand when src is nil.
func NewIDGenerator(src io.Reader) *IDGenerator {
	if src == nil {
		src = rand.Reader
	}
	return &IDGenerator{src: src}
}

func (g *IDGenerator) Generate() (string, error) {
	buf := make([]byte, idLength)
	if _, err := io.ReadFull(g.src, buf); err != nil {
		return "", err
	}
	out := make([]byte, idLength)
	for i, b := range buf {
		out[i] = idLetters[int(b)%len(idLetters)]
	}
	return string(out), nil
}
