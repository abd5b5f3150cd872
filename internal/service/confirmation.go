package service

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"io"
)

// ConfirmationNumberLength is the length of generated confirmation numbers.
const ConfirmationNumberLength = 10

// ConfirmationGenerator produces confirmation numbers from a random source.
type ConfirmationGenerator struct {
	random io.Reader
}

// NewConfirmationGenerator uses crypto/rand when random is nil.
func NewConfirmationGenerator(random io.Reader) *ConfirmationGenerator {
	if random == nil {
		random = rand.Reader
	}
	return &ConfirmationGenerator{random: random}
}

// Next returns a 10 character code from the base32 alphabet (A-Z, 2-7).
func (g *ConfirmationGenerator) Next() (string, error) {
	buf := make([]byte, 10)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("read confirmation entropy: %w", err)
	}
	return base32.StdEncoding.EncodeToString(buf)[:ConfirmationNumberLength], nil
}
