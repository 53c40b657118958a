package token

import (
	"crypto/rand"
	"fmt"
)

// Alphabet is the fixed character set tokens are drawn from. Its length is 64
// so mapping a random byte with a modulo introduces no bias.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// DefaultLength is the default token length. 43 characters over a 64-symbol
// alphabet gives 258 bits of entropy, enough to make guessing a token within
// its validity window infeasible.
const DefaultLength = 43

// Generate returns a cryptographically random string of the given length
// drawn from Alphabet. It fails only if the system entropy source fails.
func Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", length)
	}
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading entropy source: %w", err)
	}
	for i, v := range b {
		b[i] = Alphabet[int(v)%len(Alphabet)]
	}
	return string(b), nil
}
