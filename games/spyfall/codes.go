/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	// CodeAlphabet leaves out 0, O, 1 and I so codes survive being read
	// aloud across a room.
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	MinCodeLength     = 4
	MaxCodeLength     = 6
	DefaultCodeLength = 6

	maxCodeAttempts = 64
)

// Random is the source of every random choice the game makes. A
// *rand.Rand satisfies it.
type Random interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

type globalRandom struct{}

func (globalRandom) IntN(n int) int { return rand.IntN(n) }

func (globalRandom) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// DefaultRandom uses the automatically seeded math/rand/v2 source.
var DefaultRandom Random = globalRandom{}

func newCode(rng Random, length int) string {
	var b strings.Builder
	b.Grow(length)

	for range length {
		b.WriteByte(CodeAlphabet[rng.IntN(len(CodeAlphabet))])
	}

	return b.String()
}

// NormalizeCode uppercases a user supplied code and reports whether it could
// have been generated by this package.
func NormalizeCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))

	if len(code) < MinCodeLength || len(code) > MaxCodeLength {
		return code, false
	}

	for i := range len(code) {
		if !strings.ContainsRune(CodeAlphabet, rune(code[i])) {
			return code, false
		}
	}

	return code, true
}

// generateCode draws codes until one is not already in the store.
func generateCode(ctx context.Context, store Store, rng Random, length int) (string, error) {
	for range maxCodeAttempts {
		code := newCode(rng, length)

		exists, err := store.Exists(ctx, code)
		if err != nil {
			return "", err
		}

		if !exists {
			return code, nil
		}
	}

	return "", fmt.Errorf("%w: no free code after %d attempts", ErrCodeSpaceExhausted, maxCodeAttempts)
}
