// Package typo mutates generated text with small randomized character edits
// so bot comments read less machine-perfect.
package typo

import "math/rand"

// Strings shorter than this are never mutated.
const minMutableLength = 5

// Humanize applies up to maxTypos character-level edits to text with the
// given chance. Each edit changes length by at most one character, so the
// output length never drifts more than maxTypos from the input.
func Humanize(rng *rand.Rand, text string, chance float64, maxTypos int) string {
	if chance <= 0 || maxTypos <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) < minMutableLength {
		return text
	}
	if rng.Float64() >= chance {
		return text
	}

	edits := 1
	if maxTypos > 1 {
		edits += rng.Intn(maxTypos)
	}
	for i := 0; i < edits; i++ {
		runes = applyEdit(rng, runes)
	}
	return string(runes)
}

func applyEdit(rng *rand.Rand, runes []rune) []rune {
	if len(runes) < 2 {
		return runes
	}
	idx := rng.Intn(len(runes) - 1)

	switch rng.Intn(3) {
	case 0: // swap adjacent characters
		runes[idx], runes[idx+1] = runes[idx+1], runes[idx]
		return runes
	case 1: // drop a character, but never below the mutable floor
		if len(runes) <= minMutableLength {
			runes[idx], runes[idx+1] = runes[idx+1], runes[idx]
			return runes
		}
		return append(runes[:idx], runes[idx+1:]...)
	default: // duplicate a character
		out := make([]rune, 0, len(runes)+1)
		out = append(out, runes[:idx+1]...)
		out = append(out, runes[idx])
		out = append(out, runes[idx+1:]...)
		return out
	}
}
