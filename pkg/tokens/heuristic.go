package tokens

import (
	"regexp"
	"unicode/utf8"
)

const (
	heuristicFactor = 1.3
	charsPerToken   = 4
)

var wordOrPunct = regexp.MustCompile(`[\p{L}\p{N}_]+|[^\p{L}\p{N}_\s]`)

func heuristicCount(text string) int {
	n := len(wordOrPunct.FindAllStringIndex(text, -1))
	return int(float64(n) * heuristicFactor)
}

// heuristicTruncate cuts at charsPerToken characters per token and shrinks
// the cut until the estimate fits. It may cut in the middle of a word.
func heuristicTruncate(text string, maxTokens int) string {
	cut := runeOffset(text, maxTokens*charsPerToken)
	for cut > 0 {
		out := text[:cut]
		if heuristicCount(out) <= maxTokens {
			return out
		}
		cut = runeOffset(text, utf8.RuneCountInString(out)*9/10)
	}
	return ""
}

func heuristicTruncateFront(text string, maxTokens int) string {
	total := utf8.RuneCountInString(text)
	keep := maxTokens * charsPerToken
	for keep > 0 {
		if keep > total {
			keep = total
		}
		out := text[runeOffset(text, total-keep):]
		if heuristicCount(out) <= maxTokens {
			return out
		}
		keep = keep * 9 / 10
	}
	return ""
}

// runeOffset returns the byte offset of the n-th rune, or len(s).
func runeOffset(s string, n int) int {
	if n <= 0 {
		return 0
	}
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}
