package tokenizer

import "unicode"

// HeuristicName identifies the dependency-free counter used by tests and
// offline runs. It approximates BPE behavior: words split into 4-rune
// pieces, punctuation runs count one piece each.
const HeuristicName = "heuristic"

const heuristicPieceRunes = 4

type heuristicCounter struct{}

func (heuristicCounter) Name() string { return HeuristicName }

func (heuristicCounter) Count(text string) int {
	n := 0
	scanPieces(text, func(start, end int) bool {
		n++
		return true
	})
	return n
}

func (heuristicCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	n := 0
	cut := 0
	scanPieces(text, func(start, end int) bool {
		n++
		cut = end
		return n < maxTokens
	})
	if n < maxTokens {
		return text
	}
	return string([]rune(text)[:cut])
}

// scanPieces walks text and reports piece boundaries as rune offsets.
// The visitor returns false to stop early.
func scanPieces(text string, visit func(start, end int) bool) {
	runes := []rune(text)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) {
				j++
			}
			// Long words count one piece per heuristicPieceRunes runes.
			for s := i; s < j; s += heuristicPieceRunes {
				e := s + heuristicPieceRunes
				if e > j {
					e = j
				}
				if !visit(s, e) {
					return
				}
			}
			i = j
		default:
			// A run of punctuation or symbols is one piece.
			j := i
			for j < len(runes) && !unicode.IsSpace(runes[j]) &&
				!unicode.IsLetter(runes[j]) && !unicode.IsDigit(runes[j]) {
				j++
			}
			if !visit(i, j) {
				return
			}
			i = j
		}
	}
}
