package services

import (
	"unicode"
	"unicode/utf8"

	"docqa-platform/internal/tokenizer"
)

// Chunker splits extracted text into token-bounded, sentence-aligned spans
// with a fixed-size overlap between consecutive chunks.
type Chunker struct {
	counter   tokenizer.Counter
	maxTokens int
	minTokens int
	overlap   int
}

// NewChunker creates a chunker. Bounds are validated by config loading.
func NewChunker(counter tokenizer.Counter, maxTokens, minTokens, overlapTokens int) *Chunker {
	return &Chunker{
		counter:   counter,
		maxTokens: maxTokens,
		minTokens: minTokens,
		overlap:   overlapTokens,
	}
}

// ChunkSpan is one chunk with its position in the source text. StartRune and
// EndRune are rune offsets into the original text, overlap included.
type ChunkSpan struct {
	Text       string
	StartRune  int
	EndRune    int
	TokenCount int
}

type sentence struct {
	start  int // rune offset
	end    int
	tokens int
}

// Chunk splits text into spans of at most maxTokens tokens, breaking on
// sentence boundaries. Consecutive chunks share up to overlap tokens of
// trailing sentences. The final chunk may fall below minTokens.
func (c *Chunker) Chunk(text string) []ChunkSpan {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	sentences := c.splitSentences(runes)
	if len(sentences) == 0 {
		return nil
	}

	groups, sentences := c.packSentences(runes, sentences)

	spans := make([]ChunkSpan, 0, len(groups))
	prevStart := -1
	for gi, g := range groups {
		start := sentences[g.first].start
		if gi > 0 {
			start = c.overlapStart(sentences, groups[gi-1], prevStart)
			if start > sentences[g.first].start {
				start = sentences[g.first].start
			}
		}
		end := sentences[g.last].end

		chunkText := string(runes[start:end])
		spans = append(spans, ChunkSpan{
			Text:       chunkText,
			StartRune:  start,
			EndRune:    end,
			TokenCount: c.counter.Count(chunkText),
		})
		prevStart = start
	}
	return spans
}

type group struct {
	first, last int // sentence indices, inclusive
	tokens      int
}

// budget is the token room for new content in a chunk. The overlap region
// carried in from the previous chunk consumes the rest, keeping the full
// chunk at or under maxTokens.
func (c *Chunker) budget() int {
	b := c.maxTokens - c.overlap
	if b < 1 {
		b = 1
	}
	return b
}

// splitSentences produces contiguous sentence spans. A sentence ends after a
// run of terminal punctuation followed by whitespace, or at a blank line.
// Sentences longer than maxTokens are hard-split on token boundaries.
func (c *Chunker) splitSentences(runes []rune) []sentence {
	var out []sentence
	start := 0
	i := 0
	for i < len(runes) {
		r := runes[i]
		isEnd := false
		switch {
		case r == '.' || r == '!' || r == '?':
			j := i
			for j < len(runes) && (runes[j] == '.' || runes[j] == '!' || runes[j] == '?') {
				j++
			}
			if j >= len(runes) || unicode.IsSpace(runes[j]) {
				i = j
				isEnd = true
			} else {
				i = j
			}
		case r == '\n' && i+1 < len(runes) && runes[i+1] == '\n':
			isEnd = true
			i++
		default:
			i++
		}

		if isEnd {
			// Absorb trailing whitespace so spans stay contiguous.
			for i < len(runes) && unicode.IsSpace(runes[i]) {
				i++
			}
			out = c.appendSentence(out, runes, start, i)
			start = i
		}
	}
	if start < len(runes) {
		out = c.appendSentence(out, runes, start, len(runes))
	}
	return out
}

// appendSentence adds the span [start, end), hard-splitting it when it alone
// exceeds the chunk budget.
func (c *Chunker) appendSentence(out []sentence, runes []rune, start, end int) []sentence {
	text := string(runes[start:end])
	tokens := c.counter.Count(text)
	if tokens <= c.budget() {
		if tokens > 0 {
			out = append(out, sentence{start: start, end: end, tokens: tokens})
		}
		return out
	}

	for start < end {
		remaining := string(runes[start:end])
		piece := c.counter.Truncate(remaining, c.budget())
		pieceRunes := utf8.RuneCountInString(piece)
		if pieceRunes == 0 || pieceRunes >= end-start {
			pieceRunes = end - start
		}
		pieceText := string(runes[start : start+pieceRunes])
		out = append(out, sentence{
			start:  start,
			end:    start + pieceRunes,
			tokens: c.counter.Count(pieceText),
		})
		start += pieceRunes
	}
	return out
}

// packSentences greedily fills groups up to maxTokens. A group that would
// close below minTokens instead takes a token-boundary slice of the
// overflowing sentence, so only the final chunk may fall under the minimum.
// Returns the groups and the sentence list, which gains entries when a
// sentence is sliced.
func (c *Chunker) packSentences(runes []rune, sentences []sentence) ([]group, []sentence) {
	var groups []group
	cur := group{first: 0, last: -1}
	for i := 0; i < len(sentences); i++ {
		s := sentences[i]
		if cur.last >= 0 && cur.tokens+s.tokens > c.budget() {
			if cur.tokens < c.minTokens {
				if head, tail, ok := c.sliceSentence(runes, s, c.budget()-cur.tokens); ok {
					rest := append([]sentence{head, tail}, sentences[i+1:]...)
					sentences = append(sentences[:i], rest...)
					cur.last = i
					cur.tokens += head.tokens
					groups = append(groups, cur)
					cur = group{first: i + 1, last: -1}
					continue
				}
			}
			groups = append(groups, cur)
			cur = group{first: i, last: -1}
		}
		cur.last = i
		cur.tokens += s.tokens
	}
	if cur.last >= 0 {
		groups = append(groups, cur)
	}
	return groups, sentences
}

// sliceSentence cuts s into a head of at most room tokens and the remainder.
func (c *Chunker) sliceSentence(runes []rune, s sentence, room int) (sentence, sentence, bool) {
	if room <= 0 {
		return sentence{}, sentence{}, false
	}
	head := c.counter.Truncate(string(runes[s.start:s.end]), room)
	n := utf8.RuneCountInString(head)
	if n == 0 || n >= s.end-s.start {
		return sentence{}, sentence{}, false
	}
	cut := s.start + n
	return sentence{start: s.start, end: cut, tokens: c.counter.Count(string(runes[s.start:cut]))},
		sentence{start: cut, end: s.end, tokens: c.counter.Count(string(runes[cut:s.end]))},
		true
}

// overlapStart returns the rune offset where the next chunk's overlap region
// begins: the latest suffix of the previous group whose sentences total at
// most the overlap budget. It never reaches back to or before prevStart, so
// consecutive chunks always advance.
func (c *Chunker) overlapStart(sentences []sentence, prev group, prevStart int) int {
	if c.overlap <= 0 {
		return sentences[prev.last].end
	}
	budget := c.overlap
	start := sentences[prev.last].end
	for i := prev.last; i >= prev.first; i-- {
		if sentences[i].tokens > budget {
			break
		}
		if sentences[i].start <= prevStart {
			break
		}
		budget -= sentences[i].tokens
		start = sentences[i].start
	}
	return start
}
