package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"docqa-platform/internal/tokenizer"
	"docqa-platform/models"
)

const answerSystemPrompt = `You are a document question-answering assistant.
Answer the user's question using only the numbered sources provided.
Cite every claim with the source it came from, using the exact form [Source N].
If the sources do not contain enough information to answer, reply: "I don't have enough information in the provided documents to answer this question."
Keep the answer concise and factual.`

// FallbackAnswer is returned when retrieval finds nothing usable.
const FallbackAnswer = "I don't have enough information in the provided documents to answer this question."

var citationPattern = regexp.MustCompile(`\[Source (\d+)\]`)

const snippetMaxRunes = 150

// BuildContext renders retrieved chunks as numbered source blocks, keeping
// the total within maxTokens. A block that only partially fits is truncated
// on a token boundary and marked with an ellipsis. Returns the rendered
// context and the chunks that made it in, in rendered order.
func BuildContext(chunks []RetrievedChunk, docNames map[string]string,
	counter tokenizer.Counter, maxTokens int) (string, []RetrievedChunk) {
	var (
		sb     strings.Builder
		used   []RetrievedChunk
		budget = maxTokens
	)

	for i, rc := range chunks {
		header := blockHeader(i+1, rc, docNames)
		block := header + rc.Chunk.Content + "\n---\n"

		cost := counter.Count(block)
		if cost <= budget {
			sb.WriteString(block)
			used = append(used, rc)
			budget -= cost
			continue
		}

		// Partial fit: keep what the remaining budget allows.
		headerCost := counter.Count(header)
		room := budget - headerCost - 2
		if room <= 0 {
			break
		}
		partial := counter.Truncate(rc.Chunk.Content, room)
		if strings.TrimSpace(partial) == "" {
			break
		}
		sb.WriteString(header + partial + "…\n---\n")
		used = append(used, rc)
		break
	}

	return strings.TrimRight(sb.String(), "\n"), used
}

func blockHeader(n int, rc RetrievedChunk, docNames map[string]string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Source %d]\n", n)
	if name := docNames[rc.Chunk.DocumentID]; name != "" {
		fmt.Fprintf(&sb, "Document: %s\n", name)
	}
	if rc.Chunk.PageNumber != nil {
		fmt.Fprintf(&sb, "Page: %d\n", *rc.Chunk.PageNumber)
	}
	sb.WriteString("Content: ")
	return sb.String()
}

// BuildPrompt assembles the final generation prompt from the rendered
// context and the user's question.
func BuildPrompt(contextText, question string) string {
	return fmt.Sprintf("Sources:\n\n%s\n\nQuestion: %s", contextText, question)
}

// ParseCitations extracts [Source N] references from the answer and binds
// each to the chunk rendered under that number. References to numbers that
// were never rendered are dropped. Each source is cited at most once, in
// first-mention order.
func ParseCitations(answer string, used []RetrievedChunk) []models.Citation {
	seen := map[int]struct{}{}
	var citations []models.Citation

	for _, m := range citationPattern.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(used) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}

		chunk := used[n-1].Chunk
		citations = append(citations, models.Citation{
			SourceIndex: n,
			DocumentID:  chunk.DocumentID,
			PageNumber:  chunk.PageNumber,
			Snippet:     snippet(chunk.Content, answer),
			ChunkID:     chunk.ID,
		})
	}
	return citations
}

// snippet picks the chunk sentence sharing the most word types with the
// answer, capped at snippetMaxRunes on a word boundary.
func snippet(content, answer string) string {
	content = strings.TrimSpace(content)
	answerWords := wordTypes(answer)

	best := ""
	bestOverlap := -1
	for _, sentence := range snippetSentences(content) {
		overlap := 0
		for w := range wordTypes(sentence) {
			if _, ok := answerWords[w]; ok {
				overlap++
			}
		}
		if overlap > bestOverlap {
			bestOverlap = overlap
			best = sentence
		}
	}
	if best == "" {
		best = content
	}
	return clipRunes(best, snippetMaxRunes)
}

// snippetSentences splits on terminal punctuation followed by whitespace.
func snippetSentences(s string) []string {
	var out []string
	runes := []rune(s)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		for i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
			i++
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if sentence := strings.TrimSpace(string(runes[start : i+1])); sentence != "" {
			out = append(out, sentence)
		}
		start = i + 1
	}
	if sentence := strings.TrimSpace(string(runes[start:])); sentence != "" {
		out = append(out, sentence)
	}
	return out
}

func wordTypes(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[w] = struct{}{}
	}
	return out
}

func clipRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := max
	for cut > 0 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	if cut == 0 {
		cut = max
	}
	return strings.TrimRight(string(runes[:cut]), " \n\t") + "…"
}
