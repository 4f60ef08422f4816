package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-platform/internal/tokenizer"
	"docqa-platform/models"
)

func retrievedForPrompt(id, docID, content string, page *int) RetrievedChunk {
	return RetrievedChunk{
		Chunk: models.Chunk{ID: id, DocumentID: docID, Content: content, PageNumber: page},
		Score: 1,
	}
}

func TestBuildContextNumbersSources(t *testing.T) {
	counter, err := tokenizer.Get(tokenizer.HeuristicName)
	require.NoError(t, err)

	page := 3
	chunks := []RetrievedChunk{
		retrievedForPrompt("c1", "d1", "First chunk body.", &page),
		retrievedForPrompt("c2", "d2", "Second chunk body.", nil),
	}
	names := map[string]string{"d1": "report.pdf", "d2": "notes.md"}

	ctx, used := BuildContext(chunks, names, counter, 1000)
	require.Len(t, used, 2)
	assert.Contains(t, ctx, "[Source 1]\nDocument: report.pdf\nPage: 3\nContent: First chunk body.")
	assert.Contains(t, ctx, "[Source 2]\nDocument: notes.md\nContent: Second chunk body.")
	assert.Contains(t, ctx, "---")
	assert.Less(t, strings.Index(ctx, "[Source 1]"), strings.Index(ctx, "[Source 2]"))
}

func TestBuildContextEnforcesTokenBudget(t *testing.T) {
	counter, err := tokenizer.Get(tokenizer.HeuristicName)
	require.NoError(t, err)

	long := strings.Repeat("alpha beta gamma delta. ", 50)
	chunks := []RetrievedChunk{
		retrievedForPrompt("c1", "d1", long, nil),
		retrievedForPrompt("c2", "d1", long, nil),
	}

	budget := 60
	ctx, used := BuildContext(chunks, nil, counter, budget)
	assert.LessOrEqual(t, counter.Count(ctx), budget)
	require.Len(t, used, 1)
	assert.True(t, strings.Contains(ctx, "…"), "truncated block should carry an ellipsis")
}

func TestBuildContextZeroBudget(t *testing.T) {
	counter, err := tokenizer.Get(tokenizer.HeuristicName)
	require.NoError(t, err)

	ctx, used := BuildContext([]RetrievedChunk{
		retrievedForPrompt("c1", "d1", "content here", nil),
	}, nil, counter, 2)
	assert.Empty(t, ctx)
	assert.Empty(t, used)
}

func TestParseCitationsBindsSources(t *testing.T) {
	page := 7
	used := []RetrievedChunk{
		retrievedForPrompt("c1", "d1", "Chunk one content.", &page),
		retrievedForPrompt("c2", "d2", "Chunk two content.", nil),
	}

	answer := "Solar is renewable [Source 1]. Wind too [Source 2]. Again [Source 1]."
	citations := ParseCitations(answer, used)
	require.Len(t, citations, 2)

	assert.Equal(t, 1, citations[0].SourceIndex)
	assert.Equal(t, "c1", citations[0].ChunkID)
	assert.Equal(t, "d1", citations[0].DocumentID)
	require.NotNil(t, citations[0].PageNumber)
	assert.Equal(t, 7, *citations[0].PageNumber)
	assert.Equal(t, "Chunk one content.", citations[0].Snippet)

	assert.Equal(t, 2, citations[1].SourceIndex)
	assert.Nil(t, citations[1].PageNumber)
}

func TestParseCitationsDropsOutOfRange(t *testing.T) {
	used := []RetrievedChunk{
		retrievedForPrompt("c1", "d1", "only source", nil),
	}
	citations := ParseCitations("See [Source 1] and [Source 5] and [Source 0].", used)
	require.Len(t, citations, 1)
	assert.Equal(t, 1, citations[0].SourceIndex)
}

func TestParseCitationsNoReferences(t *testing.T) {
	used := []RetrievedChunk{retrievedForPrompt("c1", "d1", "text", nil)}
	assert.Empty(t, ParseCitations("An answer without references.", used))
}

func TestSnippetPicksBestOverlapSentence(t *testing.T) {
	content := "Coal plants burn fossil fuel. Solar panels turn sunlight into electricity. Batteries store energy overnight."
	answer := "Solar panels generate electricity from sunlight [Source 1]."

	assert.Equal(t, "Solar panels turn sunlight into electricity.", snippet(content, answer))
}

func TestSnippetCapsLength(t *testing.T) {
	long := strings.Repeat("abcdefghi ", 30)
	s := snippet(long, "no overlap here")
	assert.LessOrEqual(t, len([]rune(s)), snippetMaxRunes+1)
	assert.True(t, strings.HasSuffix(s, "…"))
	assert.False(t, strings.HasSuffix(strings.TrimSuffix(s, "…"), "abcdefgh"),
		"should not cut mid-word")

	short := "short text"
	assert.Equal(t, short, snippet(short, "anything"))
}
