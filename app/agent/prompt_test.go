package agent

import (
	"strings"
	"testing"

	"sysrev/store"
	"sysrev/types"

	"github.com/stretchr/testify/require"
)

func hit(paper, text string, distance float32) store.SearchHit {
	return store.SearchHit{
		Meta:     types.ChunkMeta{PaperName: paper, Text: text},
		Distance: distance,
	}
}

func TestGroupByPaperPreservesRelevanceOrder(t *testing.T) {
	hits := []store.SearchHit{
		hit("beta", "b1", 0.1),
		hit("alpha", "a1", 0.2),
		hit("beta", "b2", 0.3),
		hit("alpha", "a2", 0.4),
	}

	papers := GroupByPaper(hits)
	require.Len(t, papers, 2)
	require.Equal(t, "beta", papers[0].Name)
	require.Equal(t, []string{"b1", "b2"}, papers[0].Chunks)
	require.Equal(t, "alpha", papers[1].Name)
	require.Equal(t, []string{"a1", "a2"}, papers[1].Chunks)
}

func TestContextLabelsEverySource(t *testing.T) {
	tmpl := NewPromptTemplate()
	papers := []PaperContext{
		{Name: "smith 2019", Chunks: []string{"methodology was a survey"}},
		{Name: "jones 2021", Chunks: []string{"methodology was a trial"}},
	}

	ctx := tmpl.Context(papers, 3)
	require.Contains(t, ctx, "PAPER: smith 2019")
	require.Contains(t, ctx, "PAPER: jones 2021")
	require.Contains(t, ctx, "methodology was a survey")
	require.Contains(t, ctx, "methodology was a trial")
	require.Less(t, strings.Index(ctx, "smith 2019"), strings.Index(ctx, "jones 2021"))
}

func TestContextLimitsChunksPerPaper(t *testing.T) {
	tmpl := NewPromptTemplate()
	papers := []PaperContext{
		{Name: "smith 2019", Chunks: []string{"chunk-one", "chunk-two", "chunk-three", "chunk-four"}},
	}

	ctx := tmpl.Context(papers, 2)
	require.Contains(t, ctx, "chunk-one")
	require.Contains(t, ctx, "chunk-two")
	require.NotContains(t, ctx, "chunk-three")
	require.NotContains(t, ctx, "chunk-four")
}

func TestUserPromptContainsQuestionAndTableRules(t *testing.T) {
	tmpl := NewPromptTemplate()
	papersContext := tmpl.Context([]PaperContext{
		{Name: "smith 2019", Chunks: []string{"n=40 participants"}},
		{Name: "jones 2021", Chunks: []string{"n=200 participants"}},
	}, 3)

	user := tmpl.User("Compare the sample size across all papers", papersContext)
	require.Contains(t, user, "Question: Compare the sample size across all papers")
	require.Contains(t, user, "## Comparison Table")
	require.Contains(t, user, `Use "Not reported" for missing information`)
	require.Contains(t, user, "PAPER: smith 2019")
	require.Contains(t, user, "PAPER: jones 2021")
}
