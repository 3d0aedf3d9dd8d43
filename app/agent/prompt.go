package agent

import (
	"fmt"
	"strings"

	"sysrev/store"
)

// PaperContext carries the retrieved excerpts for one paper, in ascending
// distance order.
type PaperContext struct {
	Name   string
	Chunks []string
}

// GroupByPaper organizes search hits per paper. Paper order follows the
// first hit of each paper, so the most relevant paper comes first.
func GroupByPaper(hits []store.SearchHit) []PaperContext {
	byName := make(map[string]int)
	var papers []PaperContext
	for _, hit := range hits {
		i, ok := byName[hit.Meta.PaperName]
		if !ok {
			i = len(papers)
			byName[hit.Meta.PaperName] = i
			papers = append(papers, PaperContext{Name: hit.Meta.PaperName})
		}
		papers[i].Chunks = append(papers[i].Chunks, hit.Meta.Text)
	}
	return papers
}

// PromptTemplate renders the single prompt sent to the chat model: the
// assistant role, each excerpt labeled by its paper, the verbatim question,
// and the comparison-table formatting rules.
type PromptTemplate struct{}

func NewPromptTemplate() *PromptTemplate { return &PromptTemplate{} }

func (t *PromptTemplate) System() string {
	return "You are an expert systematic review assistant. Create detailed comparison tables from research papers."
}

// Context renders the excerpt sections only, so its token count can be
// checked before committing to a full prompt.
func (t *PromptTemplate) Context(papers []PaperContext, chunksPerPaper int) string {
	var sb strings.Builder
	sep := strings.Repeat("=", 60)
	for _, paper := range papers {
		chunks := paper.Chunks
		if chunksPerPaper > 0 && len(chunks) > chunksPerPaper {
			chunks = chunks[:chunksPerPaper]
		}
		sb.WriteString(fmt.Sprintf("\n\n%s\nPAPER: %s\n%s\n%s\n", sep, paper.Name, sep, strings.Join(chunks, "\n\n")))
	}
	return sb.String()
}

func (t *PromptTemplate) User(question, papersContext string) string {
	return fmt.Sprintf(`Question: %s

Papers excerpts:
%s

Instructions:
1. First, directly answer the user's question based on the excerpts
2. If creating a comparison table, ONLY include rows that have actual content - do NOT add empty rows
3. Make sure to include information from ALL papers in your response
4. Use "Not reported" for missing information, but never create empty rows with just dashes

Format:
## Answer
[Direct answer]

## Comparison Table
| Parameter | Paper 1 | Paper 2 | Paper 3 |
|-----------|---------|---------|---------|
| Param 1   | Value   | Value   | Value   |
| Param 2   | Value   | Value   | Not reported |

IMPORTANT: Do NOT add empty rows like:
| - | | | |

## Key Findings
- Finding 1

## Limitations
- Notes
`, question, papersContext)
}
