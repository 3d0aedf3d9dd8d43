package types

import (
	"math"
	"time"
)

// ChunkMeta describes one indexed span of paper text. The slice of ChunkMeta
// persisted next to an index is parallel to the vectors: entry i belongs to
// vector i.
type ChunkMeta struct {
	Text        string `json:"text"`
	PaperName   string `json:"paper_name"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

// Paper is an uploaded document after text extraction.
type Paper struct {
	Name string
	Text string
}

// Session maps a client-supplied session id to the persisted index artifacts
// produced for that session's uploads.
type Session struct {
	ID           string    `json:"id"`
	IndexPath    string    `json:"index_path"`
	MetadataPath string    `json:"metadata_path"`
	Papers       []string  `json:"papers"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TokenUsage accounts for tokens consumed by one paid model call (or a sum of
// several). Every operation that bills tokens returns one; callers combine
// them with Add.
type TokenUsage struct {
	EmbeddingTokens     int     `json:"embedding_tokens,omitempty"`
	EstimatedTextTokens int     `json:"estimated_text_tokens,omitempty"`
	TotalChunks         int     `json:"total_chunks,omitempty"`
	PromptTokens        int     `json:"prompt_tokens,omitempty"`
	CompletionTokens    int     `json:"completion_tokens,omitempty"`
	TotalTokens         int     `json:"total_tokens,omitempty"`
	EmbeddingCostUSD    float64 `json:"embedding_cost_usd,omitempty"`
	InputCostUSD        float64 `json:"input_cost_usd,omitempty"`
	OutputCostUSD       float64 `json:"output_cost_usd,omitempty"`
	TotalCostUSD        float64 `json:"total_cost_usd"`
}

func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		EmbeddingTokens:     u.EmbeddingTokens + other.EmbeddingTokens,
		EstimatedTextTokens: u.EstimatedTextTokens + other.EstimatedTextTokens,
		TotalChunks:         u.TotalChunks + other.TotalChunks,
		PromptTokens:        u.PromptTokens + other.PromptTokens,
		CompletionTokens:    u.CompletionTokens + other.CompletionTokens,
		TotalTokens:         u.TotalTokens + other.TotalTokens,
		EmbeddingCostUSD:    RoundUSD(u.EmbeddingCostUSD + other.EmbeddingCostUSD),
		InputCostUSD:        RoundUSD(u.InputCostUSD + other.InputCostUSD),
		OutputCostUSD:       RoundUSD(u.OutputCostUSD + other.OutputCostUSD),
		TotalCostUSD:        RoundUSD(u.TotalCostUSD + other.TotalCostUSD),
	}
}

// Pricing is the published price-per-1K-tokens table for the models in use.
type Pricing struct {
	EmbeddingPer1K  float64 `yaml:"embedding_per_1k"`
	PromptPer1K     float64 `yaml:"prompt_per_1k"`
	CompletionPer1K float64 `yaml:"completion_per_1k"`
}

func (p Pricing) EmbeddingCost(tokens int) float64 {
	return RoundUSD(float64(tokens) / 1000 * p.EmbeddingPer1K)
}

func (p Pricing) PromptCost(tokens int) float64 {
	return RoundUSD(float64(tokens) / 1000 * p.PromptPer1K)
}

func (p Pricing) CompletionCost(tokens int) float64 {
	return RoundUSD(float64(tokens) / 1000 * p.CompletionPer1K)
}

// RoundUSD rounds a cost to 6 decimal places, same precision the billing
// dashboard shows.
func RoundUSD(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
