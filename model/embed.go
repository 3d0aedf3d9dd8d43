package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sysrev/types"
)

// EmbeddingError marks a failed call to the embeddings API after all retry
// attempts were spent. The whole upload batch is aborted when it surfaces.
type EmbeddingError struct {
	Err error
}

func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding request failed: %v", e.Err)
}

func (e EmbeddingError) Unwrap() error { return e.Err }

// Embedder converts texts into fixed-dimension vectors, reporting token
// usage for the paid calls it makes.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, types.TokenUsage, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, types.TokenUsage, error)
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint. Inputs
// larger than batchSize are split into multiple calls and the vectors are
// concatenated back in the original order. Transient failures (network,
// 429, 5xx) are retried with exponential backoff up to maxRetries per batch.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	batchSize  int
	maxRetries int
	client     *http.Client
	counter    Counter
	pricing    types.Pricing
}

func NewOpenAIEmbedder(baseURL, apiKey, model string, batchSize, maxRetries int, timeout time.Duration, counter Counter, pricing types.Pricing) *OpenAIEmbedder {
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &OpenAIEmbedder{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		client:     &http.Client{Timeout: timeout},
		counter:    counter,
		pricing:    pricing,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, types.TokenUsage, error) {
	vectors := make([][]float32, 0, len(texts))
	totalTokens := 0

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, tokens, err := e.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, types.TokenUsage{}, err
		}
		vectors = append(vectors, batch...)
		totalTokens += tokens
	}

	usage := types.TokenUsage{
		EmbeddingTokens:  totalTokens,
		EmbeddingCostUSD: e.pricing.EmbeddingCost(totalTokens),
		TotalCostUSD:     e.pricing.EmbeddingCost(totalTokens),
	}
	return vectors, usage, nil
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, types.TokenUsage, error) {
	vectors, usage, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, types.TokenUsage{}, err
	}
	return vectors[0], usage, nil
}

func (e *OpenAIEmbedder) embedOnce(ctx context.Context, texts []string) ([][]float32, int, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, 0, EmbeddingError{Err: err}
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay(attempt)):
			case <-ctx.Done():
				return nil, 0, EmbeddingError{Err: ctx.Err()}
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, 0, EmbeddingError{Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("embeddings API returned %s", resp.Status)
			continue
		}

		if resp.StatusCode >= 300 {
			payload, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, 0, EmbeddingError{Err: fmt.Errorf("embeddings API returned %s: %s", resp.Status, string(payload))}
		}

		payload, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		var out embeddingResponse
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, 0, EmbeddingError{Err: fmt.Errorf("decode response: %w", err)}
		}
		if len(out.Data) != len(texts) {
			return nil, 0, EmbeddingError{Err: fmt.Errorf("got %d embeddings for %d inputs", len(out.Data), len(texts))}
		}

		vectors := make([][]float32, len(texts))
		for _, item := range out.Data {
			if item.Index < 0 || item.Index >= len(vectors) {
				return nil, 0, EmbeddingError{Err: fmt.Errorf("embedding index %d out of range", item.Index)}
			}
			vectors[item.Index] = item.Embedding
		}

		tokens := out.Usage.TotalTokens
		if tokens == 0 && e.counter != nil {
			tokens = e.counter.CountAll(texts)
		}
		return vectors, tokens, nil
	}

	return nil, 0, EmbeddingError{Err: lastErr}
}

// exponential backoff capped at 5s
func retryDelay(attempt int) time.Duration {
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
