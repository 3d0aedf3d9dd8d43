package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"sysrev/model"
	"sysrev/types"
)

// SynthesisError marks a failed chat-completion call. It is surfaced to the
// user as-is and never retried: a silent retry could double-bill the tokens.
type SynthesisError struct {
	Err error
}

func (e SynthesisError) Error() string {
	return fmt.Sprintf("answer synthesis failed: %v", e.Err)
}

func (e SynthesisError) Unwrap() error { return e.Err }

// Limits bound the prompt and completion sizes for one synthesis call.
type Limits struct {
	ChunksPerPaper  int
	ContextTokenCap int
	ModelTokenLimit int
	MaxOutputTokens int
	OutputSafetyGap int
	MinOutputTokens int
}

// Synthesizer assembles the review prompt from retrieved excerpts and asks
// the chat model for an answer, once per question.
type Synthesizer struct {
	baseURL   string
	apiKey    string
	chatModel string
	client    *http.Client
	counter   model.Counter
	pricing   types.Pricing
	tmpl      *PromptTemplate
	limits    Limits
}

func NewSynthesizer(baseURL, apiKey, chatModel string, timeout time.Duration, counter model.Counter, pricing types.Pricing, limits Limits) *Synthesizer {
	return &Synthesizer{
		baseURL:   baseURL,
		apiKey:    apiKey,
		chatModel: chatModel,
		client:    &http.Client{Timeout: timeout},
		counter:   counter,
		pricing:   pricing,
		tmpl:      NewPromptTemplate(),
		limits:    limits,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Answer builds the prompt and makes a single chat-completion call.
func (s *Synthesizer) Answer(ctx context.Context, question string, papers []PaperContext) (string, types.TokenUsage, error) {
	papersContext := s.tmpl.Context(papers, s.limits.ChunksPerPaper)

	// Squeeze the context down before it blows the model window.
	if s.counter.Count(papersContext) > s.limits.ContextTokenCap {
		log.Printf("[AGENT] context too large, trimming to 2 chunks per paper")
		papersContext = s.tmpl.Context(papers, 2)
	}

	system := s.tmpl.System()
	user := s.tmpl.User(question, papersContext)

	inputTokens := s.counter.Count(system) + s.counter.Count(user)
	maxOutput := s.limits.ModelTokenLimit - inputTokens - s.limits.OutputSafetyGap
	if maxOutput > s.limits.MaxOutputTokens {
		maxOutput = s.limits.MaxOutputTokens
	}
	if maxOutput < s.limits.MinOutputTokens {
		return "", types.TokenUsage{}, SynthesisError{
			Err: fmt.Errorf("context too large (%d input tokens); upload fewer papers or ask a more specific question", inputTokens),
		}
	}

	log.Printf("[AGENT] input tokens: %d, max output tokens: %d", inputTokens, maxOutput)

	reqBody, err := json.Marshal(chatRequest{
		Model: s.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
		MaxTokens:   maxOutput,
	})
	if err != nil {
		return "", types.TokenUsage{}, SynthesisError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", types.TokenUsage{}, SynthesisError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return "", types.TokenUsage{}, SynthesisError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.TokenUsage{}, SynthesisError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", types.TokenUsage{}, SynthesisError{Err: fmt.Errorf("chat API returned %s: %s", resp.Status, string(payload))}
	}

	var out chatResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", types.TokenUsage{}, SynthesisError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Choices) == 0 {
		return "", types.TokenUsage{}, SynthesisError{Err: fmt.Errorf("empty completion")}
	}

	answer := out.Choices[0].Message.Content
	log.Printf("[AGENT] LLM answer took %v", time.Since(start))

	promptTokens := out.Usage.PromptTokens
	completionTokens := out.Usage.CompletionTokens
	if promptTokens == 0 && completionTokens == 0 {
		promptTokens = inputTokens
		completionTokens = s.counter.Count(answer)
	}

	usage := types.TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		InputCostUSD:     s.pricing.PromptCost(promptTokens),
		OutputCostUSD:    s.pricing.CompletionCost(completionTokens),
		TotalCostUSD:     types.RoundUSD(s.pricing.PromptCost(promptTokens) + s.pricing.CompletionCost(completionTokens)),
	}
	return answer, usage, nil
}
