package llm

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genai"

	"github.com/MimeLyc/sales-playbook/internal/apperr"
	"github.com/MimeLyc/sales-playbook/internal/metrics"
	"github.com/MimeLyc/sales-playbook/pkg/log"
)

const (
	providerGemini     = "gemini"
	DefaultGeminiModel = "gemini-2.0-flash"
)

// GeminiClient generates text with the Gemini API through the official SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	maxOut      int
	temperature float32
}

var _ TextGenerator = (*GeminiClient)(nil)

func NewGeminiClient(ctx context.Context, cfg *Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, apperr.NewError(apperr.ErrConfig, "gemini: empty api key")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.APIURL != "" && cfg.APIURL != DefaultAPIURL {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.APIURL}
	}
	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, apperr.WrapError(err, apperr.ErrConfig, "gemini: create client")
	}

	model := cfg.Model
	if model == "" || model == DefaultModel {
		model = DefaultGeminiModel
	}
	return &GeminiClient{
		client:      c,
		model:       model,
		maxOut:      cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
	}, nil
}

func (g *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: int32(g.maxOut),
	})
	elapsed := time.Since(start)
	metrics.ObserveLLMCall(providerGemini, g.model, elapsed.Milliseconds(), err == nil)
	if err != nil {
		log.Error("Gemini API error after %dms: %v", elapsed.Milliseconds(), err)
		return "", mapProviderError(providerGemini, geminiStatus(err), err)
	}

	log.Info("Gemini response received in %dms", elapsed.Milliseconds())
	if resp == nil {
		return "", nil
	}
	return resp.Text(), nil
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}
