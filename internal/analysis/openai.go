package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/johnqtcg/threaddigest/internal/paging"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "gpt-5-mini"
)

// OpenAIConfig configures the OpenAI Responses API analyzer.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Language   string
	HTTPClient *http.Client
}

type openAIAnalyzer struct {
	httpClient *http.Client
	endpoint   string
	model      string
	apiKey     string
	language   string
}

type openAIResponseEnvelope struct {
	Output []struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// NewOpenAIAnalyzer creates an Analyzer backed by the OpenAI Responses API.
func NewOpenAIAnalyzer(cfg OpenAIConfig) Analyzer {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	return &openAIAnalyzer{
		httpClient: httpClient,
		endpoint:   buildResponsesEndpoint(cfg.BaseURL),
		model:      model,
		apiKey:     cfg.APIKey,
		language:   cfg.Language,
	}
}

func (a *openAIAnalyzer) Analyze(ctx context.Context, text string) (string, error) {
	if a.apiKey == "" {
		return "", fmt.Errorf("openai api key is empty")
	}

	payload := map[string]any{
		"model":        a.model,
		"instructions": buildInstructions(resolveLanguage(a.language, text)),
		"input":        text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create analysis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := paging.Send(a.httpClient, req)
	if err != nil {
		return "", fmt.Errorf("analysis request: %w", err)
	}

	var envelope openAIResponseEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return "", fmt.Errorf("decode analysis response: %w", err)
	}
	out, err := extractOutputText(envelope)
	if err != nil {
		return "", fmt.Errorf("extract analysis text: %w", err)
	}
	return out, nil
}

func buildResponsesEndpoint(baseURL string) string {
	if baseURL == "" {
		return defaultOpenAIBaseURL + "/v1/responses"
	}
	trimmed := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed + "/responses"
	}
	return trimmed + "/v1/responses"
}

func buildInstructions(lang string) string {
	return fmt.Sprintf(
		"You analyze online discussion transcripts. Each comment line reads \"Comment by <author>: <text>\" and is indented two spaces per reply level.\n"+
			"Language: %s\n"+
			"Respond in markdown with the sections: Overview, Main Points, Points of Disagreement, Open Questions.",
		lang,
	)
}

func extractOutputText(envelope openAIResponseEnvelope) (string, error) {
	for _, output := range envelope.Output {
		for _, content := range output.Content {
			if content.Type == "output_text" && strings.TrimSpace(content.Text) != "" {
				return strings.TrimSpace(content.Text), nil
			}
		}
	}
	return "", fmt.Errorf("no output_text found in response")
}

func resolveLanguage(override, text string) string {
	if override != "" {
		return override
	}
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			return "zh"
		}
	}
	return "en"
}
