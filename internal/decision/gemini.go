package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

// GeminiEngine answers decision requests through the Google GenAI API,
// asking for a JSON-shaped response that decodes into a Decision.
type GeminiEngine struct {
	client *genai.Client
	model  string
}

// NewGeminiEngine creates a Gemini-backed decision engine.
func NewGeminiEngine(ctx context.Context, apiKey, model string) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiEngine{client: client, model: model}, nil
}

func (e *GeminiEngine) Decide(ctx context.Context, job JobContext, profile Profile, model string) (*Decision, error) {
	if model == "" {
		model = e.model
	}

	prompt, err := buildPrompt(job, profile)
	if err != nil {
		return nil, fmt.Errorf("build decision prompt: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	resp, err := e.client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini decide: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("gemini decide: empty response")
	}

	var d Decision
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return nil, fmt.Errorf("gemini decide: decode response: %w", err)
	}
	return &d, nil
}

func buildPrompt(job JobContext, profile Profile) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"job":     job,
		"profile": profile,
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You review one job posting for an applicant and decide whether to apply.\n")
	b.WriteString("Respond with JSON: {\"verdict\": \"apply\"|\"skip\", \"reasoning\": string, ")
	b.WriteString("\"answers\": [{\"prompt\", \"kind\", \"value\", \"values\"}]}.\n")
	b.WriteString("When the verdict is apply, answer every screening question using only the offered options.\n\n")
	b.Write(payload)
	return b.String(), nil
}
