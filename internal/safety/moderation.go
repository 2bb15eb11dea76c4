package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	log "github.com/sirupsen/logrus"
)

// Classification is one label/score pair from the moderation classifier.
type Classification struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Moderator classifies text for harmful content. Implementations should
// return an error for availability problems; the pipeline treats those
// as non-fatal.
type Moderator interface {
	Classify(ctx context.Context, text string) ([]Classification, error)
}

const classifierInstructions = `You are a content moderation classifier. ` +
	`Classify the user text and respond with ONLY a JSON array of ` +
	`{"label": string, "score": number} objects, using labels from: ` +
	`toxic, hate, harmful, neutral. Scores are confidences in [0,1]. ` +
	`No prose, no markdown.`

// LLMModerator delegates classification to an OpenAI-compatible chat
// completion endpoint acting as a zero-shot classifier.
type LLMModerator struct {
	client *openai.Client
	model  string
}

// NewLLMModerator builds a moderator against the given endpoint. The
// API key comes from the OPENAI_API_KEY environment variable; without
// it the request is attempted unauthenticated.
func NewLLMModerator(url, model string) *LLMModerator {
	options := []option.RequestOption{option.WithBaseURL(url)}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Info("OPENAI_API_KEY environment variable is not set, will try unauthenticated access")
	} else {
		options = append(options, option.WithAPIKey(apiKey))
	}

	client := openai.NewClient(options...)
	return &LLMModerator{client: &client, model: model}
}

// Classify asks the classifier model for label/score pairs.
func (m *LLMModerator) Classify(ctx context.Context, text string) ([]Classification, error) {
	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifierInstructions),
			openai.UserMessage(text),
		},
		Model: m.model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("classifier didn't return any content choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var classifications []Classification
	if err := json.Unmarshal([]byte(content), &classifications); err != nil {
		return nil, fmt.Errorf("failed to parse classifier output: %w", err)
	}
	return classifications, nil
}
