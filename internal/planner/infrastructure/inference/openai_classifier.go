// Package inference implements the classifier against the OpenAI API.
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/qnz18/qzwhatnext/internal/planner/application/services"
	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

const categoryPrompt = `You are a task categorization assistant. Given a task note, determine the best matching category.

Available categories:
- WORK: Professional work, job-related tasks, meetings, deadlines
- CHILD: Childcare, school activities, children's needs
- FAMILY: Family activities, social commitments with family
- HEALTH: Personal health, medical appointments, exercise, wellness
- PERSONAL: Personal development, hobbies, individual activities
- IDEAS: Creative ideas, projects, brainstorming
- HOME: Home maintenance, household chores, repairs
- ADMIN: Administrative tasks, paperwork, bureaucracy
- UNKNOWN: If the note doesn't clearly fit any category or is ambiguous

Task note: %q

Respond with a JSON object containing:
- "category": One of the category names above (e.g., "WORK", "HEALTH")
- "confidence": A number between 0.0 and 1.0

Respond only with the JSON object, no other text.`

const titlePrompt = `You are a task title generation assistant. Given a task note, create a concise, actionable title (maximum 100 characters). Respond with only the title text.

Task note: %q`

// OpenAIClassifier infers task attributes via chat completions. Failures
// degrade to unknown rather than failing the calling operation.
type OpenAIClassifier struct {
	client openai.Client
	model  openai.ChatModel
	logger *slog.Logger
}

// NewOpenAIClassifier builds a classifier for the given API key.
func NewOpenAIClassifier(apiKey string, logger *slog.Logger) *OpenAIClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClassifier{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModelGPT4oMini,
		logger: logger,
	}
}

// InferCategory asks the model for (category, confidence). Confidence below
// the acceptance threshold degrades to unknown.
func (c *OpenAIClassifier) InferCategory(ctx context.Context, notes string) (domain.Category, float64) {
	if strings.TrimSpace(notes) == "" {
		return domain.CategoryUnknown, 0
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a task categorization assistant. Respond only with valid JSON."),
			openai.UserMessage(fmt.Sprintf(categoryPrompt, notes)),
		},
		Model: c.model,
	})
	if err != nil {
		c.logger.Error("category inference failed", slog.String("error", err.Error()))
		return domain.CategoryUnknown, 0
	}
	if len(completion.Choices) == 0 {
		return domain.CategoryUnknown, 0
	}

	var parsed struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	raw := stripCodeFence(completion.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		c.logger.Warn("unparseable category response")
		return domain.CategoryUnknown, 0
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		parsed.Confidence = 0
	}
	if parsed.Confidence < services.CategoryConfidenceThreshold {
		return domain.CategoryUnknown, 0
	}

	category := domain.ParseCategory(strings.ToLower(parsed.Category))
	return category, parsed.Confidence
}

// GenerateTitle summarizes notes into a short title; "" on any failure.
func (c *OpenAIClassifier) GenerateTitle(ctx context.Context, notes string) string {
	if strings.TrimSpace(notes) == "" {
		return ""
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a task title generation assistant. Respond with only the title text."),
			openai.UserMessage(fmt.Sprintf(titlePrompt, notes)),
		},
		Model: c.model,
	})
	if err != nil {
		c.logger.Error("title generation failed", slog.String("error", err.Error()))
		return ""
	}
	if len(completion.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content)
}

// stripCodeFence unwraps responses the model wrapped in markdown fences.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
