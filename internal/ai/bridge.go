package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"commhub/pkg/models"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// DefaultTimeout bounds every reply request
const DefaultTimeout = 15 * time.Second

const systemPrompt = `You are the after-hours assistant of a translation agency.
The office is currently closed. Reply briefly and politely in the customer's language,
acknowledge the request, and say that a manager will answer during working hours.
Never quote prices or deadlines and never promise anything on behalf of the agency.`

// ErrEmptyReply is returned when the model produced no text
var ErrEmptyReply = errors.New("ai returned an empty reply")

// ReplyRequest is what the autobot sends to the bridge
type ReplyRequest struct {
	Message        string
	ConversationID string
	Platform       models.Platform
	// Context is the recent conversation, oldest first
	Context []models.Message
}

// Bridge generates auto-replies through an OpenAI-compatible endpoint
type Bridge struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewBridge creates an AI bridge. An empty baseURL targets OpenAI.
func NewBridge(apiKey, baseURL, model string, timeout time.Duration) *Bridge {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	config.HTTPClient = &http.Client{}
	if model == "" {
		model = openai.GPT4oMini
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bridge{client: openai.NewClientWithConfig(config), model: model, timeout: timeout}
}

// Reply asks the model for an auto-reply to the latest customer message
func (b *Bridge) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: fmt.Sprintf("%s\nChannel: %s. Conversation: %s.", systemPrompt, req.Platform, req.ConversationID),
	}}
	for _, m := range req.Context {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		if m.Direction == models.DirectionOutbound {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: content})
	}
	if last := len(req.Context) - 1; last < 0 || strings.TrimSpace(req.Context[last].Content) != strings.TrimSpace(req.Message) {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})
	}

	started := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    messages,
		MaxTokens:   400,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate AI reply: %w", err)
	}
	log.Debug().
		Str("conversation_id", req.ConversationID).
		Dur("duration", time.Since(started)).
		Int("tokens", resp.Usage.TotalTokens).
		Msg("AI reply generated")

	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}
