// Package autobot sends out-of-hours auto-replies, at most one per
// conversation per reply window.
package autobot

import (
	"context"
	"strconv"
	"sync"
	"time"

	"commhub/internal/ai"
	"commhub/internal/channel"
	"commhub/internal/metrics"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// contextMessages is how much history the AI bridge sees
const contextMessages = 10

// Store is the autobot persistence
type Store interface {
	GetSettings(ctx context.Context, officeID uint) (*models.AutobotSettings, error)
	ListHolidays(ctx context.Context) ([]models.Holiday, error)
	HasRecentAutoReply(ctx context.Context, conversationID uuid.UUID, since time.Time) (bool, error)
	CreateLog(ctx context.Context, entry *models.AutobotLog) error
}

// History returns recent conversation messages, oldest first
type History interface {
	RecentMessages(ctx context.Context, id uuid.UUID, n int) ([]models.Message, error)
}

// MessageSender delivers the reply through the conversation's channel
type MessageSender interface {
	Send(ctx context.Context, req channel.SendRequest) (*models.Message, error)
}

// Replier generates AI replies
type Replier interface {
	Reply(ctx context.Context, req ai.ReplyRequest) (string, error)
}

// Outcome describes what Consider did
type Outcome string

const (
	OutcomeNotInbound   Outcome = "not_inbound"
	OutcomeDisabled     Outcome = "disabled"
	OutcomePlatformOff  Outcome = "platform_disabled"
	OutcomeWorkingHours Outcome = "working_hours"
	OutcomeCooldown     Outcome = "cooldown"
	OutcomeNoReply      Outcome = "no_reply_text"
	OutcomeReplied      Outcome = "replied"
	OutcomeFailed       Outcome = "failed"
)

// Engine evaluates inbound messages against the office schedule
type Engine struct {
	store    Store
	history  History
	sender   MessageSender
	ai       Replier
	officeID uint
	now      func() time.Time

	mu    sync.Mutex
	locks map[uuid.UUID]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

// NewEngine creates an autobot engine. ai may be nil.
func NewEngine(store Store, history History, sender MessageSender, replier Replier, officeID uint) *Engine {
	return &Engine{
		store:    store,
		history:  history,
		sender:   sender,
		ai:       replier,
		officeID: officeID,
		now:      time.Now,
		locks:    make(map[uuid.UUID]*convLock),
	}
}

// WithClock overrides the engine clock
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) lock(id uuid.UUID) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &convLock{}
		e.locks[id] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}

// Consider decides whether an inbound message gets an auto-reply and sends
// it. Errors are logged and recorded, never returned.
func (e *Engine) Consider(ctx context.Context, conv *models.Conversation, msg *models.Message) Outcome {
	if msg.Direction != models.DirectionInbound {
		return OutcomeNotInbound
	}
	logger := log.With().Str("conversation_id", conv.ID.String()).Str("platform", string(conv.Platform)).Logger()

	settings, err := e.store.GetSettings(ctx, e.officeID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load autobot settings")
		return OutcomeFailed
	}
	if settings == nil || !settings.Enabled {
		return OutcomeDisabled
	}
	if !settings.PlatformEnabled(conv.Platform) {
		return OutcomePlatformOff
	}

	holidays, err := e.store.ListHolidays(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load holidays")
	}
	now := e.now()
	if IsWorkingTime(settings, holidays, now) {
		return OutcomeWorkingHours
	}

	unlock := e.lock(conv.ID)
	defer unlock()

	recent, err := e.store.HasRecentAutoReply(ctx, conv.ID, now.Add(-settings.ReplyWindow()))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to check autobot cooldown")
		return OutcomeFailed
	}
	if recent {
		logger.Debug().Msg("Autobot cooldown active")
		return OutcomeCooldown
	}

	text, aiGenerated := e.replyText(ctx, settings, conv, msg)
	if text == "" {
		logger.Warn().Msg("Autobot has no reply text configured")
		return OutcomeNoReply
	}

	sent, sendErr := e.sender.Send(ctx, channel.SendRequest{
		ConversationID: conv.ID,
		Content:        text,
		Metadata:       map[string]interface{}{"autobot": true, "ai_generated": aiGenerated},
		Author:         channel.AutobotAuthor,
	})

	convID := conv.ID
	entry := &models.AutobotLog{
		Action:         models.AutobotActionAutoReply,
		ConversationID: &convID,
		Success:        sendErr == nil,
		Metadata: map[string]interface{}{
			"conversation_id": conv.ID.String(),
			"ai_generated":    aiGenerated,
			"message_id":      nil,
			"inbound_id":      msg.ID.String(),
		},
	}
	entry.CreatedAt = now.UTC()
	if sent != nil {
		entry.Metadata["message_id"] = sent.ID.String()
	}
	if sendErr != nil {
		entry.Error = sendErr.Error()
	}
	if err := e.store.CreateLog(context.WithoutCancel(ctx), entry); err != nil {
		logger.Error().Err(err).Msg("Failed to record autobot log")
	}
	metrics.AutobotReplies.WithLabelValues(strconv.FormatBool(aiGenerated), strconv.FormatBool(sendErr == nil)).Inc()

	if sendErr != nil {
		logger.Error().Err(sendErr).Msg("Autobot reply failed")
		return OutcomeFailed
	}
	logger.Info().Bool("ai_generated", aiGenerated).Msg("Autobot reply sent")
	return OutcomeReplied
}

// replyText asks the AI bridge when enabled and falls back to the template
func (e *Engine) replyText(ctx context.Context, s *models.AutobotSettings, conv *models.Conversation, msg *models.Message) (string, bool) {
	if s.UseAIReply && e.ai != nil {
		var history []models.Message
		if e.history != nil {
			var err error
			history, err = e.history.RecentMessages(ctx, conv.ID, contextMessages)
			if err != nil {
				log.Warn().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to load AI context")
			}
		}
		reply, err := e.ai.Reply(ctx, ai.ReplyRequest{
			Message:        msg.Content,
			ConversationID: conv.ID.String(),
			Platform:       conv.Platform,
			Context:        history,
		})
		if err == nil && reply != "" {
			return reply, true
		}
		log.Warn().Err(err).Str("conversation_id", conv.ID.String()).Msg("AI reply failed, using template")
	}
	return s.AutoReplyMessage, false
}
