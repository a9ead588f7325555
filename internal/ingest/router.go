// Package ingest is the single funnel every adapter feeds inbound messages
// and delivery acknowledgements through.
package ingest

import (
	"context"
	"sync"
	"time"

	"commhub/internal/autobot"
	"commhub/internal/channel"
	"commhub/internal/metrics"
	"commhub/internal/repo"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// deferredMediaTimeout bounds a background media download
const deferredMediaTimeout = 2 * time.Minute

// Store is the conversation store as seen by the router
type Store interface {
	UpsertConversation(ctx context.Context, in repo.UpsertConversationInput) (*models.Conversation, bool, error)
	AppendMessage(ctx context.Context, in repo.AppendMessageInput) (*models.Message, bool, error)
	FindByExternalID(ctx context.Context, conversationID uuid.UUID, externalID string) (*models.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ClaimAttachments(ctx context.Context, messageID uuid.UUID, ids []uuid.UUID) error
	SetContent(ctx context.Context, id uuid.UUID, content string) error
	LinkClient(ctx context.Context, id, clientID uuid.UUID) error
	ApplyStatusAck(ctx context.Context, externalID string, status models.MessageStatus, errMsg string) (*models.Message, error)
}

// Media persists inbound attachment bytes
type Media interface {
	Persist(ctx context.Context, data []byte, mimeType, originalName string) (*models.Attachment, error)
	Delete(ctx context.Context, att *models.Attachment)
}

// Broadcaster announces stored messages
type Broadcaster interface {
	BroadcastNewMessage(ctx context.Context, conv *models.Conversation, msg *models.Message)
}

// Autobot evaluates inbound messages for auto-replies
type Autobot interface {
	Consider(ctx context.Context, conv *models.Conversation, msg *models.Message) autobot.Outcome
}

// ClientDirectory finds CRM clients by contact data
type ClientDirectory interface {
	FindByContact(ctx context.Context, lookup repo.ClientLookup) (*models.Client, error)
}

// Router stores inbound events and triggers the follow-up work exactly once
// per unique message
type Router struct {
	store   Store
	media   Media
	hub     Broadcaster
	bot     Autobot
	clients ClientDirectory

	wg sync.WaitGroup
}

// NewRouter creates a new router. bot and clients may be nil.
func NewRouter(store Store, media Media, hub Broadcaster, bot Autobot, clients ClientDirectory) *Router {
	return &Router{store: store, media: media, hub: hub, bot: bot, clients: clients}
}

// Result is the outcome of handling one event
type Result struct {
	Conversation *models.Conversation
	Message      *models.Message
	Created      bool
}

// Handle stores one inbound event. Broadcast, autobot evaluation and deferred
// media only run when the message is new.
func (r *Router) Handle(ctx context.Context, ev channel.InboundEvent) (*Result, error) {
	logger := log.With().
		Str("platform", string(ev.Platform)).
		Str("external_id", ev.ExternalID).
		Str("external_message_id", ev.ExternalMessageID).
		Logger()

	conv, created, err := r.store.UpsertConversation(ctx, repo.UpsertConversationInput{
		Platform:          ev.Platform,
		ExternalID:        ev.ExternalID,
		Subject:           ev.Subject,
		SubjectIsFallback: ev.SubjectIsFallback,
		MailboxID:         ev.MailboxID,
	})
	if err != nil {
		metrics.InboundMessages.WithLabelValues(string(ev.Platform), "error").Inc()
		return nil, err
	}
	if created && conv.ClientID == nil {
		r.linkClient(ctx, conv, ev, logger)
	}

	// Replays are answered before any media is fetched
	prior, err := r.store.FindByExternalID(ctx, conv.ID, ev.ExternalMessageID)
	if err != nil {
		metrics.InboundMessages.WithLabelValues(string(ev.Platform), "error").Inc()
		return nil, err
	}
	if prior != nil {
		return r.duplicate(ev, conv, prior, logger), nil
	}

	stored := r.persistAttachments(ctx, ev.Attachments, logger)

	content := ev.Content
	msgType := ev.MessageType
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if content == "" && len(stored) > 0 {
		if msgType == models.MessageTypeText {
			msgType = channel.MessageTypeFor(stored[0].FileType)
		}
		content = channel.AttachmentPlaceholder(msgType, stored[0].OriginalName)
	}

	direction := models.DirectionInbound
	if ev.IsFromMe {
		direction = models.DirectionOutbound
	}

	msg, isNew, err := r.store.AppendMessage(ctx, repo.AppendMessageInput{
		ConversationID: conv.ID,
		Direction:      direction,
		Type:           msgType,
		Content:        content,
		Status:         models.StatusSent,
		AttachmentIDs:  idsOf(stored),
		Metadata:       eventMetadata(ev),
		ExternalID:     ev.ExternalMessageID,
		SentAt:         ev.SentAt,
	})
	if err != nil {
		metrics.InboundMessages.WithLabelValues(string(ev.Platform), "error").Inc()
		return nil, err
	}

	if !isNew {
		// A concurrent receive won; its copy owns the media
		for _, att := range stored {
			r.media.Delete(ctx, att)
		}
		return r.duplicate(ev, conv, msg, logger), nil
	}
	metrics.InboundMessages.WithLabelValues(string(ev.Platform), "new").Inc()
	logger.Info().
		Str("conversation_id", conv.ID.String()).
		Str("message_id", msg.ID.String()).
		Bool("is_from_me", ev.IsFromMe).
		Msg("Inbound message stored")

	if r.hub != nil {
		r.hub.BroadcastNewMessage(ctx, conv, msg)
	}

	// Follow-up work outlives the webhook request
	bg := context.WithoutCancel(ctx)
	if ev.DeferredMedia != nil {
		r.goAsync(func() { r.fetchDeferred(bg, conv, msg, ev.DeferredMedia) })
	}
	if r.bot != nil && direction == models.DirectionInbound {
		r.goAsync(func() { r.bot.Consider(bg, conv, msg) })
	}

	return &Result{Conversation: conv, Message: msg, Created: true}, nil
}

func (r *Router) duplicate(ev channel.InboundEvent, conv *models.Conversation, msg *models.Message, logger zerolog.Logger) *Result {
	metrics.InboundMessages.WithLabelValues(string(ev.Platform), "duplicate").Inc()
	logger.Debug().Str("message_id", msg.ID.String()).Msg("Duplicate inbound message ignored")
	return &Result{Conversation: conv, Message: msg}
}

// HandleBatch stores every event of a webhook batch and applies its acks.
// Failures are logged; providers always get a success response.
func (r *Router) HandleBatch(ctx context.Context, batch *channel.Batch) {
	if batch == nil {
		return
	}
	for _, ev := range batch.Messages {
		if _, err := r.Handle(ctx, ev); err != nil {
			log.Error().Err(err).
				Str("platform", string(ev.Platform)).
				Str("external_message_id", ev.ExternalMessageID).
				Msg("Failed to ingest inbound message")
		}
	}
	for _, st := range batch.Statuses {
		r.ApplyStatus(ctx, st)
	}
}

// ApplyStatus applies a delivery acknowledgement
func (r *Router) ApplyStatus(ctx context.Context, st channel.StatusEvent) {
	msg, err := r.store.ApplyStatusAck(ctx, st.ExternalMessageID, st.Status, st.Error)
	if err != nil {
		log.Error().Err(err).
			Str("platform", string(st.Platform)).
			Str("external_message_id", st.ExternalMessageID).
			Msg("Failed to apply status ack")
		return
	}
	if msg != nil {
		log.Debug().
			Str("message_id", msg.ID.String()).
			Str("status", string(msg.Status)).
			Msg("Outbound status updated")
	}
}

// Wait blocks until background media downloads and autobot runs finish
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) goAsync(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

func (r *Router) persistAttachments(ctx context.Context, atts []channel.InboundAttachment, logger zerolog.Logger) []*models.Attachment {
	var stored []*models.Attachment
	for i := range atts {
		data, mimeType, err := atts[i].Load(ctx)
		if err != nil {
			logger.Error().Err(err).Str("file", atts[i].Name).Msg("Failed to download attachment")
			continue
		}
		if len(data) == 0 {
			continue
		}
		att, err := r.media.Persist(ctx, data, mimeType, atts[i].Name)
		if err != nil {
			logger.Error().Err(err).Str("file", atts[i].Name).Msg("Failed to store attachment")
			continue
		}
		stored = append(stored, att)
	}
	return stored
}

func idsOf(atts []*models.Attachment) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(atts))
	for _, att := range atts {
		ids = append(ids, att.ID)
	}
	return ids
}

func (r *Router) fetchDeferred(ctx context.Context, conv *models.Conversation, msg *models.Message, fetch func(context.Context) ([]channel.InboundAttachment, error)) {
	logger := log.With().
		Str("conversation_id", conv.ID.String()).
		Str("message_id", msg.ID.String()).
		Str("platform", string(conv.Platform)).
		Logger()

	ctx, cancel := context.WithTimeout(ctx, deferredMediaTimeout)
	defer cancel()

	atts, err := fetch(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to download deferred media")
		return
	}
	stored := r.persistAttachments(ctx, atts, logger)
	if len(stored) == 0 {
		return
	}
	if err := r.store.ClaimAttachments(ctx, msg.ID, idsOf(stored)); err != nil {
		logger.Error().Err(err).Msg("Failed to attach deferred media")
		return
	}
	if msg.Content == channel.MediaPlaceholder {
		if err := r.store.SetContent(ctx, msg.ID, channel.AttachmentPlaceholder(msg.Type, stored[0].OriginalName)); err != nil {
			logger.Warn().Err(err).Msg("Failed to update media placeholder")
		}
	}

	updated, err := r.store.GetMessage(ctx, msg.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to reload message")
		return
	}
	logger.Info().Int("attachments", len(stored)).Msg("Deferred media stored")
	if r.hub != nil {
		r.hub.BroadcastNewMessage(ctx, conv, updated)
	}
}

func (r *Router) linkClient(ctx context.Context, conv *models.Conversation, ev channel.InboundEvent, logger zerolog.Logger) {
	if r.clients == nil {
		return
	}
	lookup := repo.ClientLookup{
		Platform:   ev.Platform,
		Phone:      ev.Sender.Phone,
		Email:      ev.Sender.Email,
		ExternalID: ev.ExternalID,
	}
	client, err := r.clients.FindByContact(ctx, lookup)
	if err != nil {
		logger.Warn().Err(err).Msg("Client lookup failed")
		return
	}
	if client == nil {
		hint := repo.DefaultClientInput(conv)
		logger.Info().
			Str("conversation_id", conv.ID.String()).
			Str("client_name", hint.Name).
			Str("source", string(hint.Source)).
			Msg("No client matches conversation, create one from the inbox")
		return
	}
	if err := r.store.LinkClient(ctx, conv.ID, client.ID); err != nil {
		logger.Warn().Err(err).Msg("Failed to link client")
		return
	}
	conv.ClientID = &client.ID
	logger.Info().
		Str("conversation_id", conv.ID.String()).
		Str("client_id", client.ID.String()).
		Msg("Conversation linked to existing client")
}

func eventMetadata(ev channel.InboundEvent) map[string]interface{} {
	meta := make(map[string]interface{}, len(ev.Metadata)+4)
	for k, v := range ev.Metadata {
		meta[k] = v
	}
	if ev.Sender.Name != "" {
		meta["sender_name"] = ev.Sender.Name
	}
	if ev.Sender.Phone != "" {
		meta["sender_phone"] = ev.Sender.Phone
	}
	if ev.Sender.Email != "" {
		meta["sender_email"] = ev.Sender.Email
	}
	if ev.Sender.Username != "" {
		meta["sender_username"] = ev.Sender.Username
	}
	if ev.IsFromMe {
		meta["is_from_me"] = true
	}
	return meta
}
