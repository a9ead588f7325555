package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"commhub/internal/apperr"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NeedsAttentionDelay is how long an assigned conversation may wait on an
// unanswered inbound before it is flagged
const NeedsAttentionDelay = 10 * time.Minute

// ConversationStore handles conversation, message and attachment data access
type ConversationStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewConversationStore creates a new conversation store
func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock returns a copy of the store that reads time from now
func (s *ConversationStore) WithClock(now func() time.Time) *ConversationStore {
	cp := *s
	cp.now = now
	return &cp
}

// UpsertConversationInput identifies a conversation and carries the values
// that may be filled in on an existing row
type UpsertConversationInput struct {
	Platform   models.Platform
	ExternalID string
	Subject    string
	// SubjectIsFallback marks synthetic subjects such as "Group <id>" which
	// never replace a real one
	SubjectIsFallback bool
	MailboxID         *uint
	ClientID          *uuid.UUID
}

// UpsertConversation returns the live conversation for (platform, external_id,
// mailbox), creating it when absent. The second result reports creation.
func (s *ConversationStore) UpsertConversation(ctx context.Context, in UpsertConversationInput) (*models.Conversation, bool, error) {
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	if in.ExternalID == "" {
		return nil, false, apperr.Validation("external_id is required")
	}
	if _, ok := models.ParsePlatform(string(in.Platform)); !ok {
		return nil, false, apperr.Validation("unknown platform %q", in.Platform)
	}

	var conv *models.Conversation
	var created bool
	// A concurrent insert of the same identity loses on the unique index; the
	// second attempt then finds the winner's row.
	for attempt := 0; attempt < 2; attempt++ {
		var err error
		conv, created, err = s.upsertOnce(ctx, in)
		if err == nil {
			return conv, created, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("upsert conversation %s/%s: concurrent insert did not settle", in.Platform, in.ExternalID)
}

func (s *ConversationStore) upsertOnce(ctx context.Context, in UpsertConversationInput) (*models.Conversation, bool, error) {
	var conv models.Conversation
	created := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := findConversation(tx, in.Platform, in.ExternalID, in.MailboxID)
		if err != nil {
			return err
		}

		// Adopt a mailbox-less row the first time a mailbox receives for it
		if found == nil && in.MailboxID != nil {
			found, err = findConversation(tx, in.Platform, in.ExternalID, nil)
			if err != nil {
				return err
			}
			if found != nil {
				if err := tx.Model(found).Update("manager_mailbox_id", *in.MailboxID).Error; err != nil {
					return err
				}
				found.ManagerMailboxID = in.MailboxID
			}
		}

		if found == nil {
			conv = models.Conversation{
				Platform:         in.Platform,
				ExternalID:       in.ExternalID,
				ClientID:         in.ClientID,
				ManagerMailboxID: in.MailboxID,
			}
			if subject, ok := nextSubject(nil, in.Subject, in.SubjectIsFallback); ok {
				conv.Subject = subject
			}
			created = true
			return tx.Create(&conv).Error
		}

		conv = *found
		updates := map[string]interface{}{}
		if subject, ok := nextSubject(conv.Subject, in.Subject, in.SubjectIsFallback); ok {
			updates["subject"] = *subject
			conv.Subject = subject
		}
		if conv.ClientID == nil && in.ClientID != nil {
			updates["client_id"] = *in.ClientID
			conv.ClientID = in.ClientID
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &conv, created, nil
}

func findConversation(tx *gorm.DB, platform models.Platform, externalID string, mailboxID *uint) (*models.Conversation, error) {
	var conv models.Conversation
	q := tx.Where("platform = ? AND external_id = ?", platform, externalID)
	if mailboxID != nil {
		q = q.Where("manager_mailbox_id = ?", *mailboxID)
	} else {
		q = q.Where("manager_mailbox_id IS NULL")
	}
	err := q.Order("created_at ASC").First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// nextSubject decides whether an incoming subject replaces the current one.
// Fallback subjects only fill an empty slot.
func nextSubject(current *string, incoming string, fallback bool) (*string, bool) {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return nil, false
	}
	hasCurrent := current != nil && *current != ""
	if fallback && hasCurrent {
		return nil, false
	}
	if hasCurrent && *current == incoming {
		return nil, false
	}
	return &incoming, true
}

// GetConversation gets a conversation by ID
func (s *ConversationStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("conversation %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// SetArchived archives or unarchives a conversation
func (s *ConversationStore) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	result := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("is_archived", archived)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("conversation %s not found", id)
	}
	return nil
}

// AssignManager fills the assigned manager only when none is set. The bool
// result reports whether this call made the assignment.
func (s *ConversationStore) AssignManager(ctx context.Context, id, userID uuid.UUID, userName string) (*models.Conversation, bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND assigned_manager_id IS NULL", id).
		Updates(map[string]interface{}{
			"assigned_manager_id":   userID,
			"assigned_manager_name": userName,
		})
	if result.Error != nil {
		return nil, false, result.Error
	}
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return conv, result.RowsAffected > 0, nil
}

// LinkClient links a conversation to a CRM client
func (s *ConversationStore) LinkClient(ctx context.Context, id, clientID uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("client_id", clientID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("conversation %s not found", id)
	}
	return nil
}

// TouchManagerResponse records that a manager answered at the given instant
func (s *ConversationStore) TouchManagerResponse(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("last_manager_response_at", at.UTC()).Error
}

// MarkRead flips every unread inbound message of a conversation to read and
// returns how many changed
func (s *ConversationStore) MarkRead(ctx context.Context, id uuid.UUID) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND direction = ? AND status <> ?", id, models.DirectionInbound, models.StatusRead).
		Update("status", models.StatusRead)
	return result.RowsAffected, result.Error
}

// LatestInbound returns the newest inbound message of a conversation, or nil
func (s *ConversationStore) LatestInbound(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return latestMessage(s.db.WithContext(ctx), id, models.DirectionInbound)
}

func latestMessage(tx *gorm.DB, conversationID uuid.UUID, direction models.Direction) (*models.Message, error) {
	var msg models.Message
	q := tx.Where("conversation_id = ?", conversationID)
	if direction != "" {
		q = q.Where("direction = ?", direction)
	}
	err := q.Order("created_at DESC, id DESC").First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msg.Normalize()
	return &msg, nil
}

// ListInbox lists conversation summaries for the operator inbox
func (s *ConversationStore) ListInbox(ctx context.Context, q models.InboxQuery) (models.PaginationResult[models.InboxItem], error) {
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	db := s.db.WithContext(ctx)
	query := db.Model(&models.Conversation{})
	switch q.Filter {
	case models.InboxArchived:
		query = query.Where("is_archived = ?", true)
	case models.InboxNew:
		query = query.Where("is_archived = ?", false).
			Where("EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = conversations.id AND m.direction = ? AND m.status <> ?)",
				models.DirectionInbound, models.StatusRead)
	default:
		query = query.Where("is_archived = ?", false)
	}
	if q.Platform != "" {
		query = query.Where("platform = ?", q.Platform)
	}
	if search := strings.ToLower(strings.TrimSpace(q.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where(
			"LOWER(COALESCE(subject, '')) LIKE ? OR LOWER(external_id) LIKE ? OR client_id IN (SELECT id FROM clients WHERE LOWER(name) LIKE ?)",
			like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return models.PaginationResult[models.InboxItem]{}, err
	}

	var convs []models.Conversation
	err := query.
		Order("CASE WHEN last_message_at IS NULL THEN 1 ELSE 0 END, last_message_at DESC, id DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&convs).Error
	if err != nil {
		return models.PaginationResult[models.InboxItem]{}, err
	}

	items, err := s.summarize(db, convs)
	if err != nil {
		return models.PaginationResult[models.InboxItem]{}, err
	}
	return models.NewPaginationResult(items, total, q.Limit, q.Offset), nil
}

func (s *ConversationStore) summarize(db *gorm.DB, convs []models.Conversation) ([]models.InboxItem, error) {
	if len(convs) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(convs))
	var clientIDs []uuid.UUID
	for _, c := range convs {
		ids = append(ids, c.ID)
		if c.ClientID != nil {
			clientIDs = append(clientIDs, *c.ClientID)
		}
	}

	var unread []struct {
		ConversationID uuid.UUID
		Count          int64
	}
	err := db.Model(&models.Message{}).
		Select("conversation_id, COUNT(*) AS count").
		Where("conversation_id IN ? AND direction = ? AND status <> ?", ids, models.DirectionInbound, models.StatusRead).
		Group("conversation_id").
		Scan(&unread).Error
	if err != nil {
		return nil, err
	}
	unreadBy := make(map[uuid.UUID]int64, len(unread))
	for _, u := range unread {
		unreadBy[u.ConversationID] = u.Count
	}

	names, err := clientNames(db, clientIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	items := make([]models.InboxItem, 0, len(convs))
	for _, c := range convs {
		last, err := latestMessage(db, c.ID, "")
		if err != nil {
			return nil, err
		}
		var latestInboundAt *time.Time
		if last != nil && last.Direction == models.DirectionInbound {
			latestInboundAt = &last.CreatedAt
		} else if c.AssignedManagerID != nil {
			inbound, err := latestMessage(db, c.ID, models.DirectionInbound)
			if err != nil {
				return nil, err
			}
			if inbound != nil {
				latestInboundAt = &inbound.CreatedAt
			}
		}
		item := models.InboxItem{
			Conversation:   c,
			UnreadCount:    unreadBy[c.ID],
			NeedsAttention: NeedsAttention(&c, latestInboundAt, now),
			LastMessage:    last,
			PlatformName:   PlatformName(c.Platform),
			PlatformIcon:   PlatformIcon(c.Platform),
		}
		if c.ClientID != nil {
			item.ClientName = names[*c.ClientID]
		}
		items = append(items, item)
	}
	return items, nil
}

func clientNames(db *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var clients []models.Client
	if err := db.Select("id, name").Where("id IN ?", ids).Find(&clients).Error; err != nil {
		return nil, err
	}
	for _, c := range clients {
		out[c.ID] = c.Name
	}
	return out, nil
}

// NeedsAttention reports whether an assigned conversation has an inbound
// message newer than the last manager response, with the response (if any)
// at least NeedsAttentionDelay old
func NeedsAttention(conv *models.Conversation, latestInboundAt *time.Time, now time.Time) bool {
	if conv.AssignedManagerID == nil || latestInboundAt == nil {
		return false
	}
	last := conv.LastManagerResponseAt
	if last == nil {
		return true
	}
	if !latestInboundAt.After(*last) {
		return false
	}
	return now.Sub(*last) >= NeedsAttentionDelay
}

// GetConversationWindow returns a reverse-chronological page of messages with
// their attachments
func (s *ConversationStore) GetConversationWindow(ctx context.Context, id uuid.UUID, limit, offset int) (*models.ConversationWindow, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.Message{}).Where("conversation_id = ?", id).Count(&total).Error; err != nil {
		return nil, err
	}

	var messages []models.Message
	err = db.Where("conversation_id = ?", id).
		Preload("Attachments", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC, id ASC") }).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].Normalize()
	}
	if messages == nil {
		messages = []models.Message{}
	}

	window := &models.ConversationWindow{
		Conversation:    *conv,
		Messages:        messages,
		Total:           total,
		HasMoreMessages: int64(offset+len(messages)) < total,
	}
	if conv.ClientID != nil {
		names, err := clientNames(db, []uuid.UUID{*conv.ClientID})
		if err != nil {
			return nil, err
		}
		window.ClientName = names[*conv.ClientID]
	}
	return window, nil
}

// RecentMessages returns up to n newest messages in chronological order
func (s *ConversationStore) RecentMessages(ctx context.Context, id uuid.UUID, n int) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", id).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ClientName returns the linked client's name, or an empty string
func (s *ConversationStore) ClientName(ctx context.Context, conv *models.Conversation) string {
	if conv == nil || conv.ClientID == nil {
		return ""
	}
	names, err := clientNames(s.db.WithContext(ctx), []uuid.UUID{*conv.ClientID})
	if err != nil {
		return ""
	}
	return names[*conv.ClientID]
}

// PlatformName returns the display name of a platform
func PlatformName(p models.Platform) string {
	switch p {
	case models.PlatformTelegram:
		return "Telegram"
	case models.PlatformWhatsApp:
		return "WhatsApp"
	case models.PlatformEmail:
		return "Email"
	case models.PlatformFacebook:
		return "Facebook"
	case models.PlatformInstagram:
		return "Instagram"
	}
	return string(p)
}

// PlatformIcon returns the UI icon key of a platform
func PlatformIcon(p models.Platform) string {
	switch p {
	case models.PlatformTelegram:
		return "telegram"
	case models.PlatformWhatsApp:
		return "whatsapp"
	case models.PlatformEmail:
		return "mail"
	case models.PlatformFacebook:
		return "facebook-messenger"
	case models.PlatformInstagram:
		return "instagram"
	}
	return "message"
}
