package realtime

import (
	"context"
	"time"

	"commhub/internal/repo"
	"commhub/pkg/models"

	"github.com/google/uuid"
)

// ClientNamer resolves the linked client name of a conversation
type ClientNamer interface {
	ClientName(ctx context.Context, conv *models.Conversation) string
}

// Notifier builds the conversation envelopes sent through the hub
type Notifier struct {
	hub   *Hub
	names ClientNamer
	now   func() time.Time
}

// NewNotifier creates a new notifier
func NewNotifier(hub *Hub, names ClientNamer) *Notifier {
	return &Notifier{hub: hub, names: names, now: time.Now}
}

// BroadcastNewMessage announces a stored message
func (n *Notifier) BroadcastNewMessage(ctx context.Context, conv *models.Conversation, msg *models.Message) {
	msg.Normalize()
	n.hub.Broadcast(ctx, EventNewMessage, map[string]interface{}{
		"conversation_id": conv.ID,
		"platform":        conv.Platform,
		"platform_name":   repo.PlatformName(conv.Platform),
		"platform_icon":   repo.PlatformIcon(conv.Platform),
		"message":         msg,
		"conversation":    n.conversationBlock(ctx, conv),
	})
}

func (n *Notifier) conversationBlock(ctx context.Context, conv *models.Conversation) map[string]interface{} {
	block := map[string]interface{}{
		"id":          conv.ID,
		"platform":    conv.Platform,
		"external_id": conv.ExternalID,
		"subject":     conv.Subject,
		"client_id":   conv.ClientID,
		"client_name": "",
	}
	if conv.ClientID != nil {
		if n.names != nil {
			block["client_name"] = n.names.ClientName(ctx, conv)
		}
		return block
	}
	hint := repo.DefaultClientInput(conv)
	block["client_hint"] = map[string]interface{}{
		"name":   hint.Name,
		"phone":  hint.Phone,
		"email":  hint.Email,
		"source": hint.Source,
	}
	return block
}

// BroadcastMessageDeleted announces a removed message
func (n *Notifier) BroadcastMessageDeleted(ctx context.Context, conversationID, messageID uuid.UUID) {
	n.hub.Broadcast(ctx, EventMessageDeleted, map[string]interface{}{
		"message_id":      messageID,
		"conversation_id": conversationID,
	})
}

// BroadcastManagerAssigned announces a new conversation owner
func (n *Notifier) BroadcastManagerAssigned(ctx context.Context, conv *models.Conversation) {
	n.hub.Broadcast(ctx, EventManagerAssigned, map[string]interface{}{
		"conversation_id": conv.ID,
		"manager_id":      conv.AssignedManagerID,
		"manager_name":    conv.AssignedManagerName,
		"timestamp":       n.now().UTC(),
	})
}
