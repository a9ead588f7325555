package handlers

import (
	"context"
	"net/http"

	"commhub/pkg/models"

	"github.com/labstack/echo/v4"
)

// MailboxLister lists configured mailboxes
type MailboxLister interface {
	ListActive(ctx context.Context) ([]models.EmailMailbox, error)
}

// MailboxHandler exposes the configured email identities
type MailboxHandler struct {
	mailboxes MailboxLister
}

// NewMailboxHandler creates a new mailbox handler
func NewMailboxHandler(mailboxes MailboxLister) *MailboxHandler {
	return &MailboxHandler{mailboxes: mailboxes}
}

// List godoc
// @Summary List active mailboxes
// @Description Credentials are never returned
// @Tags communications
// @Produce json
// @Success 200 {array} models.EmailMailbox
// @Router /communications/mailboxes [get]
func (h *MailboxHandler) List(c echo.Context) error {
	mailboxes, err := h.mailboxes.ListActive(c.Request().Context())
	if err != nil {
		return err
	}
	if mailboxes == nil {
		mailboxes = []models.EmailMailbox{}
	}
	return c.JSON(http.StatusOK, mailboxes)
}
