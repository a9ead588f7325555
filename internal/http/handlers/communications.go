package handlers

import (
	"net/http"
	"strconv"

	"commhub/internal/apperr"
	"commhub/internal/http/middleware"
	"commhub/internal/operator"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// CommunicationsHandler serves the operator inbox
type CommunicationsHandler struct {
	ops *operator.Service
}

// NewCommunicationsHandler creates a new communications handler
func NewCommunicationsHandler(ops *operator.Service) *CommunicationsHandler {
	return &CommunicationsHandler{ops: ops}
}

// SendFailedResponse is returned when the provider rejected a message
type SendFailedResponse struct {
	ErrorResponse
	Message *models.Message `json:"message"`
}

// Inbox godoc
// @Summary List conversations
// @Description Paginated inbox ordered by last activity
// @Tags communications
// @Produce json
// @Param filter query string false "all, new or archived"
// @Param platform query string false "Platform"
// @Param search query string false "Search in subject and external id"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset"
// @Success 200 {object} models.PaginationResult[models.InboxItem]
// @Failure 400 {object} ErrorResponse
// @Router /communications/inbox [get]
func (h *CommunicationsHandler) Inbox(c echo.Context) error {
	q := models.InboxQuery{
		Filter:   models.InboxFilter(c.QueryParam("filter")),
		Platform: models.Platform(c.QueryParam("platform")),
		Search:   c.QueryParam("search"),
		Limit:    queryInt(c, "limit", 20),
		Offset:   queryInt(c, "offset", 0),
	}
	result, err := h.ops.Inbox(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// GetConversation godoc
// @Summary Get a conversation
// @Tags communications
// @Produce json
// @Param id path string true "Conversation ID"
// @Param limit query int false "Messages per page" default(50)
// @Param offset query int false "Messages to skip from the newest"
// @Success 200 {object} models.ConversationWindow
// @Failure 404 {object} ErrorResponse
// @Router /communications/conversations/{id} [get]
func (h *CommunicationsHandler) GetConversation(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	window, err := h.ops.GetConversation(c.Request().Context(), id, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, window)
}

// SendMessage godoc
// @Summary Send a reply
// @Description Sends a message through the conversation's platform. The caller becomes the manager of an unassigned conversation.
// @Tags communications
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param request body operator.SendInput true "Message"
// @Success 201 {object} models.Message
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} SendFailedResponse
// @Router /communications/conversations/{id}/messages [post]
func (h *CommunicationsHandler) SendMessage(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req operator.SendInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return badRequest(c, err.Error())
	}

	msg, err := h.ops.SendMessage(c.Request().Context(), middleware.GetPrincipal(c), id, req)
	if err != nil {
		if msg == nil {
			return err
		}
		return c.JSON(apperr.HTTPStatus(err), SendFailedResponse{
			ErrorResponse: ErrorResponse{Error: err.Error(), Kind: string(apperr.KindOf(err))},
			Message:       msg,
		})
	}
	return c.JSON(http.StatusCreated, msg)
}

// MarkRead godoc
// @Summary Mark a conversation read
// @Tags communications
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} map[string]int64
// @Failure 404 {object} ErrorResponse
// @Router /communications/conversations/{id}/mark-read [post]
func (h *CommunicationsHandler) MarkRead(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	n, err := h.ops.MarkRead(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"updated": n})
}

// Archive godoc
// @Summary Archive a conversation
// @Tags communications
// @Param id path string true "Conversation ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /communications/conversations/{id}/archive [post]
func (h *CommunicationsHandler) Archive(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.ops.Archive(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Unarchive godoc
// @Summary Unarchive a conversation
// @Tags communications
// @Param id path string true "Conversation ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /communications/conversations/{id}/unarchive [post]
func (h *CommunicationsHandler) Unarchive(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.ops.Unarchive(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// AssignManager godoc
// @Summary Take over a conversation
// @Tags communications
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} models.Conversation
// @Failure 403 {object} ErrorResponse
// @Router /communications/conversations/{id}/assign-manager [post]
func (h *CommunicationsHandler) AssignManager(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	conv, err := h.ops.AssignManager(c.Request().Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conv)
}

// CreateClient godoc
// @Summary Create a client from a conversation
// @Tags communications
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param request body operator.ClientOverrides false "Values replacing the derived ones"
// @Success 201 {object} models.Client
// @Failure 400 {object} ErrorResponse
// @Router /communications/conversations/{id}/create-client [post]
func (h *CommunicationsHandler) CreateClient(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req operator.ClientOverrides
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		if err := c.Validate(req); err != nil {
			return badRequest(c, err.Error())
		}
	}
	client, err := h.ops.CreateClient(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, client)
}

// LinkClient godoc
// @Summary Link a conversation to an existing client
// @Tags communications
// @Param id path string true "Conversation ID"
// @Param client_id path string true "Client ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /communications/conversations/{id}/link-client/{client_id} [post]
func (h *CommunicationsHandler) LinkClient(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	clientID, err := pathUUID(c, "client_id")
	if err != nil {
		return err
	}
	if err := h.ops.LinkClient(c.Request().Context(), id, clientID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteMessage godoc
// @Summary Delete a message
// @Tags communications
// @Param id path string true "Message ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /communications/messages/{id} [delete]
func (h *CommunicationsHandler) DeleteMessage(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.ops.DeleteMessage(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

func queryInt(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
