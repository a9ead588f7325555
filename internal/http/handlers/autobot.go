package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"commhub/internal/apperr"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// AutobotStore persists autobot configuration and its audit log
type AutobotStore interface {
	GetSettings(ctx context.Context, officeID uint) (*models.AutobotSettings, error)
	SaveSettings(ctx context.Context, settings *models.AutobotSettings) error
	ListHolidays(ctx context.Context) ([]models.Holiday, error)
	CreateHoliday(ctx context.Context, h *models.Holiday) error
	DeleteHoliday(ctx context.Context, id uint) error
	ListLogs(ctx context.Context, conversationID *uuid.UUID, limit int) ([]models.AutobotLog, error)
}

// AutobotHandler manages out-of-hours auto-reply configuration
type AutobotHandler struct {
	store    AutobotStore
	officeID uint
}

// NewAutobotHandler creates a new autobot handler
func NewAutobotHandler(store AutobotStore, officeID uint) *AutobotHandler {
	return &AutobotHandler{store: store, officeID: officeID}
}

// AutobotSettingsRequest replaces the office's autobot settings.
// Day bounds use the 15:04 layout; a day without both bounds is non-working.
type AutobotSettingsRequest struct {
	Enabled            bool    `json:"enabled"`
	Timezone           string  `json:"timezone" validate:"required"`
	MondayStart        *string `json:"monday_start" validate:"omitempty,datetime=15:04"`
	MondayEnd          *string `json:"monday_end" validate:"omitempty,datetime=15:04"`
	TuesdayStart       *string `json:"tuesday_start" validate:"omitempty,datetime=15:04"`
	TuesdayEnd         *string `json:"tuesday_end" validate:"omitempty,datetime=15:04"`
	WednesdayStart     *string `json:"wednesday_start" validate:"omitempty,datetime=15:04"`
	WednesdayEnd       *string `json:"wednesday_end" validate:"omitempty,datetime=15:04"`
	ThursdayStart      *string `json:"thursday_start" validate:"omitempty,datetime=15:04"`
	ThursdayEnd        *string `json:"thursday_end" validate:"omitempty,datetime=15:04"`
	FridayStart        *string `json:"friday_start" validate:"omitempty,datetime=15:04"`
	FridayEnd          *string `json:"friday_end" validate:"omitempty,datetime=15:04"`
	SaturdayStart      *string `json:"saturday_start" validate:"omitempty,datetime=15:04"`
	SaturdayEnd        *string `json:"saturday_end" validate:"omitempty,datetime=15:04"`
	SundayStart        *string `json:"sunday_start" validate:"omitempty,datetime=15:04"`
	SundayEnd          *string `json:"sunday_end" validate:"omitempty,datetime=15:04"`
	AutoReplyMessage   string  `json:"auto_reply_message" validate:"max=4096"`
	UseAIReply         bool    `json:"use_ai_reply"`
	ReplyWindowMinutes int     `json:"reply_window_minutes" validate:"min=0,max=10080"`
	Platforms          string  `json:"platforms" validate:"max=255"`
}

// HolidayRequest creates a holiday
type HolidayRequest struct {
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Name        string `json:"name" validate:"required,max=255"`
	IsRecurring bool   `json:"is_recurring"`
}

// GetSettings godoc
// @Summary Get autobot settings
// @Tags autobot
// @Produce json
// @Success 200 {object} models.AutobotSettings
// @Router /communications/autobot/settings [get]
func (h *AutobotHandler) GetSettings(c echo.Context) error {
	settings, err := h.store.GetSettings(c.Request().Context(), h.officeID)
	if err != nil {
		return err
	}
	if settings == nil {
		settings = &models.AutobotSettings{
			OfficeID:           h.officeID,
			Timezone:           "Europe/Warsaw",
			ReplyWindowMinutes: 120,
		}
	}
	return c.JSON(http.StatusOK, settings)
}

// UpdateSettings godoc
// @Summary Replace autobot settings
// @Tags autobot
// @Accept json
// @Produce json
// @Param request body AutobotSettingsRequest true "Settings"
// @Success 200 {object} models.AutobotSettings
// @Failure 400 {object} ErrorResponse
// @Router /communications/autobot/settings [put]
func (h *AutobotHandler) UpdateSettings(c echo.Context) error {
	var req AutobotSettingsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return badRequest(c, err.Error())
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		return apperr.Validation("unknown timezone %q", req.Timezone)
	}
	for _, p := range strings.Split(req.Platforms, ",") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if _, ok := models.ParsePlatform(p); !ok {
			return apperr.Validation("unknown platform %q", p)
		}
	}

	settings := &models.AutobotSettings{
		OfficeID:           h.officeID,
		Enabled:            req.Enabled,
		Timezone:           req.Timezone,
		MondayStart:        req.MondayStart,
		MondayEnd:          req.MondayEnd,
		TuesdayStart:       req.TuesdayStart,
		TuesdayEnd:         req.TuesdayEnd,
		WednesdayStart:     req.WednesdayStart,
		WednesdayEnd:       req.WednesdayEnd,
		ThursdayStart:      req.ThursdayStart,
		ThursdayEnd:        req.ThursdayEnd,
		FridayStart:        req.FridayStart,
		FridayEnd:          req.FridayEnd,
		SaturdayStart:      req.SaturdayStart,
		SaturdayEnd:        req.SaturdayEnd,
		SundayStart:        req.SundayStart,
		SundayEnd:          req.SundayEnd,
		AutoReplyMessage:   req.AutoReplyMessage,
		UseAIReply:         req.UseAIReply,
		ReplyWindowMinutes: req.ReplyWindowMinutes,
		Platforms:          strings.ToLower(req.Platforms),
	}
	if err := h.store.SaveSettings(c.Request().Context(), settings); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, settings)
}

// ListHolidays godoc
// @Summary List holidays
// @Tags autobot
// @Produce json
// @Success 200 {array} models.Holiday
// @Router /communications/autobot/holidays [get]
func (h *AutobotHandler) ListHolidays(c echo.Context) error {
	holidays, err := h.store.ListHolidays(c.Request().Context())
	if err != nil {
		return err
	}
	if holidays == nil {
		holidays = []models.Holiday{}
	}
	return c.JSON(http.StatusOK, holidays)
}

// CreateHoliday godoc
// @Summary Add a holiday
// @Tags autobot
// @Accept json
// @Produce json
// @Param request body HolidayRequest true "Holiday"
// @Success 201 {object} models.Holiday
// @Failure 400 {object} ErrorResponse
// @Router /communications/autobot/holidays [post]
func (h *AutobotHandler) CreateHoliday(c echo.Context) error {
	var req HolidayRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return badRequest(c, err.Error())
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return apperr.Validation("invalid date %q", req.Date)
	}
	holiday := &models.Holiday{Date: date, Name: strings.TrimSpace(req.Name), IsRecurring: req.IsRecurring}
	if err := h.store.CreateHoliday(c.Request().Context(), holiday); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, holiday)
}

// DeleteHoliday godoc
// @Summary Remove a holiday
// @Tags autobot
// @Param id path int true "Holiday ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /communications/autobot/holidays/{id} [delete]
func (h *AutobotHandler) DeleteHoliday(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return apperr.Validation("invalid id")
	}
	if err := h.store.DeleteHoliday(c.Request().Context(), uint(id)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListLogs godoc
// @Summary Autobot audit log
// @Tags autobot
// @Produce json
// @Param conversation_id query string false "Conversation ID"
// @Param limit query int false "Rows" default(100)
// @Success 200 {array} models.AutobotLog
// @Router /communications/autobot/logs [get]
func (h *AutobotHandler) ListLogs(c echo.Context) error {
	var convID *uuid.UUID
	if v := c.QueryParam("conversation_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return apperr.Validation("invalid conversation_id")
		}
		convID = &id
	}
	logs, err := h.store.ListLogs(c.Request().Context(), convID, queryInt(c, "limit", 100))
	if err != nil {
		return err
	}
	if logs == nil {
		logs = []models.AutobotLog{}
	}
	return c.JSON(http.StatusOK, logs)
}
