package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"commhub/internal/repo"
	"commhub/internal/testutil"
	"commhub/pkg/models"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAutobotFixture(t *testing.T) *echo.Echo {
	t.Helper()
	h := NewAutobotHandler(repo.NewAutobotRepository(testutil.NewDB(t)), 1)
	e := newTestEcho()
	e.GET("/autobot/settings", h.GetSettings)
	e.PUT("/autobot/settings", h.UpdateSettings)
	e.GET("/autobot/holidays", h.ListHolidays)
	e.POST("/autobot/holidays", h.CreateHoliday)
	e.DELETE("/autobot/holidays/:id", h.DeleteHoliday)
	e.GET("/autobot/logs", h.ListLogs)
	return e
}

func doJSON(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAutobotSettings_DefaultsAndUpdate(t *testing.T) {
	e := newAutobotFixture(t)

	rec := doJSON(e, http.MethodGet, "/autobot/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var settings models.AutobotSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.False(t, settings.Enabled)
	assert.Equal(t, uint(1), settings.OfficeID)
	assert.Equal(t, 120, settings.ReplyWindowMinutes)

	rec = doJSON(e, http.MethodPut, "/autobot/settings", `{
		"enabled": true,
		"timezone": "Europe/Warsaw",
		"monday_start": "09:00", "monday_end": "17:00",
		"auto_reply_message": "Dziękujemy za wiadomość. Odpowiemy w godzinach pracy.",
		"reply_window_minutes": 60,
		"platforms": "Telegram, whatsapp"
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(e, http.MethodGet, "/autobot/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	settings = models.AutobotSettings{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.True(t, settings.Enabled)
	require.NotNil(t, settings.MondayStart)
	assert.Equal(t, "09:00", *settings.MondayStart)
	assert.Nil(t, settings.TuesdayStart)
	assert.Equal(t, 60, settings.ReplyWindowMinutes)
	assert.True(t, settings.PlatformEnabled(models.PlatformTelegram))
	assert.False(t, settings.PlatformEnabled(models.PlatformEmail))
}

func TestAutobotSettings_Validation(t *testing.T) {
	e := newAutobotFixture(t)

	for name, body := range map[string]string{
		"unknown timezone": `{"timezone": "Mars/Olympus"}`,
		"missing timezone": `{"enabled": true}`,
		"bad time":         `{"timezone": "UTC", "monday_start": "25:00"}`,
		"unknown platform": `{"timezone": "UTC", "platforms": "telegram,viber"}`,
		"negative window":  `{"timezone": "UTC", "reply_window_minutes": -5}`,
	} {
		rec := doJSON(e, http.MethodPut, "/autobot/settings", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestAutobotHolidays(t *testing.T) {
	e := newAutobotFixture(t)

	rec := doJSON(e, http.MethodPost, "/autobot/holidays", `{"date": "2026-12-24", "name": "Wigilia", "is_recurring": true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.Holiday
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	rec = doJSON(e, http.MethodPost, "/autobot/holidays", `{"date": "24.12.2026", "name": "Wigilia"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodGet, "/autobot/holidays", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var holidays []models.Holiday
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &holidays))
	require.Len(t, holidays, 1)
	assert.Equal(t, "Wigilia", holidays[0].Name)
	assert.True(t, holidays[0].IsRecurring)

	target := fmt.Sprintf("/autobot/holidays/%d", created.ID)
	assert.Equal(t, http.StatusNoContent, doJSON(e, http.MethodDelete, target, "").Code)
	assert.Equal(t, http.StatusNotFound, doJSON(e, http.MethodDelete, target, "").Code)
}

func TestAutobotLogs(t *testing.T) {
	e := newAutobotFixture(t)

	rec := doJSON(e, http.MethodGet, "/autobot/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = doJSON(e, http.MethodGet, "/autobot/logs?conversation_id=not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
