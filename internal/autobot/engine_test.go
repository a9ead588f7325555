package autobot

import (
	"context"
	"sync"
	"testing"
	"time"

	"commhub/internal/ai"
	"commhub/internal/channel"
	"commhub/internal/repo"
	"commhub/internal/testutil"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	reqs []channel.SendRequest
	err  error
}

func (f *fakeSender) Send(_ context.Context, req channel.SendRequest) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	msg := &models.Message{ConversationID: req.ConversationID, Content: req.Content, Direction: models.DirectionOutbound}
	msg.ID = uuid.Must(uuid.NewV7())
	if f.err != nil {
		msg.Status = models.StatusFailed
		return msg, f.err
	}
	msg.Status = models.StatusSent
	return msg, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakeReplier struct {
	reply string
	err   error
	got   ai.ReplyRequest
}

func (f *fakeReplier) Reply(_ context.Context, req ai.ReplyRequest) (string, error) {
	f.got = req
	return f.reply, f.err
}

type fakeHistory []models.Message

func (h fakeHistory) RecentMessages(context.Context, uuid.UUID, int) ([]models.Message, error) {
	return h, nil
}

func strp(s string) *string { return &s }

func weekdaySettings() *models.AutobotSettings {
	return &models.AutobotSettings{
		OfficeID:         1,
		Enabled:          true,
		Timezone:         "Europe/Warsaw",
		MondayStart:      strp("09:00"),
		MondayEnd:        strp("17:00"),
		TuesdayStart:     strp("09:00"),
		TuesdayEnd:       strp("17:00"),
		WednesdayStart:   strp("09:00"),
		WednesdayEnd:     strp("17:00"),
		ThursdayStart:    strp("09:00"),
		ThursdayEnd:      strp("17:00"),
		FridayStart:      strp("09:00"),
		FridayEnd:        strp("17:00"),
		AutoReplyMessage: "We are closed, we will answer on Monday.",
	}
}

func inbound(convID uuid.UUID) *models.Message {
	msg := &models.Message{ConversationID: convID, Direction: models.DirectionInbound, Content: "Hello?"}
	msg.ID = uuid.Must(uuid.NewV7())
	return msg
}

func warsaw(t *testing.T, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)
	layout := "2006-01-02 15:04"
	if len(value) > len(layout) {
		layout += ":05"
	}
	ts, err := time.ParseInLocation(layout, value, loc)
	require.NoError(t, err)
	return ts.UTC()
}

func newEngine(t *testing.T, settings *models.AutobotSettings) (*Engine, *repo.AutobotRepository, *fakeSender, *testutil.Clock) {
	t.Helper()
	store := repo.NewAutobotRepository(testutil.NewDB(t))
	if settings != nil {
		require.NoError(t, store.SaveSettings(context.Background(), settings))
	}
	sender := &fakeSender{}
	clock := &testutil.Clock{}
	engine := NewEngine(store, nil, sender, nil, 1).WithClock(clock.Now)
	return engine, store, sender, clock
}

func TestEngine_OutOfHoursRepliesOncePerWindow(t *testing.T) {
	ctx := context.Background()
	engine, store, sender, clock := newEngine(t, weekdaySettings())
	conv := &models.Conversation{Platform: models.PlatformTelegram}
	conv.ID = uuid.Must(uuid.NewV7())

	// Saturday afternoon
	clock.T = warsaw(t, "2026-01-03 14:00")
	assert.Equal(t, OutcomeReplied, engine.Consider(ctx, conv, inbound(conv.ID)))
	require.Equal(t, 1, sender.count())
	assert.Equal(t, "We are closed, we will answer on Monday.", sender.reqs[0].Content)
	assert.Equal(t, channel.AutobotAuthor, sender.reqs[0].Author)

	clock.Advance(30 * time.Minute)
	assert.Equal(t, OutcomeCooldown, engine.Consider(ctx, conv, inbound(conv.ID)))
	assert.Equal(t, 1, sender.count())

	logs, err := store.ListLogs(ctx, &conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AutobotActionAutoReply, logs[0].Action)
	assert.True(t, logs[0].Success)
	assert.Equal(t, conv.ID.String(), logs[0].Metadata["conversation_id"])
	assert.Equal(t, false, logs[0].Metadata["ai_generated"])
	assert.NotEmpty(t, logs[0].Metadata["message_id"])

	// The window has passed
	clock.Advance(2 * time.Hour)
	assert.Equal(t, OutcomeReplied, engine.Consider(ctx, conv, inbound(conv.ID)))
	assert.Equal(t, 2, sender.count())
}

func TestEngine_WorkingHoursAndGuards(t *testing.T) {
	ctx := context.Background()
	conv := &models.Conversation{Platform: models.PlatformWhatsApp}
	conv.ID = uuid.Must(uuid.NewV7())

	t.Run("inside working hours", func(t *testing.T) {
		engine, _, sender, clock := newEngine(t, weekdaySettings())
		clock.T = warsaw(t, "2026-01-05 10:30")
		assert.Equal(t, OutcomeWorkingHours, engine.Consider(ctx, conv, inbound(conv.ID)))
		assert.Zero(t, sender.count())
	})

	t.Run("no settings", func(t *testing.T) {
		engine, _, _, clock := newEngine(t, nil)
		clock.T = warsaw(t, "2026-01-03 14:00")
		assert.Equal(t, OutcomeDisabled, engine.Consider(ctx, conv, inbound(conv.ID)))
	})

	t.Run("platform not enabled", func(t *testing.T) {
		s := weekdaySettings()
		s.Platforms = "telegram,email"
		engine, _, _, clock := newEngine(t, s)
		clock.T = warsaw(t, "2026-01-03 14:00")
		assert.Equal(t, OutcomePlatformOff, engine.Consider(ctx, conv, inbound(conv.ID)))
	})

	t.Run("outbound message", func(t *testing.T) {
		engine, _, _, clock := newEngine(t, weekdaySettings())
		clock.T = warsaw(t, "2026-01-03 14:00")
		msg := inbound(conv.ID)
		msg.Direction = models.DirectionOutbound
		assert.Equal(t, OutcomeNotInbound, engine.Consider(ctx, conv, msg))
	})

	t.Run("holiday on a weekday", func(t *testing.T) {
		engine, store, sender, clock := newEngine(t, weekdaySettings())
		require.NoError(t, store.CreateHoliday(ctx, &models.Holiday{
			Date:        time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
			Name:        "Epiphany",
			IsRecurring: true,
		}))
		clock.T = warsaw(t, "2026-01-06 10:30")
		assert.Equal(t, OutcomeReplied, engine.Consider(ctx, conv, inbound(conv.ID)))
		assert.Equal(t, 1, sender.count())
	})
}

func TestEngine_BurstRepliesOnce(t *testing.T) {
	ctx := context.Background()
	engine, store, sender, clock := newEngine(t, weekdaySettings())
	clock.T = warsaw(t, "2026-01-04 22:00")
	conv := &models.Conversation{Platform: models.PlatformEmail}
	conv.ID = uuid.Must(uuid.NewV7())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.Consider(ctx, conv, inbound(conv.ID))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, sender.count())
	logs, err := store.ListLogs(ctx, &conv.ID, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestEngine_AIReply(t *testing.T) {
	ctx := context.Background()
	s := weekdaySettings()
	s.UseAIReply = true
	store := repo.NewAutobotRepository(testutil.NewDB(t))
	require.NoError(t, store.SaveSettings(ctx, s))
	conv := &models.Conversation{Platform: models.PlatformFacebook}
	conv.ID = uuid.Must(uuid.NewV7())
	history := fakeHistory{{Direction: models.DirectionInbound, Content: "Hello?"}}
	clock := &testutil.Clock{T: warsaw(t, "2026-01-03 14:00")}

	t.Run("generated", func(t *testing.T) {
		sender := &fakeSender{}
		replier := &fakeReplier{reply: "Our office opens on Monday at 9:00."}
		engine := NewEngine(store, history, sender, replier, 1).WithClock(clock.Now)
		assert.Equal(t, OutcomeReplied, engine.Consider(ctx, conv, inbound(conv.ID)))
		require.Equal(t, 1, sender.count())
		assert.Equal(t, "Our office opens on Monday at 9:00.", sender.reqs[0].Content)
		assert.Equal(t, true, sender.reqs[0].Metadata["ai_generated"])
		assert.Len(t, replier.got.Context, 1)
		assert.Equal(t, models.PlatformFacebook, replier.got.Platform)
	})

	t.Run("falls back to the template", func(t *testing.T) {
		other := &models.Conversation{Platform: models.PlatformFacebook}
		other.ID = uuid.Must(uuid.NewV7())
		sender := &fakeSender{}
		replier := &fakeReplier{err: ai.ErrEmptyReply}
		engine := NewEngine(store, history, sender, replier, 1).WithClock(clock.Now)
		assert.Equal(t, OutcomeReplied, engine.Consider(ctx, other, inbound(other.ID)))
		require.Equal(t, 1, sender.count())
		assert.Equal(t, s.AutoReplyMessage, sender.reqs[0].Content)
	})
}

func TestEngine_FailedSendIsLogged(t *testing.T) {
	ctx := context.Background()
	engine, store, sender, clock := newEngine(t, weekdaySettings())
	sender.err = channel.Permanent(models.PlatformWhatsApp, "no template configured")
	clock.T = warsaw(t, "2026-01-03 14:00")
	conv := &models.Conversation{Platform: models.PlatformWhatsApp}
	conv.ID = uuid.Must(uuid.NewV7())

	assert.Equal(t, OutcomeFailed, engine.Consider(ctx, conv, inbound(conv.ID)))
	logs, err := store.ListLogs(ctx, &conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.Contains(t, logs[0].Error, "no template configured")

	// A failed attempt does not start the cooldown
	sender.err = nil
	assert.Equal(t, OutcomeReplied, engine.Consider(ctx, conv, inbound(conv.ID)))
}

func TestIsWorkingTime(t *testing.T) {
	s := weekdaySettings()
	s.SaturdayStart = strp("9:00")
	s.SaturdayEnd = strp("13:00")
	tests := []struct {
		name string
		at   string
		want bool
	}{
		{"monday morning", "2026-01-05 09:00", true},
		{"monday just before opening", "2026-01-05 08:59:59", false},
		{"monday closing minute", "2026-01-05 17:00", true},
		{"monday past closing within the minute", "2026-01-05 17:00:59", false},
		{"monday evening", "2026-01-05 17:01", false},
		{"saturday short day", "2026-01-03 12:59", true},
		{"saturday afternoon", "2026-01-03 14:00", false},
		{"sunday", "2026-01-04 11:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWorkingTime(s, nil, warsaw(t, tt.at)))
		})
	}

	s.Timezone = "Not/AZone"
	// An unknown zone falls back to UTC
	assert.True(t, IsWorkingTime(s, nil, time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)))
}
