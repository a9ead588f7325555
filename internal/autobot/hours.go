package autobot

import (
	"strings"
	"time"

	"commhub/pkg/models"

	"github.com/rs/zerolog/log"
)

// Location loads the office time zone, falling back to UTC
func Location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Error().Err(err).Str("timezone", name).Msg("Failed to load timezone, using UTC")
		return time.UTC
	}
	return loc
}

// IsWorkingTime reports whether t falls inside the office working window.
// Holidays are never working time and a day without both bounds is closed.
func IsWorkingTime(s *models.AutobotSettings, holidays []models.Holiday, t time.Time) bool {
	local := t.In(Location(s.Timezone))
	for i := range holidays {
		if holidays[i].Matches(local) {
			return false
		}
	}

	start, end := s.Window(local.Weekday())
	open, ok1 := clock(start)
	closeAt, ok2 := clock(end)
	if !ok1 || !ok2 {
		return false
	}
	current := sinceMidnight(local)
	return current >= open && current <= closeAt
}

// clock parses an "H:MM" or "HH:MM[:SS]" value into time since midnight
func clock(v *string) (time.Duration, bool) {
	if v == nil {
		return 0, false
	}
	raw := strings.TrimSpace(*v)
	if raw == "" {
		return 0, false
	}
	parsed, err := time.Parse("15:04", raw)
	if err != nil {
		if parsed, err = time.Parse("15:04:05", raw); err != nil {
			return 0, false
		}
	}
	return sinceMidnight(parsed), true
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}
