package app

import (
	"context"
	"errors"
	"sync"

	"commhub/internal/channel"
	"commhub/internal/email"
	"commhub/internal/supervisor"

	"github.com/rs/zerolog/log"
)

// handleEvent feeds one polled event into the router
func (s *Services) handleEvent(ctx context.Context, ev channel.InboundEvent) {
	if _, err := s.Router.Handle(ctx, ev); err != nil {
		log.Error().Err(err).
			Str("platform", string(ev.Platform)).
			Str("external_id", ev.ExternalID).
			Msg("Failed to ingest polled message")
	}
}

// StartWorkers launches the event relay and, when enabled, the Telegram and
// IMAP pollers. The returned function blocks until they have all stopped
// and pending ingest work has finished.
func (s *Services) StartWorkers(ctx context.Context) func() {
	var wg sync.WaitGroup
	spawn := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			log.Info().Str("worker", name).Msg("Worker stopped")
		}()
	}

	if s.Relay != nil {
		spawn("event-relay", func() { s.Relay.Run(ctx) })
	}

	if s.Config.EnablePollers {
		accounts, err := s.Telegram.Accounts(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load telegram accounts")
		}
		for _, acct := range accounts {
			if !acct.Polled() {
				continue
			}
			acct := acct
			name := "telegram:" + acct.Name
			spawn(name, func() {
				err := supervisor.Run(ctx, name, supervisor.DefaultPolicy, s.Telegram.PollTask(acct, s.handleEvent))
				if err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Str("account", acct.Name).Msg("Telegram poller exited")
				}
			})
		}

		poller := email.NewPoller(s.MailboxRepo, s.handleEvent)
		spawn("imap", func() {
			if err := poller.Run(ctx, s.Config.IMAPCheckInterval); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("IMAP poller exited")
			}
		})
	}

	return func() {
		wg.Wait()
		s.Router.Wait()
	}
}
