package telegram

import (
	"context"
	"errors"

	"commhub/internal/channel"
	"commhub/internal/supervisor"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Handler receives every normalized inbound event
type Handler func(ctx context.Context, ev channel.InboundEvent)

// PollTask returns a supervised long-polling loop for one account. Each run
// opens a fresh bot session since a stopped update stream cannot restart.
func (a *Adapter) PollTask(acct Account, handle Handler) supervisor.Task {
	return func(ctx context.Context, connected func()) error {
		bot, err := tgbotapi.NewBotAPI(acct.Token)
		if err != nil {
			return wrapError(err)
		}
		connected()
		log.Info().Str("account", acct.Name).Str("bot", bot.Self.UserName).Msg("Telegram poller connected")

		cfg := tgbotapi.NewUpdate(0)
		cfg.Timeout = 30
		updates := bot.GetUpdatesChan(cfg)
		defer func() {
			bot.StopReceivingUpdates()
			for range updates {
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case update, ok := <-updates:
				if !ok {
					return errors.New("telegram update stream closed")
				}
				if ev, ok := a.toEvent(ctx, acct, bot, &update); ok {
					handle(ctx, ev)
				}
			}
		}
	}
}

// Accounts lists the configured bots
func (a *Adapter) Accounts(ctx context.Context) ([]Account, error) {
	return LoadAccounts(ctx, a.settings)
}
