// Package telegram implements the Telegram channel over the Bot API: a
// per-account long-poller, webhook decoding and the outbound sender.
package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"commhub/internal/channel"
)

// KeyAccounts holds the JSON array of configured bots
const KeyAccounts = "telegram.accounts"

// SecretHeader carries the webhook secret set through setWebhook
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// ErrUnknownSecret reports a webhook call whose secret matches no account
var ErrUnknownSecret = errors.New("telegram: unknown webhook secret")

// Account is one configured bot
type Account struct {
	Name          string `json:"name"`
	Token         string `json:"token"`
	WebhookSecret string `json:"webhook_secret"`
}

// Polled reports whether the account is fed by long-polling instead of a webhook
func (a Account) Polled() bool { return a.WebhookSecret == "" }

// LoadAccounts reads the configured bots; an unset key yields none
func LoadAccounts(ctx context.Context, settings channel.Settings) ([]Account, error) {
	raw, err := settings.Get(ctx, KeyAccounts)
	if err != nil {
		return nil, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var accounts []Account
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		return nil, fmt.Errorf("invalid %s setting: %w", KeyAccounts, err)
	}
	out := accounts[:0]
	for i, acct := range accounts {
		acct.Token = strings.TrimSpace(acct.Token)
		if acct.Token == "" {
			continue
		}
		if acct.Name == "" {
			acct.Name = fmt.Sprintf("bot%d", i+1)
		}
		out = append(out, acct)
	}
	return out, nil
}

// accountBySecret finds the webhook account whose secret matches
func accountBySecret(accounts []Account, secret string) (Account, bool) {
	if secret == "" {
		return Account{}, false
	}
	for _, acct := range accounts {
		if acct.WebhookSecret == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(acct.WebhookSecret), []byte(secret)) == 1 {
			return acct, true
		}
	}
	return Account{}, false
}
