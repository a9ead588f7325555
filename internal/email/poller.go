package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"commhub/internal/channel"
	"commhub/internal/metrics"
	"commhub/pkg/models"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// SearchLookback is how far before today's midnight-rounded SINCE date the
// poller looks; IMAP SINCE has day granularity so this is an approximation
const SearchLookback = 10 * time.Minute

// MailboxLister lists the mailboxes to poll and resolves recipients
type MailboxLister interface {
	ListActive(ctx context.Context) ([]models.EmailMailbox, error)
	FindActiveByAddress(ctx context.Context, address string) (*models.EmailMailbox, error)
}

// Handler receives every normalized inbound event
type Handler func(ctx context.Context, ev channel.InboundEvent)

// RawMessage is a fetched message before parsing
type RawMessage struct {
	UID  uint32
	Body []byte
}

// Fetcher downloads recent messages of one mailbox without flagging them
type Fetcher func(ctx context.Context, mb models.EmailMailbox, since time.Time) ([]RawMessage, error)

// Poller checks every active mailbox once per tick
type Poller struct {
	mailboxes MailboxLister
	handle    Handler
	fetch     Fetcher
	now       func() time.Time
}

// NewPoller creates an IMAP poller
func NewPoller(mailboxes MailboxLister, handle Handler) *Poller {
	return &Poller{mailboxes: mailboxes, handle: handle, fetch: fetchIMAP, now: time.Now}
}

// Run schedules ticks every interval until ctx is done. A tick that is still
// running when the next one fires is skipped. Cancelling ctx stops the
// schedule; a tick in progress runs to completion first.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	if interval < time.Second {
		interval = 60 * time.Second
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	spec := fmt.Sprintf("@every %ds", int(interval.Seconds()))
	tickCtx := context.WithoutCancel(ctx)
	if _, err := c.AddFunc(spec, func() { p.Tick(tickCtx) }); err != nil {
		return fmt.Errorf("failed to schedule imap poller: %w", err)
	}
	log.Info().Dur("interval", interval).Msg("IMAP poller started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// Tick polls every active mailbox sequentially
func (p *Poller) Tick(ctx context.Context) {
	mailboxes, err := p.mailboxes.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list mailboxes")
		return
	}
	for _, mb := range mailboxes {
		if ctx.Err() != nil {
			return
		}
		if mb.IMAPHost == "" {
			continue
		}
		if err := p.pollMailbox(ctx, mb); err != nil {
			metrics.PollerRestarts.WithLabelValues("imap").Inc()
			log.Error().Err(err).Uint("mailbox_id", mb.ID).Str("mailbox", mb.EmailAddress).Msg("IMAP poll failed")
		}
	}
}

func (p *Poller) pollMailbox(ctx context.Context, mb models.EmailMailbox) error {
	now := p.now()
	messages, err := p.fetch(ctx, mb, now.Add(-SearchLookback))
	if err != nil {
		return err
	}
	for _, raw := range messages {
		parsed, err := Parse(raw.Body, now)
		if err != nil {
			log.Warn().Err(err).Uint("mailbox_id", mb.ID).Uint32("uid", raw.UID).Msg("Failed to parse email")
			if parsed == nil {
				continue
			}
		}
		ev, ok := p.toEvent(ctx, mb, raw.UID, parsed)
		if !ok {
			continue
		}
		p.handle(ctx, ev)
	}
	return nil
}

// toEvent maps a parsed email to an inbound event. The owning mailbox is the
// active mailbox matching a To: address, falling back to the polled one.
func (p *Poller) toEvent(ctx context.Context, polled models.EmailMailbox, uid uint32, parsed *ParsedEmail) (channel.InboundEvent, bool) {
	if parsed.FromAddress == "" {
		return channel.InboundEvent{}, false
	}
	if strings.EqualFold(parsed.FromAddress, polled.EmailAddress) {
		return channel.InboundEvent{}, false
	}

	owner := polled
	for _, addr := range parsed.To {
		if strings.EqualFold(addr, polled.EmailAddress) {
			break
		}
		mb, err := p.mailboxes.FindActiveByAddress(ctx, addr)
		if err != nil {
			log.Warn().Err(err).Str("address", addr).Msg("Mailbox lookup failed")
			continue
		}
		if mb != nil {
			owner = *mb
			break
		}
	}
	mailboxID := owner.ID

	ev := channel.InboundEvent{
		Platform:          models.PlatformEmail,
		ExternalID:        parsed.FromAddress,
		Subject:           parsed.Subject,
		MailboxID:         &mailboxID,
		Sender:            channel.SenderInfo{Name: parsed.FromName, Email: parsed.FromAddress},
		Content:           parsed.Body(),
		MessageType:       models.MessageTypeText,
		ExternalMessageID: parsed.DedupKey(),
		Metadata: map[string]interface{}{
			"from":       parsed.FromAddress,
			"to":         strings.Join(parsed.To, ", "),
			"subject":    parsed.Subject,
			"mailbox_id": mailboxID,
			"imap_uid":   uid,
		},
	}
	if parsed.MessageID != "" {
		ev.Metadata["message_id"] = parsed.MessageID
	}
	date := parsed.Date
	ev.SentAt = &date
	for _, att := range parsed.Attachments {
		ev.Attachments = append(ev.Attachments, channel.InboundAttachment{
			Data:     att.Data,
			MimeType: att.MimeType,
			Name:     att.Filename,
		})
	}
	if html := strings.TrimSpace(parsed.HTML); html != "" {
		ev.Metadata["html_content"] = html
		if ev.Content != "" {
			ev.MessageType = models.MessageTypeHTML
		}
	}
	if ev.Content == "" && len(ev.Attachments) == 0 {
		ev.Content = "(empty message)"
	}
	return ev, true
}

// fetchIMAP logs in, selects INBOX and downloads messages received since the
// given day using BODY.PEEK so the \Seen flag is never set
func fetchIMAP(ctx context.Context, mb models.EmailMailbox, since time.Time) ([]RawMessage, error) {
	port := mb.IMAPPort
	if port == 0 {
		port = 993
	}
	addr := fmt.Sprintf("%s:%d", mb.IMAPHost, port)
	opts := &imapclient.Options{TLSConfig: &tls.Config{ServerName: mb.IMAPHost}}

	var client *imapclient.Client
	var err error
	if mb.IMAPUseSSL {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialStartTLS(addr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", addr, err)
	}
	defer client.Close()

	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	username := mb.IMAPUsername
	if username == "" {
		username = mb.EmailAddress
	}
	if err := client.Login(username, mb.IMAPPassword).Wait(); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}
	defer client.Logout()

	if _, err := client.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("select inbox: %w", err)
	}

	search, err := client.UIDSearch(&imap.SearchCriteria{Since: since}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	uids := search.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{Peek: true}},
	})
	defer fetchCmd.Close()

	var out []RawMessage
	for {
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil {
			log.Warn().Err(err).Uint("mailbox_id", mb.ID).Msg("Failed to fetch message")
			continue
		}
		if len(buf.BodySection) == 0 {
			continue
		}
		out = append(out, RawMessage{UID: uint32(buf.UID), Body: buf.BodySection[0].Bytes})
	}
	return out, nil
}
