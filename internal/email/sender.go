// Package email implements the email channel: SMTP (or SES) delivery from a
// manager mailbox or the default identity, and an IMAP poller.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"commhub/internal/channel"
	"commhub/pkg/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/rs/zerolog/log"
	mail "github.com/wneessen/go-mail"
)

// SoftAttachmentLimit only triggers a warning
const SoftAttachmentLimit = 25 << 20

// Default identity settings keys
const (
	KeyHost      = "smtp.host"
	KeyPort      = "smtp.port"
	KeyUsername  = "smtp.username"
	KeyPassword  = "smtp.password"
	KeyFrom      = "smtp.from"
	KeyFromName  = "smtp.from_name"
	KeyTransport = "smtp.transport"
)

// MailboxSource loads manager mailboxes
type MailboxSource interface {
	GetByID(ctx context.Context, id uint) (*models.EmailMailbox, error)
}

// MediaReader reads stored attachment bytes
type MediaReader interface {
	ReadAll(ctx context.Context, key string) ([]byte, error)
}

// Identity is the sender of an outbound email
type Identity struct {
	FromAddress string
	FromName    string
	Host        string
	Port        int
	Username    string
	Password    string
	UseSSL      bool
	// SES routes delivery through Amazon SES instead of SMTP
	SES bool
}

// Adapter is the email channel adapter
type Adapter struct {
	settings  channel.Settings
	mailboxes MailboxSource
	media     MediaReader
	mediaRoot string
	uploadDir string
	awsRegion string

	// deliver is replaced in tests
	deliver func(ctx context.Context, id Identity, m *mail.Msg) error
}

// NewAdapter creates a new email adapter
func NewAdapter(settings channel.Settings, mailboxes MailboxSource, media MediaReader, mediaRoot, uploadDir, awsRegion string) *Adapter {
	a := &Adapter{
		settings:  settings,
		mailboxes: mailboxes,
		media:     media,
		mediaRoot: mediaRoot,
		uploadDir: uploadDir,
		awsRegion: awsRegion,
	}
	a.deliver = a.send
	return a
}

func (a *Adapter) Platform() models.Platform { return models.PlatformEmail }

// identity picks the conversation's mailbox when it is set and active,
// the default identity otherwise
func (a *Adapter) identity(ctx context.Context, conv *models.Conversation) (Identity, *models.EmailMailbox, error) {
	if conv.ManagerMailboxID != nil && a.mailboxes != nil {
		mb, err := a.mailboxes.GetByID(ctx, *conv.ManagerMailboxID)
		if err != nil {
			log.Warn().Err(err).Uint("mailbox_id", *conv.ManagerMailboxID).Msg("Mailbox unavailable, using default identity")
		} else if mb.IsActive && mb.SMTPHost != "" {
			user := mb.SMTPUsername
			if user == "" {
				user = mb.EmailAddress
			}
			return Identity{
				FromAddress: mb.EmailAddress,
				FromName:    mb.FromName,
				Host:        mb.SMTPHost,
				Port:        mb.SMTPPort,
				Username:    user,
				Password:    mb.SMTPPassword,
				UseSSL:      mb.SMTPUseSSL,
			}, mb, nil
		}
	}

	values := make(map[string]string)
	for _, key := range []string{KeyHost, KeyPort, KeyUsername, KeyPassword, KeyFrom, KeyFromName, KeyTransport} {
		v, err := a.settings.Get(ctx, key)
		if err != nil {
			return Identity{}, nil, err
		}
		values[key] = v
	}
	id := Identity{
		FromAddress: values[KeyFrom],
		FromName:    values[KeyFromName],
		Host:        values[KeyHost],
		Username:    values[KeyUsername],
		Password:    values[KeyPassword],
		SES:         strings.EqualFold(values[KeyTransport], "ses"),
	}
	id.Port, _ = strconv.Atoi(values[KeyPort])
	if id.Port == 0 {
		id.Port = 587
	}
	id.UseSSL = id.Port == 465
	if id.FromAddress == "" {
		id.FromAddress = id.Username
	}
	if id.FromAddress == "" || (!id.SES && id.Host == "") {
		return Identity{}, nil, channel.Permanent(models.PlatformEmail, "no SMTP identity is configured")
	}
	return id, nil, nil
}

// Deliver sends the message as an HTML email to the conversation address
func (a *Adapter) Deliver(ctx context.Context, out *channel.Outbound) (*channel.Delivery, error) {
	to := strings.TrimSpace(out.Conversation.ExternalID)
	if to == "" {
		return nil, channel.Permanent(models.PlatformEmail, "conversation has no email address")
	}
	id, _, err := a.identity(ctx, out.Conversation)
	if err != nil {
		return nil, err
	}

	m := mail.NewMsg()
	if err := m.FromFormat(id.FromName, id.FromAddress); err != nil {
		return nil, channel.Permanent(models.PlatformEmail, "invalid from address: %v", err)
	}
	if err := m.To(to); err != nil {
		return nil, channel.Permanent(models.PlatformEmail, "invalid recipient: %v", err)
	}
	m.Subject(replySubject(out.Conversation.SubjectOrEmpty()))
	m.SetBodyString(mail.TypeTextHTML, htmlBody(out))
	m.SetMessageID()
	m.SetDate()

	for _, att := range out.Attachments {
		data, err := a.loadAttachment(ctx, att)
		if err != nil {
			return nil, err
		}
		if len(data) > SoftAttachmentLimit {
			log.Warn().Str("attachment_id", att.ID.String()).Int("size", len(data)).Msg("Email attachment exceeds 25 MiB")
		}
		opts := []mail.FileOption{}
		if att.MimeType != "" {
			opts = append(opts, mail.WithFileContentType(mail.ContentType(att.MimeType)))
		}
		if err := m.AttachReader(att.FileName(), bytes.NewReader(data), opts...); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", att.FileName(), err)
		}
	}

	if err := a.deliver(ctx, id, m); err != nil {
		return nil, err
	}
	return &channel.Delivery{ExternalID: strings.Trim(m.GetMessageID(), "<>")}, nil
}

// loadAttachment reads a file through the media store, then the media root
// at the stored path, then the media root by file name, then the upload directory
func (a *Adapter) loadAttachment(ctx context.Context, att models.Attachment) ([]byte, error) {
	if a.media != nil {
		data, err := a.media.ReadAll(ctx, att.FilePath)
		if err == nil {
			return data, nil
		}
		log.Debug().Err(err).Str("path", att.FilePath).Msg("Attachment not in media store")
	}
	base := filepath.Base(att.FilePath)
	var candidates []string
	if a.mediaRoot != "" {
		candidates = append(candidates,
			filepath.Join(a.mediaRoot, filepath.FromSlash(att.FilePath)),
			filepath.Join(a.mediaRoot, base),
		)
	}
	if a.uploadDir != "" {
		candidates = append(candidates, filepath.Join(a.uploadDir, base))
	}
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
	}
	return nil, channel.Permanent(models.PlatformEmail, "attachment %s not found", att.FileName())
}

func (a *Adapter) send(ctx context.Context, id Identity, m *mail.Msg) error {
	if id.SES {
		return a.sendSES(ctx, m)
	}
	opts := []mail.Option{
		mail.WithPort(id.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(id.Username),
		mail.WithPassword(id.Password),
	}
	if id.UseSSL {
		opts = append(opts, mail.WithSSLPort(false), mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	client, err := mail.NewClient(id.Host, opts...)
	if err != nil {
		return channel.Permanent(models.PlatformEmail, "invalid SMTP settings: %v", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return classify(err)
	}
	return nil
}

// sendSES hands the rendered MIME message to Amazon SES
func (a *Adapter) sendSES(ctx context.Context, m *mail.Msg) error {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to render message: %w", err)
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(a.awsRegion)})
	if err != nil {
		return fmt.Errorf("failed to create AWS session: %w", err)
	}
	_, err = ses.New(sess).SendRawEmailWithContext(ctx, &ses.SendRawEmailInput{
		RawMessage: &ses.RawMessage{Data: buf.Bytes()},
	})
	if err != nil {
		return channel.TransportError(models.PlatformEmail, err)
	}
	return nil
}

func classify(err error) error {
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) {
		return &channel.ProviderError{
			Platform:  models.PlatformEmail,
			Temporary: sendErr.IsTemp(),
			Message:   err.Error(),
			Err:       err,
		}
	}
	return channel.TransportError(models.PlatformEmail, err)
}

func replySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "(no subject)"
	}
	lower := strings.ToLower(subject)
	if strings.HasPrefix(lower, "re:") || strings.HasPrefix(lower, "odp:") {
		return subject
	}
	return "Re: " + subject
}

// htmlBody renders the message content; html messages pass through
func htmlBody(out *channel.Outbound) string {
	content := out.Message.Content
	if out.Message.Type == models.MessageTypeHTML {
		return content
	}
	if len(out.Attachments) > 0 {
		first := out.Attachments[0]
		if strings.TrimSpace(content) == channel.AttachmentPlaceholder(channel.MessageTypeFor(first.FileType), first.OriginalName) {
			content = ""
		}
	}
	escaped := html.EscapeString(content)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return "<html><body><div>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</div></body></html>"
}
