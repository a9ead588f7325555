package app

import (
	"context"
	"fmt"

	"commhub/internal/ai"
	"commhub/internal/auth"
	"commhub/internal/autobot"
	"commhub/internal/channel"
	"commhub/internal/config"
	"commhub/internal/email"
	"commhub/internal/events"
	"commhub/internal/ingest"
	"commhub/internal/meta"
	"commhub/internal/operator"
	"commhub/internal/realtime"
	"commhub/internal/repo"
	"commhub/internal/services"
	"commhub/internal/telegram"
	"commhub/internal/whatsapp"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Services holds all application services
type Services struct {
	Config *config.Config
	DB     *gorm.DB

	Conversations *repo.ConversationStore
	AutobotRepo   *repo.AutobotRepository
	MailboxRepo   *repo.MailboxRepository
	ClientRepo    *repo.ClientRepository

	Settings *services.SettingsStore
	Media    *services.MediaStore

	WhatsApp  *whatsapp.Adapter
	Facebook  *meta.Adapter
	Instagram *meta.Adapter
	Telegram  *telegram.Adapter
	Email     *email.Adapter
	Registry  *channel.Registry

	Hub      *realtime.Hub
	Notifier *realtime.Notifier
	Relay    *events.Relay

	Sender   *channel.Sender
	Autobot  *autobot.Engine
	Router   *ingest.Router
	Operator *operator.Service
	Auth     *auth.Service
}

// NewServices creates a new services container
func NewServices(cfg *config.Config, db *gorm.DB) (*Services, error) {
	conversations := repo.NewConversationStore(db)
	autobotRepo := repo.NewAutobotRepository(db)
	mailboxRepo := repo.NewMailboxRepository(db)
	clientRepo := repo.NewClientRepository(db)
	settings := services.NewSettingsStore(db)

	backend, err := newMediaBackend(cfg)
	if err != nil {
		return nil, err
	}
	media := services.NewMediaStore(backend, conversations)

	wa := whatsapp.NewAdapter(settings, media)
	fb := meta.NewFacebookAdapter(settings, cfg.PublicBaseURL)
	ig := meta.NewInstagramAdapter(settings, cfg.PublicBaseURL)
	tg := telegram.NewAdapter(settings, media)
	mail := email.NewAdapter(settings, mailboxRepo, media, cfg.MediaRoot, cfg.UploadTmpDir, cfg.AWSRegion)
	registry := channel.NewRegistry(wa, fb, ig, tg, mail)

	hub := realtime.NewHub()
	var relay *events.Relay
	if cfg.AMQPURL != "" {
		pub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			// The mirror is optional; the hub keeps working without it
			log.Error().Err(err).Msg("Failed to connect to AMQP broker, event mirror disabled")
		} else {
			relay = events.NewRelay(pub, cfg.ServiceName)
			hub.WithRelay(relay)
		}
	}
	hub.OnTyping(typingRelay(conversations, tg))
	notifier := realtime.NewNotifier(hub, conversations)

	sender := channel.NewSender(conversations, registry, notifier)

	var replier autobot.Replier
	if cfg.AIAPIKey != "" || cfg.AIBaseURL != "" {
		replier = ai.NewBridge(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout)
	}
	engine := autobot.NewEngine(autobotRepo, conversations, sender, replier, cfg.AutobotOfficeID)

	router := ingest.NewRouter(conversations, media, notifier, engine, clientRepo)
	ops := operator.NewService(conversations, sender, media, clientRepo, notifier).
		WithReadReceipts(models.PlatformWhatsApp, wa)

	return &Services{
		Config:        cfg,
		DB:            db,
		Conversations: conversations,
		AutobotRepo:   autobotRepo,
		MailboxRepo:   mailboxRepo,
		ClientRepo:    clientRepo,
		Settings:      settings,
		Media:         media,
		WhatsApp:      wa,
		Facebook:      fb,
		Instagram:     ig,
		Telegram:      tg,
		Email:         mail,
		Registry:      registry,
		Hub:           hub,
		Notifier:      notifier,
		Relay:         relay,
		Sender:        sender,
		Autobot:       engine,
		Router:        router,
		Operator:      ops,
		Auth:          auth.NewService(cfg.JWTSecret, settings),
	}, nil
}

func newMediaBackend(cfg *config.Config) (services.MediaBackend, error) {
	switch cfg.MediaBackend {
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when MEDIA_BACKEND=s3")
		}
		return services.NewS3Backend(cfg.AWSRegion, cfg.S3Bucket)
	case "", "local":
		return services.NewLocalBackend(cfg.MediaRoot)
	default:
		return nil, fmt.Errorf("unknown MEDIA_BACKEND %q", cfg.MediaBackend)
	}
}

// typingRelay forwards operator typing to platforms that show it
func typingRelay(conversations *repo.ConversationStore, tg *telegram.Adapter) realtime.TypingHook {
	return func(ctx context.Context, conversationID string) {
		id, err := uuid.Parse(conversationID)
		if err != nil {
			return
		}
		conv, err := conversations.GetConversation(ctx, id)
		if err != nil || conv.Platform != models.PlatformTelegram {
			return
		}
		if err := tg.SendTyping(ctx, conv.ExternalID); err != nil {
			log.Debug().Err(err).Str("conversation_id", conversationID).Msg("Failed to relay typing")
		}
	}
}
