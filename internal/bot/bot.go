// Package bot runs the Discord gateway session and dispatches slash command
// interactions to the relay.
package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/attribot/attribot/internal/config"
	"github.com/attribot/attribot/internal/logging"
	"github.com/attribot/attribot/internal/relay"
	"github.com/attribot/attribot/internal/store"
	"github.com/bwmarrin/discordgo"
)

// Config holds bot construction parameters.
type Config struct {
	// Token authenticates the gateway session
	Token string

	// GuildIDs scopes command registration to specific guilds. Guild
	// commands are visible immediately; an empty list registers globally,
	// which can take up to an hour to propagate.
	GuildIDs []string
}

// Bot owns the Discord session. It implements lifecycle.Component: Start
// opens the gateway connection, Stop closes it. Slash commands are synced
// on ready and whenever the routes config changes.
type Bot struct {
	session *discordgo.Session
	cfg     Config
	handler *Handler
	logger  *logging.Logger

	ready  atomic.Bool
	mu     sync.RWMutex
	routes *config.RoutesFile
}

// New creates a Bot. The delivery store may be nil (auditing disabled).
func New(cfg Config, client *relay.Client, dedupe *relay.Dedupe, deliveries *store.Store) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	// Slash commands arrive as interactions; no privileged intents needed.
	session.Identify.Intents = discordgo.IntentsGuilds

	b := &Bot{
		session: session,
		cfg:     cfg,
		logger:  logging.GetLogger("bot"),
	}
	b.handler = NewHandler(client, dedupe, deliveries, b.findRoute)

	session.AddHandler(b.onReady)
	session.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		b.handler.Handle(s, ic)
	})

	return b, nil
}

// Start opens the gateway connection.
func (b *Bot) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway connection: %w", err)
	}
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop(ctx context.Context) error {
	b.ready.Store(false)
	return b.session.Close()
}

// Name implements lifecycle.Component.
func (b *Bot) Name() string { return "bot" }

// IsReady reports whether the gateway session has completed its handshake.
// Used by the API server's readiness endpoint.
func (b *Bot) IsReady() bool { return b.ready.Load() }

// SetRoutes swaps the active routes config and, if the session is already
// connected, re-syncs the slash commands. Called on startup and by the
// routes file watcher.
func (b *Bot) SetRoutes(routes *config.RoutesFile) error {
	b.mu.Lock()
	b.routes = routes
	b.mu.Unlock()

	if b.ready.Load() {
		if err := b.syncCommands(); err != nil {
			return fmt.Errorf("re-sync commands after routes change: %w", err)
		}
	}
	return nil
}

// Routes returns the active routes config, or nil before the first load.
func (b *Bot) Routes() *config.RoutesFile {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.routes
}

// findRoute resolves a command name against the active routes config.
func (b *Bot) findRoute(name string) *config.Route {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.routes == nil {
		return nil
	}
	return b.routes.Find(name)
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("Logged in as %s (ID: %s)", r.User.Username, r.User.ID)
	b.ready.Store(true)

	if err := b.syncCommands(); err != nil {
		b.logger.Error("Failed to sync commands: %v", err)
		return
	}
	b.logger.Info("Bot is ready and listening")
}
