// Package discord is the chat-platform adapter (spec §6's named external
// collaborator): it implements ports.NotificationPort over discordgo and
// drives GameCoordinator from slash commands and claim/dismiss buttons.
// Grounded on pkg/devclaw/channels/discord/discord.go — session lifecycle
// (Connect/Disconnect), event-handler registration, and the
// deferred-ack-then-edit interaction flow are carried over and adapted from
// a generic assistant channel into a single-purpose game-command surface.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jholhewres/gochain/internal/coordinator"
)

// Config holds the Discord adapter's own configuration, distinct from the
// bot-wide internal/config.Config: it is the transport-level allowlist the
// teacher's channel always carries, independent of game rules.
type Config struct {
	Token         string   `yaml:"token"`
	AllowedGuilds []string `yaml:"allowed_guilds"`
}

// DefaultConfig returns a Config with no allowlist (respond in every guild
// the bot is invited to).
func DefaultConfig() Config {
	return Config{}
}

// Bot implements ports.NotificationPort and owns the Discord gateway
// connection plus slash-command and button dispatch.
type Bot struct {
	cfg     Config
	co      *coordinator.Coordinator
	logger  *slog.Logger
	session *discordgo.Session
	buttons *ButtonRegistry

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Bot. It is not usable as a NotificationPort until
// BindCoordinator is called: the coordinator's own Notify dispatcher must
// hold this Bot, so the two are constructed in two steps by the caller
// (cmd/gochain/commands/serve.go) to break the cycle. logger may be nil.
func New(cfg Config, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	l := logger.With("component", "discord")
	return &Bot{cfg: cfg, logger: l, buttons: NewButtonRegistry(l)}
}

// BindCoordinator attaches the GameCoordinator this bot drives and is
// driven by. Must be called before Connect.
func (b *Bot) BindCoordinator(co *coordinator.Coordinator) {
	b.co = co
}

// Connect opens the gateway connection and registers global slash commands.
func (b *Bot) Connect(ctx context.Context) error {
	if b.cfg.Token == "" {
		return fmt.Errorf("discord: bot token is required")
	}
	b.ctx, b.cancel = context.WithCancel(ctx)

	session, err := discordgo.New("Bot " + b.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	session.AddHandler(b.onInteractionCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}
	b.session = session

	if err := registerCommands(session); err != nil {
		b.logger.Warn("discord: failed to register slash commands", "error", err)
	}

	user := session.State.User
	b.logger.Info("discord: connected", "bot", user.Username+"#"+user.Discriminator, "id", user.ID)
	return nil
}

// Disconnect closes the gateway connection and stops the button registry's
// cleanup loop.
func (b *Bot) Disconnect() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.buttons.Stop()
	if b.session != nil {
		return b.session.Close()
	}
	return nil
}

func (b *Bot) allowedGuild(guildID string) bool {
	if len(b.cfg.AllowedGuilds) == 0 {
		return true
	}
	for _, id := range b.cfg.AllowedGuilds {
		if id == guildID {
			return true
		}
	}
	return false
}

// ---------- ports.NotificationPort ----------

// DM sends content to playerID's Discord DM channel.
func (b *Bot) DM(ctx context.Context, playerID, content string) error {
	player, err := b.co.GetPlayer(ctx, playerID)
	if err != nil {
		return fmt.Errorf("discord: resolving player %s for DM: %w", playerID, err)
	}
	channel, err := b.session.UserChannelCreate(player.ExternalUserID)
	if err != nil {
		return fmt.Errorf("discord: opening DM channel: %w", err)
	}
	_, err = b.session.ChannelMessageSend(channel.ID, content)
	return err
}

// ChannelAnnounce posts content to a specific guild channel.
func (b *Bot) ChannelAnnounce(ctx context.Context, channelID, content string) error {
	_, err := b.session.ChannelMessageSend(channelID, content)
	return err
}

// Offer DMs playerID an offer prompt carrying claim/dismiss buttons, valid
// until deadline. actions is ignored beyond presence: this adapter always
// renders the same claim/pass pair (spec names "claim"/"dismiss" as the
// only two on-demand-and-season offer actions, §4.7).
func (b *Bot) Offer(ctx context.Context, playerID, turnID string, deadline time.Time, actions []string) error {
	player, err := b.co.GetPlayer(ctx, playerID)
	if err != nil {
		return fmt.Errorf("discord: resolving player %s for offer: %w", playerID, err)
	}
	channel, err := b.session.UserChannelCreate(player.ExternalUserID)
	if err != nil {
		return fmt.Errorf("discord: opening DM channel: %w", err)
	}

	ttl := time.Until(deadline)
	if ttl < 0 {
		ttl = 0
	}
	b.buttons.Register("claim:"+turnID, player.ExternalUserID, ttl, b.handleClaim)
	b.buttons.Register("dismiss:"+turnID, player.ExternalUserID, ttl, b.handleDismiss)

	content := fmt.Sprintf("It's your turn! You have until %s to claim it.", deadline.Format(time.RFC1123))
	_, err = b.session.ChannelMessageSendComplex(channel.ID, &discordgo.MessageSend{
		Content:    content,
		Components: []discordgo.MessageComponent{buildClaimRow(turnID)},
	})
	return err
}
