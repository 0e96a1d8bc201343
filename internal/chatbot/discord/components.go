package discord

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ClaimHandler processes a claim/dismiss button click. It receives the
// interaction and returns content to display in the (ephemeral) response.
type ClaimHandler func(ctx context.Context, evt *InteractionEvent) (content string, err error)

// InteractionEvent carries the data a claim/dismiss button handler needs
// from a Discord component interaction.
type InteractionEvent struct {
	CustomID  string
	UserID    string
	Username  string
	ChannelID string
	GuildID   string
	MessageID string
}

// buttonSpec binds one registered custom_id to a handler gated to a single
// player (the offered turn's assignee) and an expiry matching the claim
// window, so a stale offer's button stops responding once the window
// closes even if the timeout job hasn't fired yet.
type buttonSpec struct {
	AllowedUser string
	Handler     ClaimHandler
}

type registeredButton struct {
	spec         buttonSpec
	registeredAt time.Time
	ttl          time.Duration
}

// ButtonRegistry tracks claim/dismiss buttons by custom_id with TTL-based
// expiry, adapted from the teacher's generic component registry
// (channels/discord/components.go) down to the one shape this bot needs:
// a single-button, single-allowed-user, non-reusable interaction.
type ButtonRegistry struct {
	mu      sync.RWMutex
	buttons map[string]*registeredButton
	logger  *slog.Logger
	stopCh  chan struct{}
}

// NewButtonRegistry creates a registry and starts its background TTL sweep.
func NewButtonRegistry(logger *slog.Logger) *ButtonRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &ButtonRegistry{
		buttons: make(map[string]*registeredButton),
		logger:  logger.With("component", "discord_buttons"),
		stopCh:  make(chan struct{}),
	}
	go r.cleanupLoop()
	return r
}

// Register binds customID to a handler, allowed only for allowedUser, for
// up to ttl (zero means no expiry).
func (r *ButtonRegistry) Register(customID, allowedUser string, ttl time.Duration, h ClaimHandler) {
	if customID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buttons[customID] = &registeredButton{
		spec:         buttonSpec{AllowedUser: allowedUser, Handler: h},
		registeredAt: time.Now(),
		ttl:          ttl,
	}
}

// Unregister removes customID, e.g. once its turn has moved past OFFERED.
func (r *ButtonRegistry) Unregister(customID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buttons, customID)
}

func (r *ButtonRegistry) get(customID string) (*buttonSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.buttons[customID]
	if !ok || reg == nil {
		return nil, false
	}
	if reg.ttl > 0 && time.Since(reg.registeredAt) > reg.ttl {
		return nil, false
	}
	spec := reg.spec
	return &spec, true
}

func (r *ButtonRegistry) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.cleanupExpired()
		}
	}
}

func (r *ButtonRegistry) cleanupExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var expired []string
	for id, reg := range r.buttons {
		if reg.ttl > 0 && now.Sub(reg.registeredAt) > reg.ttl {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(r.buttons, id)
	}
	if len(expired) > 0 {
		r.logger.Debug("cleaned up expired claim buttons", "count", len(expired), "ids", expired)
	}
}

// Stop halts the cleanup loop.
func (r *ButtonRegistry) Stop() {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
}

// buildClaimRow returns an action row with claim and dismiss buttons for
// turnID, to be registered against customIDs "claim:<turnID>" and
// "dismiss:<turnID>" before the message carrying it is sent.
func buildClaimRow(turnID string) discordgo.MessageComponent {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: "claim:" + turnID, Label: "Claim", Style: discordgo.SuccessButton},
			discordgo.Button{CustomID: "dismiss:" + turnID, Label: "Pass", Style: discordgo.SecondaryButton},
		},
	}
}
