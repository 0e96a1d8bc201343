package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jholhewres/gochain/internal/coreerr"
	"github.com/jholhewres/gochain/internal/turn"
)

var slashCommands = []*discordgo.ApplicationCommand{
	{Name: "new", Description: "Start a new on-demand telephone-drawing game"},
	{Name: "join", Description: "Join an open on-demand game in this server"},
	{
		Name:        "submit",
		Description: "Submit your turn",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "text", Description: "Writing turn content", Required: false},
			{Type: discordgo.ApplicationCommandOptionAttachment, Name: "image", Description: "Drawing turn image", Required: false},
		},
	},
	{Name: "skip", Description: "Skip your currently claimed turn"},
}

func registerCommands(session *discordgo.Session) error {
	for _, cmd := range slashCommands {
		if _, err := session.ApplicationCommandCreate(session.State.User.ID, "", cmd); err != nil {
			return fmt.Errorf("discord: registering /%s: %w", cmd.Name, err)
		}
	}
	return nil
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.dispatchCommand(s, i)
	case discordgo.InteractionMessageComponent:
		b.dispatchButton(s, i)
	}
}

func interactionUser(i *discordgo.InteractionCreate) (id, username string) {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID, i.Member.User.Username
	}
	if i.User != nil {
		return i.User.ID, i.User.Username
	}
	return "", ""
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
	})
}

// dispatchCommand acks the slash command immediately (Discord's 3s limit,
// same deferred-ack-then-edit flow the teacher uses for buttons) and runs
// the coordinator call in the background.
func (b *Bot) dispatchCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if !b.allowedGuild(i.GuildID) {
		respondEphemeral(s, i, "This bot is not configured for this server.")
		return
	}
	userID, username := interactionUser(i)
	if userID == "" {
		respondEphemeral(s, i, "Could not identify user.")
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}); err != nil {
		b.logger.Warn("discord: failed to ack command", "command", data.Name, "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(b.ctx, 30*time.Second)
		defer cancel()
		content := b.runCommand(ctx, data, i.GuildID, userID, username)
		if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
			b.logger.Warn("discord: failed to edit command response", "command", data.Name, "error", err)
		}
	}()
}

func (b *Bot) runCommand(ctx context.Context, data discordgo.ApplicationCommandInteractionData, guildID, userID, username string) string {
	player, err := b.co.EnsurePlayer(ctx, userID, username)
	if err != nil {
		return errorResponse(err)
	}

	switch data.Name {
	case "new":
		game, err := b.co.CreateOnDemandGame(ctx, player.ID, guildID)
		if err != nil {
			return errorResponse(err)
		}
		return fmt.Sprintf("Game %s started. Use /submit to contribute the first turn.", game.ID)

	case "join":
		game, err := b.co.JoinOnDemandGame(ctx, player.ID, guildID)
		if err != nil {
			return errorResponse(err)
		}
		return fmt.Sprintf("You joined game %s. Use /submit to contribute.", game.ID)

	case "submit":
		t, err := b.co.FindPendingTurnForPlayer(ctx, player.ID)
		if err != nil {
			return errorResponse(err)
		}
		kind, content, err := submitContent(data)
		if err != nil {
			return errorResponse(err)
		}
		if _, err := b.co.SubmitTurn(ctx, t.ID, player.ID, kind, content); err != nil {
			return errorResponse(err)
		}
		return "Submitted. Thanks for playing!"

	case "skip":
		t, err := b.co.FindPendingTurnForPlayer(ctx, player.ID)
		if err != nil {
			return errorResponse(err)
		}
		if _, err := b.co.SkipTurn(ctx, t.ID); err != nil {
			return errorResponse(err)
		}
		return "Turn skipped."

	default:
		return "Unknown command."
	}
}

func submitContent(data discordgo.ApplicationCommandInteractionData) (turn.ContentKind, string, error) {
	var text, imageURL string
	for _, opt := range data.Options {
		switch opt.Name {
		case "text":
			text = opt.StringValue()
		case "image":
			if att, ok := data.Resolved.Attachments[opt.Value.(string)]; ok {
				imageURL = att.URL
			}
		}
	}
	if imageURL != "" {
		return turn.ContentImage, imageURL, nil
	}
	if text != "" {
		return turn.ContentText, text, nil
	}
	return "", "", fmt.Errorf("%w: provide text or an image attachment", coreerr.ErrValidation)
}

func errorResponse(err error) string {
	switch {
	case errors.Is(err, coreerr.ErrNotFound):
		return "Not found: " + err.Error()
	case errors.Is(err, coreerr.ErrPreconditionViolated), errors.Is(err, coreerr.ErrStaleState):
		return "That can't be done right now: " + err.Error()
	case errors.Is(err, coreerr.ErrValidation):
		return "Invalid: " + err.Error()
	default:
		return "Something went wrong."
	}
}

// dispatchButton handles claim/dismiss clicks via the same
// ack-then-background-then-edit flow as onInteractionCreate in the
// teacher's discord.go, but gated through ButtonRegistry instead of
// ComponentRegistry (this bot has no reusable or select-menu components).
func (b *Bot) dispatchButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	customID := data.CustomID
	spec, ok := b.buttons.get(customID)
	if !ok {
		respondEphemeral(s, i, "This button has expired.")
		return
	}
	userID, username := interactionUser(i)
	if userID == "" {
		respondEphemeral(s, i, "Could not identify user.")
		return
	}
	if spec.AllowedUser != "" && spec.AllowedUser != userID {
		respondEphemeral(s, i, "This offer isn't for you.")
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		b.logger.Warn("discord: failed to ack button", "custom_id", customID, "error", err)
		return
	}

	evt := &InteractionEvent{CustomID: customID, UserID: userID, Username: username, ChannelID: i.ChannelID, GuildID: i.GuildID, MessageID: i.Message.ID}
	go func() {
		ctx, cancel := context.WithTimeout(b.ctx, 30*time.Second)
		defer cancel()
		content, err := spec.Handler(ctx, evt)
		if err != nil {
			content = "Error: " + err.Error()
			b.logger.Warn("discord: button handler error", "custom_id", customID, "error", err)
		}
		empty := []discordgo.MessageComponent{}
		if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content, Components: &empty}); err != nil {
			b.logger.Warn("discord: failed to edit button response", "custom_id", customID, "error", err)
		}
		b.buttons.Unregister(customID)
	}()
}

// handleClaim claims the offered turn named by the "claim:<turnID>" custom
// ID on behalf of the clicking player.
func (b *Bot) handleClaim(ctx context.Context, evt *InteractionEvent) (string, error) {
	turnID := customIDSuffix(evt.CustomID)
	player, err := b.co.EnsurePlayer(ctx, evt.UserID, evt.Username)
	if err != nil {
		return "", err
	}
	if _, err := b.co.ClaimOfferedTurn(ctx, turnID, player.ID); err != nil {
		return "", err
	}
	b.buttons.Unregister("dismiss:" + turnID)
	return "You claimed the turn. Use /submit to contribute.", nil
}

// handleDismiss passes on the offer named by "dismiss:<turnID>".
func (b *Bot) handleDismiss(ctx context.Context, evt *InteractionEvent) (string, error) {
	turnID := customIDSuffix(evt.CustomID)
	if _, err := b.co.DismissOffer(ctx, turnID); err != nil {
		return "", err
	}
	b.buttons.Unregister("claim:" + turnID)
	return "Passed. The turn goes back up for offer.", nil
}

func customIDSuffix(customID string) string {
	for i := range customID {
		if customID[i] == ':' {
			return customID[i+1:]
		}
	}
	return customID
}
