package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jholhewres/gochain/internal/model"
)

type fakePort struct {
	dms       []string
	announces []string
	offers    []string
	failDM    bool
}

func (f *fakePort) DM(ctx context.Context, playerID, content string) error {
	if f.failDM {
		return errors.New("dm delivery failed")
	}
	f.dms = append(f.dms, playerID+":"+content)
	return nil
}

func (f *fakePort) ChannelAnnounce(ctx context.Context, channelID, content string) error {
	f.announces = append(f.announces, channelID+":"+content)
	return nil
}

func (f *fakePort) Offer(ctx context.Context, playerID, turnID string, deadline time.Time, actions []string) error {
	f.offers = append(f.offers, playerID+":"+turnID)
	return nil
}

type fakeChannels struct {
	completed string
	admin     string
}

func (f *fakeChannels) GetCompletedChannelID(ctx context.Context, guildID string) (string, error) {
	return f.completed, nil
}

func (f *fakeChannels) GetAdminChannelID(ctx context.Context, guildID string) (string, error) {
	return f.admin, nil
}

func TestDispatchDeliversEachIntentKind(t *testing.T) {
	port := &fakePort{}
	channels := &fakeChannels{completed: "c-done", admin: "c-admin"}
	d := NewDispatcher(port, channels, nil)

	intents := []Intent{
		TurnOffered("alice", "t1", time.Now().Add(time.Hour), []string{"claim"}),
		TurnWarning("alice", "t1", 5*time.Minute),
		TurnSubmittedAck("alice"),
		TurnClaimedAck("carol"),
		TurnSkipped("bob"),
		GameCompleted(&model.Game{ID: "g1"}),
		SeasonCompleted(&model.Season{ID: "s1"}),
		ContentFlagged("t1", "mod1"),
		GameDeletedInitialTurnTimeout("alice"),
		SeasonActivated(&model.Season{ID: "s1"}, 2),
		SeasonReverted(&model.Season{ID: "s1"}),
	}
	d.Dispatch(context.Background(), "guild1", intents)

	if len(port.offers) != 1 || port.offers[0] != "alice:t1" {
		t.Fatalf("unexpected offers: %v", port.offers)
	}
	if len(port.dms) != 5 {
		t.Fatalf("expected 5 DMs, got %d: %v", len(port.dms), port.dms)
	}
	if len(port.announces) != 5 {
		t.Fatalf("expected 5 announcements, got %d: %v", len(port.announces), port.announces)
	}
}

// TestDispatchSwallowsDeliveryErrors covers spec §4.8: notification failures
// are logged, never propagated.
func TestDispatchSwallowsDeliveryErrors(t *testing.T) {
	port := &fakePort{failDM: true}
	channels := &fakeChannels{}
	d := NewDispatcher(port, channels, nil)

	// Dispatch must not panic or return an error value (it has none to return).
	d.Dispatch(context.Background(), "guild1", []Intent{TurnSubmittedAck("alice")})
}
