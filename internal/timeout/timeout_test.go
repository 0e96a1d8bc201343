package timeout

import (
	"context"
	"testing"
	"time"

	"github.com/jholhewres/gochain/internal/clock"
	"github.com/jholhewres/gochain/internal/coreerr"
	"github.com/jholhewres/gochain/internal/jobstore"
	"github.com/jholhewres/gochain/internal/model"
	"github.com/jholhewres/gochain/internal/ports"
)

// memStorage duplicated minimally here to keep this package's tests
// independent of jobstore's internal test helpers.
type memStorage struct {
	jobs map[string]*model.ScheduledJob
}

func newMemStorage() *memStorage { return &memStorage{jobs: make(map[string]*model.ScheduledJob)} }

func (m *memStorage) Save(_ context.Context, job *model.ScheduledJob) error {
	cp := *job
	m.jobs[job.JobID] = &cp
	return nil
}
func (m *memStorage) Get(_ context.Context, jobID string) (*model.ScheduledJob, error) {
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, coreerr.ErrNotFound
	}
	cp := *j
	return &cp, nil
}
func (m *memStorage) LoadScheduled(_ context.Context) ([]*model.ScheduledJob, error) { return nil, nil }
func (m *memStorage) MarkFailed(_ context.Context, jobID, reason string) error       { return nil }

// fakeTx implements ports.Tx, delegating only SaveJob/GetJob to a memStorage
// (what Service's methods under test actually call) and leaving every other
// method a zero-value stub, since these tests never exercise entity access.
type fakeTx struct {
	storage *memStorage
}

func (f fakeTx) SaveJob(ctx context.Context, job *model.ScheduledJob) error {
	return f.storage.Save(ctx, job)
}
func (f fakeTx) GetJob(ctx context.Context, jobID string) (*model.ScheduledJob, error) {
	return f.storage.Get(ctx, jobID)
}

func (fakeTx) GetPlayer(context.Context, string) (*model.Player, error)                { return nil, nil }
func (fakeTx) GetPlayerByExternalID(context.Context, string) (*model.Player, error)     { return nil, nil }
func (fakeTx) SavePlayer(context.Context, *model.Player) error                         { return nil }
func (fakeTx) GetSeason(context.Context, string) (*model.Season, error)                { return nil, nil }
func (fakeTx) SaveSeason(context.Context, *model.Season) error                         { return nil }
func (fakeTx) ListSeasonGames(context.Context, string) ([]*model.Game, error)          { return nil, nil }
func (fakeTx) ListSeasonMembers(context.Context, string) ([]*model.Membership, error)  { return nil, nil }
func (fakeTx) AddSeasonMember(context.Context, *model.Membership) error                { return nil }
func (fakeTx) GetSeasonConfig(context.Context, string) (*model.SeasonConfig, error)     { return nil, nil }
func (fakeTx) SaveSeasonConfig(context.Context, *model.SeasonConfig) error              { return nil }
func (fakeTx) GetGame(context.Context, string) (*model.Game, error)                    { return nil, nil }
func (fakeTx) SaveGame(context.Context, *model.Game) error                             { return nil }
func (fakeTx) DeleteGame(context.Context, string) error                                { return nil }
func (fakeTx) ListGamesByGuildAndStatus(context.Context, string, []model.GameStatus) ([]*model.Game, error) {
	return nil, nil
}
func (fakeTx) ListGamesByStatus(context.Context, []model.GameStatus) ([]*model.Game, error) {
	return nil, nil
}
func (fakeTx) GetGameConfig(context.Context, string) (*model.GameConfig, error) { return nil, nil }
func (fakeTx) SaveGameConfig(context.Context, *model.GameConfig) error          { return nil }
func (fakeTx) GetTurn(context.Context, string) (*model.Turn, error)            { return nil, nil }
func (fakeTx) SaveTurn(context.Context, *model.Turn) error                     { return nil }
func (fakeTx) SaveTurnConditional(context.Context, *model.Turn, model.TurnStatus) (bool, error) {
	return false, nil
}
func (fakeTx) GetHeadTurn(context.Context, string) (*model.Turn, error) { return nil, nil }
func (fakeTx) ListTurns(context.Context, string) ([]*model.Turn, error) { return nil, nil }
func (fakeTx) ListTurnsByPlayer(context.Context, string, string) ([]*model.Turn, error) {
	return nil, nil
}
func (fakeTx) ListPendingTurnsByPlayer(context.Context, string) ([]*model.Turn, error) {
	return nil, nil
}

var _ ports.Tx = fakeTx{}

func TestOnOfferSchedulesWarningAndTimeout(t *testing.T) {
	storage := newMemStorage()
	c := clock.NewFixed(time.Unix(1000, 0))
	sched := jobstore.New(storage, c, nil)
	svc := New(sched, c)

	cfg := &model.SeasonConfig{
		ClaimTimeout: 10 * time.Minute,
		ClaimWarning: 5 * time.Minute,
	}
	tn := &model.Turn{ID: "t1", GameID: "g1", Type: model.TurnWriting, Status: model.TurnOffered, PlayerID: "alice"}
	tx := fakeTx{storage: storage}

	if err := svc.OnOffer(context.Background(), tx, tn, cfg); err != nil {
		t.Fatalf("OnOffer: %v", err)
	}

	if _, ok := storage.jobs[ClaimWarningJobID("t1")]; !ok {
		t.Errorf("expected claim-warning job to be scheduled")
	}
	if _, ok := storage.jobs[ClaimTimeoutJobID("t1")]; !ok {
		t.Errorf("expected claim-timeout job to be scheduled")
	}
}

func TestOnOfferSkipsWarningWhenNotShorterThanTimeout(t *testing.T) {
	storage := newMemStorage()
	c := clock.NewFixed(time.Unix(1000, 0))
	sched := jobstore.New(storage, c, nil)
	svc := New(sched, c)

	cfg := &model.SeasonConfig{
		ClaimTimeout: 10 * time.Minute,
		ClaimWarning: 10 * time.Minute, // not < timeout
	}
	tn := &model.Turn{ID: "t1", GameID: "g1", Type: model.TurnWriting, Status: model.TurnOffered, PlayerID: "alice"}
	tx := fakeTx{storage: storage}

	if err := svc.OnOffer(context.Background(), tx, tn, cfg); err != nil {
		t.Fatalf("OnOffer: %v", err)
	}
	if _, ok := storage.jobs[ClaimWarningJobID("t1")]; ok {
		t.Errorf("expected no claim-warning job when warning >= timeout")
	}
}

// TestOnClaimCancelsClaimJobsAndArmsSubmission covers P4: on transition out
// of OFFERED, claim jobs are cancelled.
func TestOnClaimCancelsClaimJobsAndArmsSubmission(t *testing.T) {
	storage := newMemStorage()
	c := clock.NewFixed(time.Unix(1000, 0))
	sched := jobstore.New(storage, c, nil)
	svc := New(sched, c)

	cfg := &model.SeasonConfig{
		ClaimTimeout:   10 * time.Minute,
		ClaimWarning:   5 * time.Minute,
		WritingTimeout: 20 * time.Minute,
	}
	tn := &model.Turn{ID: "t1", GameID: "g1", Type: model.TurnWriting, Status: model.TurnOffered, PlayerID: "alice"}
	ctx := context.Background()
	tx := fakeTx{storage: storage}

	if err := svc.OnOffer(ctx, tx, tn, cfg); err != nil {
		t.Fatalf("OnOffer: %v", err)
	}
	if err := svc.OnClaim(ctx, tx, tn, cfg); err != nil {
		t.Fatalf("OnClaim: %v", err)
	}

	if j := storage.jobs[ClaimWarningJobID("t1")]; j.Status != model.JobCancelled {
		t.Errorf("expected claim-warning cancelled, got %s", j.Status)
	}
	if j := storage.jobs[ClaimTimeoutJobID("t1")]; j.Status != model.JobCancelled {
		t.Errorf("expected claim-timeout cancelled, got %s", j.Status)
	}
	if _, ok := storage.jobs[SubmissionTimeoutJobID("t1")]; !ok {
		t.Errorf("expected submission-timeout job to be scheduled")
	}
}

func TestPolicyDivergence(t *testing.T) {
	if SeasonPolicy.ClaimTimeoutAction() != DismissOffer {
		t.Errorf("season policy should dismiss on claim timeout")
	}
	if OnDemandPolicy.ClaimTimeoutAction() != SkipAndMaybeDeleteGame {
		t.Errorf("on-demand policy should skip (and maybe delete) on claim timeout")
	}
}
