package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/go-gif-bot/internal/domain"
	"github.com/tbourn/go-gif-bot/internal/metrics"
)

type fakeStore struct {
	counts *domain.AggregateCounts
	err    error
	block  chan struct{}
	calls  int
	mu     sync.Mutex
}

func (s *fakeStore) GetAggregateCounts(context.Context) (*domain.AggregateCounts, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	return s.counts, s.err
}

func (s *fakeStore) GetTopUsers(context.Context, int) ([]domain.TopUser, error) {
	return []domain.TopUser{{UserID: 1, Username: "alice", TotalConversions: 3}}, nil
}

func (s *fakeStore) GetRecentUsage(context.Context, int) ([]domain.RecentUsage, error) {
	return nil, nil
}

type fakeDiscord struct {
	mu       sync.Mutex
	names    map[string]string
	edits    []*discordgo.MessageEdit
	renameOK bool
}

func (d *fakeDiscord) ChannelEdit(id string, data *discordgo.ChannelEdit, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.renameOK {
		return nil, errors.New("missing permissions")
	}
	d.names[id] = data.Name
	return &discordgo.Channel{ID: id}, nil
}

func (d *fakeDiscord) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.edits = append(d.edits, m)
	return &discordgo.Message{}, nil
}

func allTargets() Targets {
	return Targets{UsersChannelID: "u", UsageChannelID: "c", MessageChannelID: "m", MessageID: "42"}
}

func TestTick_RenamesChannelsAndEditsMessage(t *testing.T) {
	store := &fakeStore{counts: &domain.AggregateCounts{Guilds: 2, Users: 1234, Events: 56789, Location: "db"}}
	dc := &fakeDiscord{names: map[string]string{}, renameOK: true}
	j := New(store, dc, allTargets(), time.Minute)

	before := testutil.ToFloat64(metrics.StatsJobRuns.WithLabelValues("ok"))
	if !j.Tick(context.Background()) {
		t.Fatalf("expected the run to happen")
	}
	if got := testutil.ToFloat64(metrics.StatsJobRuns.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("ok runs = %v; want %v", got, before+1)
	}

	if dc.names["u"] != "Users: 1,234" || dc.names["c"] != "Conversions: 56,789" {
		t.Fatalf("unexpected channel names: %v", dc.names)
	}
	if len(dc.edits) != 1 {
		t.Fatalf("expected one message edit, got %d", len(dc.edits))
	}
	e := dc.edits[0]
	if e.Channel != "m" || e.ID != "42" || e.Embeds == nil || len(*e.Embeds) != 2 {
		t.Fatalf("unexpected message edit: %+v", e)
	}
}

func TestTick_PartialTargets_AndErrorsCounted(t *testing.T) {
	store := &fakeStore{counts: &domain.AggregateCounts{Users: 1, Events: 2}}
	dc := &fakeDiscord{names: map[string]string{}, renameOK: false}
	j := New(store, dc, Targets{UsersChannelID: "u"}, time.Minute)

	before := testutil.ToFloat64(metrics.StatsJobRuns.WithLabelValues("error"))
	j.Tick(context.Background())
	if got := testutil.ToFloat64(metrics.StatsJobRuns.WithLabelValues("error")); got != before+1 {
		t.Fatalf("error runs = %v; want %v", got, before+1)
	}
	if len(dc.edits) != 0 {
		t.Fatalf("message target not configured; must not be edited")
	}

	store.err = errors.New("db gone")
	j.Tick(context.Background())
	if got := testutil.ToFloat64(metrics.StatsJobRuns.WithLabelValues("error")); got != before+2 {
		t.Fatalf("error runs = %v; want %v", got, before+2)
	}
}

func TestTick_SkipsWhileBusy(t *testing.T) {
	store := &fakeStore{counts: &domain.AggregateCounts{}, block: make(chan struct{})}
	dc := &fakeDiscord{names: map[string]string{}, renameOK: true}
	j := New(store, dc, allTargets(), time.Minute)

	done := make(chan bool)
	go func() { done <- j.Tick(context.Background()) }()

	// wait until the first run is inside the store
	deadline := time.Now().Add(2 * time.Second)
	for {
		store.mu.Lock()
		n := store.calls
		store.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("first run never started")
		}
		time.Sleep(time.Millisecond)
	}

	before := testutil.ToFloat64(metrics.StatsJobRuns.WithLabelValues("skipped"))
	if j.Tick(context.Background()) {
		t.Fatalf("overlapping run must be skipped")
	}
	if got := testutil.ToFloat64(metrics.StatsJobRuns.WithLabelValues("skipped")); got != before+1 {
		t.Fatalf("skipped runs = %v; want %v", got, before+1)
	}

	close(store.block)
	if !<-done {
		t.Fatalf("first run should have completed")
	}
	if !j.Tick(context.Background()) {
		t.Fatalf("run after completion must proceed")
	}
}

func TestRun_DisabledWithoutTargets_AndStopsOnCancel(t *testing.T) {
	j := New(&fakeStore{}, &fakeDiscord{}, Targets{MessageChannelID: "only-channel"}, time.Minute)
	finished := make(chan struct{})
	go func() { j.Run(context.Background()); close(finished) }()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("Run without targets should return immediately")
	}

	store := &fakeStore{counts: &domain.AggregateCounts{}}
	dc := &fakeDiscord{names: map[string]string{}, renameOK: true}
	j = New(store, dc, Targets{UsersChannelID: "u"}, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	finished = make(chan struct{})
	go func() { j.Run(ctx); close(finished) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("Run should stop on cancel")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.calls < 1 {
		t.Fatalf("expected at least one run, got %d", store.calls)
	}
}
