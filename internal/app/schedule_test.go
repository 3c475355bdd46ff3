package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"event-quiz-service/internal/app"
	"event-quiz-service/internal/domain"
)

type fakeProvider struct {
	mu    sync.Mutex
	talks []domain.Talk
	err   error
	calls int
}

func (p *fakeProvider) FetchTalks(context.Context) ([]domain.Talk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := make([]domain.Talk, len(p.talks))
	copy(out, p.talks)
	return out, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 5, 20, hour, minute, 0, 0, time.UTC)
}

func talk(id string, start, end time.Time) domain.Talk {
	return domain.Talk{ID: id, Title: id, StartsAt: start, EndsAt: end}
}

func serviceTalk(id string, start, end time.Time) domain.Talk {
	t := talk(id, start, end)
	t.IsService = true
	return t
}

func TestSyncBuildsSlotGrid(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{talks: []domain.Talk{
		talk("s1", at(10, 0), at(10, 50)),
		talk("s2", at(10, 50), at(11, 40)),
		serviceTalk("break", at(11, 40), at(12, 0)),
		talk("s3", at(12, 0), at(12, 50)),
		serviceTalk("lunch", at(12, 50), at(14, 0)),
		talk("s4", at(14, 0), at(14, 50)),
	}}
	schedule := app.NewScheduleService(provider, time.Minute, 0)

	if _, err := schedule.Sync(ctx); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		slots := schedule.SlotsForTalk(id)
		if len(slots) != 1 {
			t.Fatalf("talk %s: expected 1 slot, got %d", id, len(slots))
		}
	}
	s1 := schedule.SlotsForTalk("s1")
	if !s1[0].Start.Equal(at(10, 0)) || !s1[0].End.Equal(at(10, 50)) {
		t.Fatalf("unexpected s1 slot: %+v", s1[0])
	}
	if slots := schedule.SlotsForTalk("break"); len(slots) != 0 {
		t.Fatalf("service talk must not get slots, got %d", len(slots))
	}
	if slots := schedule.SlotsForTalk("unknown"); len(slots) != 0 {
		t.Fatalf("unknown talk must get no slots, got %d", len(slots))
	}
}

func TestLongTalkGetsOneSlotPerUnit(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{talks: []domain.Talk{
		talk("short", at(10, 0), at(10, 30)),
		talk("workshop", at(11, 0), at(12, 40)),
	}}
	schedule := app.NewScheduleService(provider, time.Minute, 0)

	if _, err := schedule.Sync(ctx); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	// Unit is 30m; 100m of workshop holds floor(100/30) = 3 full slots.
	slots := schedule.SlotsForTalk("workshop")
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	if !slots[2].Start.Equal(at(12, 0)) || !slots[2].End.Equal(at(12, 30)) {
		t.Fatalf("unexpected last slot: %+v", slots[2])
	}
}

func TestCarveoutSkipsCoveredSlots(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{talks: []domain.Talk{
		talk("short", at(9, 0), at(9, 30)),
		talk("long", at(10, 0), at(11, 30)),
		serviceTalk("break", at(10, 30), at(11, 0)),
	}}
	schedule := app.NewScheduleService(provider, time.Minute, 0)

	if _, err := schedule.Sync(ctx); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	slots := schedule.SlotsForTalk("long")
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots around the carve-out, got %d", len(slots))
	}
	if !slots[0].Start.Equal(at(10, 0)) || !slots[1].Start.Equal(at(11, 0)) {
		t.Fatalf("unexpected slots: %+v", slots)
	}
}

func TestFullyCarvedTalkGetsNoSlots(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{talks: []domain.Talk{
		talk("short", at(9, 0), at(9, 30)),
		talk("shadowed", at(10, 0), at(10, 30)),
		serviceTalk("plenary", at(10, 0), at(10, 30)),
	}}
	schedule := app.NewScheduleService(provider, time.Minute, 0)

	if _, err := schedule.Sync(ctx); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if slots := schedule.SlotsForTalk("shadowed"); len(slots) != 0 {
		t.Fatalf("expected no slots for fully carved talk, got %d", len(slots))
	}
}

func TestEnsureSyncedHonorsCooldown(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{talks: []domain.Talk{talk("s1", at(10, 0), at(10, 50))}}

	now := at(9, 0)
	clock := func() time.Time { return now }
	schedule := app.NewScheduleServiceWithClock(provider, 10*time.Minute, 0, clock)

	for i := 0; i < 3; i++ {
		if err := schedule.EnsureSynced(ctx); err != nil {
			t.Fatalf("ensure synced: %v", err)
		}
	}
	if got := provider.callCount(); got != 1 {
		t.Fatalf("expected 1 fetch inside cooldown, got %d", got)
	}

	now = now.Add(11 * time.Minute)
	if err := schedule.EnsureSynced(ctx); err != nil {
		t.Fatalf("ensure synced: %v", err)
	}
	if got := provider.callCount(); got != 2 {
		t.Fatalf("expected 2 fetches after cooldown, got %d", got)
	}
}

func TestEnsureSyncedCoalescesConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{talks: []domain.Talk{talk("s1", at(10, 0), at(10, 50))}}
	schedule := app.NewScheduleService(provider, time.Hour, 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := schedule.EnsureSynced(ctx); err != nil {
				t.Errorf("ensure synced: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := provider.callCount(); got != 1 {
		t.Fatalf("expected concurrent callers to share 1 fetch, got %d", got)
	}
}

func TestSyncFailureKeepsPreviousGrid(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{talks: []domain.Talk{talk("s1", at(10, 0), at(10, 50))}}
	schedule := app.NewScheduleService(provider, time.Minute, 0)

	if _, err := schedule.Sync(ctx); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	provider.mu.Lock()
	provider.err = errors.New("upstream down")
	provider.mu.Unlock()

	if _, err := schedule.Sync(ctx); err == nil {
		t.Fatalf("expected sync error")
	}
	if slots := schedule.SlotsForTalk("s1"); len(slots) != 1 {
		t.Fatalf("expected previous grid to survive, got %d slots", len(slots))
	}
}

func TestSessionTags(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{talks: []domain.Talk{
		talk("t1", at(10, 0), at(11, 0)),
		talk("t2", at(11, 0), at(12, 0)),
		talk("t3", at(12, 0), at(13, 0)),
		talk("t4", at(13, 10), at(14, 0)),
		serviceTalk("lunch", at(12, 0), at(13, 0)),
	}}
	// Lunch occupies the third session index.
	schedule := app.NewScheduleService(provider, time.Minute, 3)

	talks, err := schedule.Sync(ctx)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	tags := make(map[string][]string)
	for _, tk := range talks {
		tags[tk.ID] = tk.Tags
	}

	assertTags(t, tags, "t1", "session_1")
	assertTags(t, tags, "t2", "session_2")
	// t3 lands on the lunch index and gets no tag.
	assertTags(t, tags, "t3")
	// t4 starts at 13:10, rounds up to the 14:00 bucket, shifts past lunch.
	assertTags(t, tags, "t4", "session_4")
	if len(tags["lunch"]) != 0 {
		t.Fatalf("service talk must carry no tags, got %v", tags["lunch"])
	}
}

func TestSessionTagsSpanWholeHours(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{talks: []domain.Talk{
		talk("deep-dive", at(10, 0), at(11, 30)),
	}}
	schedule := app.NewScheduleService(provider, time.Minute, 0)

	talks, err := schedule.Sync(ctx)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if len(talks) != 1 {
		t.Fatalf("expected 1 talk, got %d", len(talks))
	}
	// 90 minutes rounds up to two hour-sessions.
	got := talks[0].Tags
	if len(got) != 2 || got[0] != "session_1" || got[1] != "session_2" {
		t.Fatalf("expected session_1+session_2, got %v", got)
	}
}

func assertTags(t *testing.T, tags map[string][]string, id string, want ...string) {
	t.Helper()
	got := tags[id]
	if len(got) != len(want) {
		t.Fatalf("talk %s: expected tags %v, got %v", id, want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("talk %s: expected tags %v, got %v", id, want, got)
		}
	}
}
