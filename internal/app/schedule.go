package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"event-quiz-service/internal/domain"
)

// ScheduleService turns the raw, irregular conference schedule into a grid of
// fixed-duration slots per talk. The slot duration (the unit) is the minimum
// content-talk duration in the current schedule; service talks never produce
// slots, they only carve holes into neighboring ones.
type ScheduleService struct {
	provider  TalkProvider
	cooldown  time.Duration
	lunchSlot int
	clock     func() time.Time

	// syncMu serializes physical syncs so concurrent EnsureSynced callers
	// coalesce behind a single fetch-and-rebuild.
	syncMu   sync.Mutex
	lastSync time.Time

	mu          sync.RWMutex
	talks       []domain.Talk
	slotsByTalk map[string][]domain.Slot
}

// NewScheduleService builds a schedule service. cooldown bounds how often
// EnsureSynced performs a physical sync; lunchSlot is the 1-based session tag
// index reserved for lunch (0 disables the carve-out in the tag numbering).
func NewScheduleService(provider TalkProvider, cooldown time.Duration, lunchSlot int) *ScheduleService {
	return &ScheduleService{
		provider:    provider,
		cooldown:    cooldown,
		lunchSlot:   lunchSlot,
		clock:       time.Now,
		slotsByTalk: make(map[string][]domain.Slot),
	}
}

// NewScheduleServiceWithClock is test-only for deterministic sync windows.
func NewScheduleServiceWithClock(provider TalkProvider, cooldown time.Duration, lunchSlot int, clock func() time.Time) *ScheduleService {
	s := NewScheduleService(provider, cooldown, lunchSlot)
	s.clock = clock
	return s
}

// Sync fetches the full schedule and rebuilds the slot map. The map is
// replaced wholesale; a provider failure leaves the previous state untouched.
func (s *ScheduleService) Sync(ctx context.Context) ([]domain.Talk, error) {
	talks, err := s.provider.FetchTalks(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.KindUnavailable, "fetch schedule", err)
	}

	// Strip sub-minute precision; provider timestamps carry second-level
	// noise that would break interval equality.
	for i := range talks {
		talks[i].StartsAt = talks[i].StartsAt.Truncate(time.Minute)
		talks[i].EndsAt = talks[i].EndsAt.Truncate(time.Minute)
	}

	slots := buildSlotGrid(talks)
	tagged := assignSessionTags(talks, s.lunchSlot)

	s.mu.Lock()
	s.talks = tagged
	s.slotsByTalk = slots
	s.mu.Unlock()

	return tagged, nil
}

// EnsureSynced performs at most one physical sync per cooldown window.
// Concurrent callers block until the winning sync completes, then observe it.
func (s *ScheduleService) EnsureSynced(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if !s.lastSync.IsZero() && s.clock().Sub(s.lastSync) < s.cooldown {
		return nil
	}
	if _, err := s.Sync(ctx); err != nil {
		return err
	}
	s.lastSync = s.clock()
	return nil
}

// SlotsForTalk returns the slot set for a talk, empty when unknown.
func (s *ScheduleService) SlotsForTalk(talkID string) []domain.Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slots := s.slotsByTalk[talkID]
	out := make([]domain.Slot, len(slots))
	copy(out, slots)
	return out
}

// Talks returns the talks from the last completed sync.
func (s *ScheduleService) Talks() []domain.Talk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Talk, len(s.talks))
	copy(out, s.talks)
	return out
}

// buildSlotGrid lays unit-length slots over every content talk, skipping
// regions covered by service talks. The unit is the minimum content-talk
// duration; with no content talks there is nothing to build.
func buildSlotGrid(talks []domain.Talk) map[string][]domain.Slot {
	grid := make(map[string][]domain.Slot)

	var content, carveouts []domain.Talk
	for _, t := range talks {
		if t.IsService {
			carveouts = append(carveouts, t)
		} else {
			content = append(content, t)
		}
	}
	if len(content) == 0 {
		return grid
	}

	unit := content[0].Duration()
	for _, t := range content[1:] {
		if d := t.Duration(); d < unit {
			unit = d
		}
	}
	if unit <= 0 {
		return grid
	}

	for _, t := range content {
		var slots []domain.Slot
		cursor := t.StartsAt
		for !cursor.Add(unit).After(t.EndsAt) {
			candidate := domain.Slot{Start: cursor, End: cursor.Add(unit)}
			if carve, ok := overlappingCarveout(candidate, carveouts); ok {
				// The carve-out end is strictly after the cursor whenever
				// they overlap, so this always makes progress.
				cursor = carve.EndsAt
				continue
			}
			slots = append(slots, candidate)
			cursor = cursor.Add(unit)
		}
		grid[t.ID] = slots
	}
	return grid
}

func overlappingCarveout(slot domain.Slot, carveouts []domain.Talk) (domain.Talk, bool) {
	for _, c := range carveouts {
		if slot.Overlaps(c.StartsAt, c.EndsAt) {
			return c, true
		}
	}
	return domain.Talk{}, false
}

// assignSessionTags is the fixed hour-bucket labeling used by deployments that
// tag by session index instead of slot geometry. Talks are bucketed by start
// hour (a non-zero minute rounds up to the next hour) and tagged
// session_1..session_N relative to the first bucket; a talk spanning multiple
// whole hours receives one tag per hour. The lunch index yields no tag and
// later indices shift down by one.
func assignSessionTags(talks []domain.Talk, lunchSlot int) []domain.Talk {
	out := make([]domain.Talk, len(talks))
	copy(out, talks)

	sorted := make([]*domain.Talk, 0, len(out))
	for i := range out {
		out[i].Tags = nil
		if out[i].IsService {
			continue
		}
		sorted = append(sorted, &out[i])
	}
	if len(sorted) == 0 {
		return out
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartsAt.Before(sorted[j].StartsAt) })

	bucketOf := func(t time.Time) int {
		if t.Minute() == 0 {
			return t.Hour()
		}
		return t.Hour() + 1
	}

	firstBucket := bucketOf(sorted[0].StartsAt)
	for _, t := range sorted {
		slotIndex := bucketOf(t.StartsAt) - firstBucket
		units := ceilHours(t.Duration())
		var tags []string
		for i := 0; i < units; i++ {
			idx := slotIndex + i + 1
			if lunchSlot > 0 {
				if idx == lunchSlot {
					continue
				}
				if idx > lunchSlot {
					idx--
				}
			}
			tags = append(tags, fmt.Sprintf("session_%d", idx))
		}
		t.Tags = tags
	}
	return out
}

func ceilHours(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	hours := int(d / time.Hour)
	if d%time.Hour != 0 {
		hours++
	}
	return hours
}
