package memory

import (
	"context"
	"sync"
)

// Leaderboard is an in-memory stand-in for the external score collaborator.
type Leaderboard struct {
	mu     sync.Mutex
	users  map[string]int
	groups map[string]int
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{
		users:  make(map[string]int),
		groups: make(map[string]int),
	}
}

func (l *Leaderboard) IncrementUserScore(_ context.Context, userID string, delta int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users[userID] += delta
	return nil
}

func (l *Leaderboard) IncrementGroupScore(_ context.Context, groupID string, delta int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.groups[groupID] += delta
	return nil
}

func (l *Leaderboard) Reset(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users = make(map[string]int)
	l.groups = make(map[string]int)
	return nil
}

// UserScore reads back a user's accumulated score (test helper).
func (l *Leaderboard) UserScore(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.users[userID]
}

// GroupScore reads back a group's accumulated score (test helper).
func (l *Leaderboard) GroupScore(groupID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.groups[groupID]
}
