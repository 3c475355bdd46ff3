package app

import (
	"context"

	"event-quiz-service/internal/domain"
)

// CheckInService assigns attendees to the least-populated group. The pick and
// the counter increment happen inside one store transaction, so concurrent
// check-ins never double-assign past the intended balance.
type CheckInService struct {
	users  UserRepository
	groups GroupRepository
}

func NewCheckInService(users UserRepository, groups GroupRepository) *CheckInService {
	return &CheckInService{users: users, groups: groups}
}

// Register creates the attendee record check-in operates on. Group
// assignment only ever happens through CheckIn, never at registration.
func (s *CheckInService) Register(ctx context.Context, user domain.User) (domain.User, error) {
	user.GroupID = ""
	if err := s.users.CreateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// User returns the attendee record.
func (s *CheckInService) User(ctx context.Context, userID string) (domain.User, error) {
	return s.users.GetUser(ctx, userID)
}

// CheckIn assigns a group to the user, once. The group counter is rolled back
// if recording the assignment on the user fails.
func (s *CheckInService) CheckIn(ctx context.Context, userID string) (domain.Group, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return domain.Group{}, err
	}
	if user.CheckedIn() {
		return domain.Group{}, domain.ErrAlreadyCheckedIn
	}

	groupID, err := s.groups.AssignLeastLoaded(ctx)
	if err != nil {
		return domain.Group{}, err
	}
	if err := s.users.AssignGroup(ctx, userID, groupID); err != nil {
		_ = s.groups.DecrementUserCount(ctx, groupID)
		return domain.Group{}, err
	}
	return s.groups.GetGroup(ctx, groupID)
}

// Release frees the user's group seat (user deletion path).
func (s *CheckInService) Release(ctx context.Context, userID string) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.CheckedIn() {
		return nil
	}
	return s.groups.DecrementUserCount(ctx, user.GroupID)
}

// CreateGroup registers a new group with an empty seat counter.
func (s *CheckInService) CreateGroup(ctx context.Context, group domain.Group) (domain.Group, error) {
	group.UserCount = 0
	return s.groups.CreateGroup(ctx, group)
}

// ListGroups returns every group with its current counter.
func (s *CheckInService) ListGroups(ctx context.Context) ([]domain.Group, error) {
	return s.groups.ListGroups(ctx)
}
