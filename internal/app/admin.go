package app

import "context"

// AdminService resets engagement state between rehearsal runs: timer state,
// results, and leaderboard scores. Quizzes, groups, and users survive.
type AdminService struct {
	progress    ProgressRepository
	leaderboard Leaderboard
}

func NewAdminService(progress ProgressRepository, leaderboard Leaderboard) *AdminService {
	return &AdminService{progress: progress, leaderboard: leaderboard}
}

func (s *AdminService) ResetEngagement(ctx context.Context) error {
	if err := s.progress.Reset(ctx); err != nil {
		return err
	}
	return s.leaderboard.Reset(ctx)
}
