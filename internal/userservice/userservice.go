// Package userservice is the thin command layer over the user/referral
// repository: user creation, verification, and the tiered
// spending-allowance computation the HTTP layer surfaces to callers.
package userservice

import (
	"context"

	"github.com/moozedealer/dealer/internal/repository"
)

// Per-confirmed-count tier caps and the overall daily cap, in cents.
// Mirrors repository.tierCapCents exactly; kept as a second copy here
// because advisory allowance computation is a read-only service concern,
// not a Repository write path.
const (
	tier0CapCents = 25000
	tier1CapCents = 75000
	tier2CapCents = 150000
	dailyCapCents = 500000
)

// Service wraps a Repository with the user-facing operations.
type Service struct {
	repo repository.Repository
}

func New(repo repository.Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateUser(ctx context.Context, referralCode *string) (*repository.User, error) {
	return s.repo.InsertUser(ctx, referralCode)
}

func (s *Service) GetUser(ctx context.Context, id string) (*repository.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *Service) VerifyUser(ctx context.Context, id string) error {
	return s.repo.VerifyUser(ctx, id)
}

// GetUserDailySpending sums today's eulen_depix_sent transactions, in cents.
func (s *Service) GetUserDailySpending(ctx context.Context, id string) (int64, error) {
	return s.repo.GetDailySpending(ctx, id)
}

// GetAllowedSpending returns the remaining amount, in cents, the user may
// still spend today: the tier cap for their confirmed-payout count, minus
// whatever they've already spent today, floored at zero.
func (s *Service) GetAllowedSpending(ctx context.Context, id string) (int64, error) {
	count, err := s.repo.GetTransactionCount(ctx, id, repository.StatusEulenDepixSent)
	if err != nil {
		return 0, err
	}
	daily, err := s.repo.GetDailySpending(ctx, id)
	if err != nil {
		return 0, err
	}

	cap := tierCapCents(count)
	allowed := cap - daily
	if allowed < 0 {
		allowed = 0
	}
	return allowed, nil
}

func tierCapCents(count int64) int64 {
	switch count {
	case 0:
		return tier0CapCents
	case 1:
		return tier1CapCents
	case 2:
		return tier2CapCents
	default:
		return dailyCapCents
	}
}

func (s *Service) GetUserReferrerAddress(ctx context.Context, id string) (*string, error) {
	return s.repo.GetReferrerAddress(ctx, id)
}
