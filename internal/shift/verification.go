package shift

import (
	"context"
	"fmt"
	"time"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/shiftbot/internal/db"
)

type VerificationStore interface {
	UpsertUser(ctx context.Context, user *db.User) error
	GetUser(ctx context.Context, id int64) (*db.User, error)
	SetUserVerified(ctx context.Context, id int64, verified bool, at time.Time) error

	CreateVerificationRequest(ctx context.Context, req *db.VerificationRequest) (*db.VerificationRequest, error)
	GetVerificationRequestByToken(ctx context.Context, token string) (*db.VerificationRequest, error)
	GetPendingVerificationRequest(ctx context.Context, userID int64) (*db.VerificationRequest, error)
	ListPendingVerificationRequests(ctx context.Context) ([]*db.VerificationRequest, error)
	DecideVerificationRequest(ctx context.Context, id int64, status db.VerificationStatus, decidedBy int64, at time.Time) (bool, error)
}

// PendingRequest pairs a verification request with its user.
type PendingRequest struct {
	Request *db.VerificationRequest
	User    *db.User
}

// VerificationService gates voting: only verified users' votes are counted.
type VerificationService struct {
	store  VerificationStore
	now    func() time.Time
	logger *log.Entry
}

func NewVerificationService(store VerificationStore) *VerificationService {
	return &VerificationService{
		store:  store,
		now:    time.Now,
		logger: log.WithField("context", "verification"),
	}
}

// Request returns the pending request of the user, creating one when absent.
// The boolean reports whether a new request was created.
func (s *VerificationService) Request(ctx context.Context, user *db.User) (*db.VerificationRequest, bool, error) {
	if err := s.store.UpsertUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("upsert user: %w", err)
	}
	stored, err := s.store.GetUser(ctx, user.ID)
	if err != nil {
		return nil, false, fmt.Errorf("get user: %w", err)
	}
	if stored != nil && stored.Verified {
		return nil, false, ErrAlreadyVerified
	}

	pending, err := s.store.GetPendingVerificationRequest(ctx, user.ID)
	if err != nil {
		return nil, false, fmt.Errorf("get pending request: %w", err)
	}
	if pending != nil {
		return pending, false, nil
	}

	req, err := s.store.CreateVerificationRequest(ctx, &db.VerificationRequest{
		Token:     uuid.New(),
		UserID:    user.ID,
		Status:    db.VerificationPending,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	s.logger.WithField("user_id", user.ID).Info("verification requested")
	return req, true, nil
}

func (s *VerificationService) Approve(ctx context.Context, token string, adminID int64) (*PendingRequest, error) {
	return s.decide(ctx, token, db.VerificationApproved, adminID)
}

func (s *VerificationService) Reject(ctx context.Context, token string, adminID int64) (*PendingRequest, error) {
	return s.decide(ctx, token, db.VerificationRejected, adminID)
}

func (s *VerificationService) decide(ctx context.Context, token string, status db.VerificationStatus, adminID int64) (*PendingRequest, error) {
	req, err := s.store.GetVerificationRequestByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}

	now := s.now()
	ok, err := s.store.DecideVerificationRequest(ctx, req.ID, status, adminID, now)
	if err != nil {
		return nil, fmt.Errorf("decide request: %w", err)
	}
	if !ok {
		return nil, ErrRequestDecided
	}
	if status == db.VerificationApproved {
		if err := s.store.SetUserVerified(ctx, req.UserID, true, now); err != nil {
			return nil, fmt.Errorf("mark user verified: %w", err)
		}
	}
	req.Status = status
	req.DecidedBy = adminID

	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	s.logger.WithFields(log.Fields{
		"user_id":  req.UserID,
		"admin_id": adminID,
		"status":   string(status),
	}).Info("verification decided")
	return &PendingRequest{Request: req, User: user}, nil
}

// SetVerified toggles the flag directly, without a request.
func (s *VerificationService) SetVerified(ctx context.Context, userID int64, verified bool) error {
	if err := s.store.SetUserVerified(ctx, userID, verified, s.now()); err != nil {
		return fmt.Errorf("set verified: %w", err)
	}
	return nil
}

func (s *VerificationService) Pending(ctx context.Context) ([]PendingRequest, error) {
	requests, err := s.store.ListPendingVerificationRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	result := make([]PendingRequest, 0, len(requests))
	for _, req := range requests {
		user, err := s.store.GetUser(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("get user: %w", err)
		}
		result = append(result, PendingRequest{Request: req, User: user})
	}
	return result, nil
}
