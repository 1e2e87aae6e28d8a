// Package domain defines the roster rules for extracurricular activities.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrAlreadyEnrolled is returned when the student is already on the roster.
	ErrAlreadyEnrolled = errors.New("student already enrolled")
	// ErrCapacityExceeded is returned when the roster is full.
	ErrCapacityExceeded = errors.New("activity is full")
	// ErrNotEnrolled is returned when withdrawing a student who is not on the roster.
	ErrNotEnrolled = errors.New("student not enrolled")
	// ErrInvalidEmail is returned for a blank student identifier.
	ErrInvalidEmail = errors.New("student email is required")
	// ErrInvalidActivityName is returned for a blank activity name.
	ErrInvalidActivityName = errors.New("activity name is required")
)

// MutateFunc changes a copy of an activity. Returning an error discards the change.
type MutateFunc func(*Activity) error

// CatalogStore captures persistence operations for the activity catalog.
//
// Get returns (nil, nil) when the activity does not exist. Mutate must apply
// fn and persist its result as one atomic step with respect to other Mutate
// calls, bump Revision on commit, and return ErrActivityNotFound for unknown
// names.
type CatalogStore interface {
	List(ctx context.Context) ([]Activity, error)
	Get(ctx context.Context, name ActivityName) (*Activity, error)
	Mutate(ctx context.Context, name ActivityName, fn MutateFunc) (*Activity, error)
}

// RosterObserver is notified after a roster change has been committed.
// Notifications for one activity may arrive out of order; Activity.Revision
// orders them.
type RosterObserver interface {
	RosterChanged(op RosterOp, activity Activity)
	RosterRejected(op RosterOp, err error)
}

// RosterOp names a roster transition.
type RosterOp string

const (
	RosterOpSignup   RosterOp = "signup"
	RosterOpWithdraw RosterOp = "withdraw"
)

// Service enforces signup and withdrawal rules against a CatalogStore.
type Service struct {
	store    CatalogStore
	observer RosterObserver
}

// ServiceOption configures optional collaborators of the Service.
type ServiceOption func(*Service)

// WithObserver registers an observer for roster transitions.
func WithObserver(o RosterObserver) ServiceOption {
	return func(s *Service) {
		s.observer = o
	}
}

// NewService constructs a Service.
func NewService(store CatalogStore, opts ...ServiceOption) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListActivities returns every activity in catalog order.
func (s *Service) ListActivities(ctx context.Context) ([]Activity, error) {
	return s.store.List(ctx)
}

// GetActivity fetches one activity by name.
func (s *Service) GetActivity(ctx context.Context, name ActivityName) (*Activity, error) {
	activity, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, fmt.Errorf("%w: %s", ErrActivityNotFound, name)
	}
	return activity, nil
}

// Signup enrolls email in the named activity.
func (s *Service) Signup(ctx context.Context, name ActivityName, email string) (*Activity, error) {
	return s.apply(ctx, RosterOpSignup, name, email, func(a *Activity) error {
		return a.Enroll(email)
	})
}

// Withdraw removes email from the named activity.
func (s *Service) Withdraw(ctx context.Context, name ActivityName, email string) (*Activity, error) {
	return s.apply(ctx, RosterOpWithdraw, name, email, func(a *Activity) error {
		return a.Withdraw(email)
	})
}

func (s *Service) apply(ctx context.Context, op RosterOp, name ActivityName, email string, fn MutateFunc) (*Activity, error) {
	if strings.TrimSpace(email) == "" {
		s.rejected(op, ErrInvalidEmail)
		return nil, ErrInvalidEmail
	}

	updated, err := s.store.Mutate(ctx, name, fn)
	if err != nil {
		s.rejected(op, err)
		return nil, err
	}
	if s.observer != nil {
		s.observer.RosterChanged(op, *updated)
	}
	return updated, nil
}

func (s *Service) rejected(op RosterOp, err error) {
	if s.observer != nil {
		s.observer.RosterRejected(op, err)
	}
}
