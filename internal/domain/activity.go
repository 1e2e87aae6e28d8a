package domain

import (
	"fmt"
	"strings"
)

// ActivityName is the validated, case-sensitive key of an activity in the catalog.
type ActivityName string

// ParseActivityName validates a raw activity name taken from a request or seed file.
func ParseActivityName(raw string) (ActivityName, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrInvalidActivityName
	}
	return ActivityName(raw), nil
}

func (n ActivityName) String() string { return string(n) }

// Activity is an extracurricular offering together with its current roster.
type Activity struct {
	Name            ActivityName
	Description     string
	Schedule        string
	MaxParticipants int
	Participants    []string
	// Revision counts committed roster changes. Stores assign it on Mutate;
	// fn values must leave it alone.
	Revision int64
}

// Validate checks the structural invariants of a catalog entry.
func (a Activity) Validate() error {
	if strings.TrimSpace(string(a.Name)) == "" {
		return ErrInvalidActivityName
	}
	if a.MaxParticipants <= 0 {
		return fmt.Errorf("activity %q: max_participants must be > 0", a.Name)
	}
	if len(a.Participants) > a.MaxParticipants {
		return fmt.Errorf("activity %q: %d participants exceed capacity %d", a.Name, len(a.Participants), a.MaxParticipants)
	}
	seen := make(map[string]struct{}, len(a.Participants))
	for _, email := range a.Participants {
		if _, dup := seen[email]; dup {
			return fmt.Errorf("activity %q: duplicate participant %s", a.Name, email)
		}
		seen[email] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy so callers never share the roster slice with the store.
func (a Activity) Clone() Activity {
	out := a
	out.Participants = append([]string(nil), a.Participants...)
	return out
}

// IsFull reports whether the roster has reached capacity.
func (a *Activity) IsFull() bool {
	return len(a.Participants) >= a.MaxParticipants
}

// HasParticipant reports whether email is on the roster.
func (a *Activity) HasParticipant(email string) bool {
	for _, p := range a.Participants {
		if p == email {
			return true
		}
	}
	return false
}

// SpotsLeft is the number of open places on the roster.
func (a *Activity) SpotsLeft() int {
	if left := a.MaxParticipants - len(a.Participants); left > 0 {
		return left
	}
	return 0
}

// Enroll adds email to the roster. Capacity is checked before membership.
func (a *Activity) Enroll(email string) error {
	if a.IsFull() {
		return fmt.Errorf("%w: %s (%d/%d)", ErrCapacityExceeded, a.Name, len(a.Participants), a.MaxParticipants)
	}
	if a.HasParticipant(email) {
		return fmt.Errorf("%w: %s in %s", ErrAlreadyEnrolled, email, a.Name)
	}
	a.Participants = append(a.Participants, email)
	return nil
}

// Withdraw removes email from the roster, preserving the order of the others.
func (a *Activity) Withdraw(email string) error {
	for i, p := range a.Participants {
		if p == email {
			a.Participants = append(a.Participants[:i:i], a.Participants[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s in %s", ErrNotEnrolled, email, a.Name)
}
