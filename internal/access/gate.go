// Package access decides whether a member may start or submit a test.
// Everything here is pure: callers pass the current time and the resolved
// membership facts.
package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/teamhub/assessment-engine/internal/models"
	"golang.org/x/crypto/bcrypt"
)

type Reason string

const (
	ReasonOK                Reason = "OK"
	ReasonNotPublished      Reason = "TEST_NOT_PUBLISHED"
	ReasonNotOpen           Reason = "TEST_NOT_OPEN"
	ReasonWindowClosed      Reason = "TEST_WINDOW_CLOSED"
	ReasonPasswordRequired  Reason = "PASSWORD_REQUIRED"
	ReasonPasswordInvalid   Reason = "PASSWORD_INVALID"
	ReasonNotAssigned       Reason = "NOT_ASSIGNED"
	ReasonAttemptsExhausted Reason = "ATTEMPTS_EXHAUSTED"
	ReasonNotTeamMember     Reason = "NOT_TEAM_MEMBER"
)

// Requester is the resolved identity of the caller within the test's team.
type Requester struct {
	MembershipID uint
	SubteamID    *uint
	EventIDs     []uint
	Elevated     bool
}

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

func allow() Decision {
	return Decision{Allowed: true, Reason: ReasonOK}
}

func deny(r Reason) Decision {
	return Decision{Allowed: false, Reason: r}
}

// CanStart evaluates publication status, the time window, the password and
// the assignment list, in that order. Elevated requesters skip the password
// and assignment checks only.
func CanStart(test *models.Test, who Requester, password string, now time.Time) Decision {
	if d := checkOpen(test, now); !d.Allowed {
		return d
	}

	if who.Elevated {
		return allow()
	}

	if test.RequiresPassword() {
		if password == "" {
			return deny(ReasonPasswordRequired)
		}
		if !VerifyPassword(*test.PasswordHash, password) {
			return deny(ReasonPasswordInvalid)
		}
	}

	if !Assigned(test.Assignments, who) {
		return deny(ReasonNotAssigned)
	}

	return allow()
}

// CanSubmit re-checks status and window at submission time, honouring the
// late grace period.
func CanSubmit(test *models.Test, now time.Time) Decision {
	return checkOpen(test, now)
}

// CheckAttemptLimit denies non-elevated requesters that already used all
// attempts. finished counts SUBMITTED and GRADED attempts.
func CheckAttemptLimit(test *models.Test, finished int64, elevated bool) Decision {
	if elevated || test.MaxAttempts == nil {
		return allow()
	}
	if finished >= int64(*test.MaxAttempts) {
		return deny(ReasonAttemptsExhausted)
	}
	return allow()
}

// InWindow reports whether now is inside [startAt, endAt], extended to
// allowLateUntil when a grace period is configured.
func InWindow(test *models.Test, now time.Time) (bool, Reason) {
	if test.StartAt != nil && now.Before(*test.StartAt) {
		return false, ReasonNotOpen
	}
	if test.EndAt != nil && now.After(*test.EndAt) {
		if test.AllowLateUntil == nil || now.After(*test.AllowLateUntil) {
			return false, ReasonWindowClosed
		}
	}
	return true, ReasonOK
}

func checkOpen(test *models.Test, now time.Time) Decision {
	if test.Status != models.TestStatusPublished {
		return deny(ReasonNotPublished)
	}
	if ok, reason := InWindow(test, now); !ok {
		return deny(reason)
	}
	return allow()
}

// HashPassword hashes a test password for storage.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a supplied password with the stored hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
