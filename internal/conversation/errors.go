package conversation

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations. These are part of the Store's
// public API and should be checked with errors.Is().
var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrProfileNotFound indicates the session has no demographics profile yet.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrProfileExists indicates demographics were already collected for
	// the session.
	ErrProfileExists = errors.New("profile already exists")

	// ErrDiagnosesExist indicates differentials were already recorded for
	// the session.
	ErrDiagnosesExist = errors.New("diagnoses already exist")

	// ErrInvalidProfile indicates submitted demographics failed validation.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Profile validation bounds.
const (
	MinAge = 0
	MaxAge = 130
)

// ValidateProfile checks submitted demographics.
// Returns ErrInvalidProfile wrapped with the specific problem.
func ValidateProfile(age int, biologicalSex string) error {
	if age < MinAge || age > MaxAge {
		return fmt.Errorf("%w: age must be between %d and %d, got %d", ErrInvalidProfile, MinAge, MaxAge, age)
	}
	if biologicalSex != "male" && biologicalSex != "female" {
		return fmt.Errorf("%w: biological_sex must be male or female, got %q", ErrInvalidProfile, biologicalSex)
	}
	return nil
}
