package session

import "time"

// Skew is subtracted from the expiry so a refresh can complete before the server starts
// rejecting the token. It also absorbs clock drift between client and server.
const Skew = 5 * time.Minute

// IsValid reports whether the access token can be used as is.
func IsValid(s Session, now time.Time) bool {
	if !s.IsAuthenticated || s.AccessToken == "" || s.ExpiresAt.IsZero() {
		return false
	}
	return now.Before(s.ExpiresAt.Add(-Skew))
}

// ShouldRefresh reports whether a refresh is due. An authenticated session with no
// recorded expiry is corrupt and always needs a refresh.
func ShouldRefresh(s Session, now time.Time) bool {
	if !s.IsAuthenticated || s.AccessToken == "" {
		return false
	}
	if s.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(s.ExpiresAt.Add(-Skew))
}

// Validation is a detailed view of the access token's validity.
type Validation struct {
	IsValid       bool
	ShouldRefresh bool
	ExpiresIn     time.Duration // Remaining lifetime, never negative
}

func Evaluate(s Session, now time.Time) Validation {
	v := Validation{
		IsValid:       IsValid(s, now),
		ShouldRefresh: ShouldRefresh(s, now),
	}
	if !s.ExpiresAt.IsZero() {
		v.ExpiresIn = max(s.ExpiresAt.Sub(now), 0)
	}
	return v
}
