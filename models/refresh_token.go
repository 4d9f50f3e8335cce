package models

import (
	"sort"
	"time"
)

// RefreshToken is one registry entry. Only the SHA-256 of the token is kept.
type RefreshToken struct {
	TokenHash string    `bson:"tokenHash"`
	IssuedAt  time.Time `bson:"issuedAt"`
	ExpiresAt time.Time `bson:"expiresAt"`
}

// Live reports whether the entry is still usable at now.
func (t RefreshToken) Live(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}

// LiveRefreshTokens drops entries that have expired at now.
func LiveRefreshTokens(tokens []RefreshToken, now time.Time) []RefreshToken {
	out := make([]RefreshToken, 0, len(tokens))
	for _, t := range tokens {
		if t.Live(now) {
			out = append(out, t)
		}
	}
	return out
}

// AppendRefreshToken adds entry to the registry, pruning expired entries and
// evicting the oldest ones so that at most capacity remain. capacity <= 0
// means unbounded.
func AppendRefreshToken(tokens []RefreshToken, entry RefreshToken, capacity int, now time.Time) []RefreshToken {
	out := append(LiveRefreshTokens(tokens, now), entry)
	if capacity <= 0 || len(out) <= capacity {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IssuedAt.Before(out[j].IssuedAt)
	})
	return out[len(out)-capacity:]
}

// ContainsRefreshToken reports whether a live entry with tokenHash exists.
func ContainsRefreshToken(tokens []RefreshToken, tokenHash string, now time.Time) bool {
	for _, t := range tokens {
		if t.TokenHash == tokenHash && t.Live(now) {
			return true
		}
	}
	return false
}

// RemoveRefreshToken drops every entry with tokenHash and reports whether
// one was removed.
func RemoveRefreshToken(tokens []RefreshToken, tokenHash string) ([]RefreshToken, bool) {
	out := make([]RefreshToken, 0, len(tokens))
	removed := false
	for _, t := range tokens {
		if t.TokenHash == tokenHash {
			removed = true
			continue
		}
		out = append(out, t)
	}
	return out, removed
}
