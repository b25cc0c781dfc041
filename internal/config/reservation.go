package config

import "time"

// ReservationConfig tunes the shop-claim flow.  FailOpen controls whether an
// availability probe that keeps failing reports the slot as free (the picker
// stays usable at the cost of a possibly stale display) or as taken.  The
// attempt count and backoff cover both the post-create re-read and the claim
// write.
type ReservationConfig struct {
	FailOpen     bool          // availability probe policy on transient read failure
	MaxAttempts  int           // bounded retry attempts for claim reads/writes
	Backoff      time.Duration // fixed delay between claim retry attempts
	FetchTimeout time.Duration // upper bound on a profile fetch before giving up
}

// LoadReservationConfig reads the claim-flow knobs from the environment.
func LoadReservationConfig() ReservationConfig {
	cfg := ReservationConfig{
		FailOpen:     getenv("CLAIM_FAIL_OPEN", "true") == "true",
		MaxAttempts:  atoi(getenv("CLAIM_MAX_ATTEMPTS", "3")),
		Backoff:      parseDur(getenv("CLAIM_BACKOFF", "200ms")),
		FetchTimeout: parseDur(getenv("PROFILE_FETCH_TIMEOUT", "5s")),
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	return cfg
}
