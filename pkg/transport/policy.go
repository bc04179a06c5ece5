package transport

import (
	"math/rand"
	"os"
	"strconv"
	"time"
)

// BackoffType selects how the delay between delivery attempts grows.
type BackoffType string

const (
	BackoffExp       BackoffType = "exp"
	BackoffExpJitter BackoffType = "exp-jitter"
	BackoffFixed     BackoffType = "fixed"
	BackoffNone      BackoffType = "none"
)

// RetryPolicy bounds delivery attempts for a single logical POST.
type RetryPolicy struct {
	Type        BackoffType
	Base        time.Duration
	Cap         time.Duration
	Factor      float64
	MaxAttempts uint32
}

// DefaultRetryPolicy is the pipeline's normal-path policy: three attempts
// with a fixed one second floor between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Type: BackoffFixed, Base: time.Second, MaxAttempts: 3}
}

// OncePolicy performs a single attempt with no retry chaining. Used by the
// startup replay pass.
func OncePolicy() RetryPolicy {
	return RetryPolicy{Type: BackoffNone, MaxAttempts: 1}
}

// WithEnvOverrides overlays FLARE_BACKOFF_* / FLARE_MAX_ATTEMPTS environment
// variables onto the policy. Invalid values are ignored.
func (p RetryPolicy) WithEnvOverrides() RetryPolicy {
	if v := os.Getenv("FLARE_BACKOFF_TYPE"); v != "" {
		switch BackoffType(v) {
		case BackoffExp, BackoffExpJitter, BackoffFixed, BackoffNone:
			p.Type = BackoffType(v)
		}
	}
	if v := os.Getenv("FLARE_BACKOFF_BASE_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms >= 0 {
			p.Base = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("FLARE_BACKOFF_CAP_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms >= 0 {
			p.Cap = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("FLARE_BACKOFF_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			p.Factor = f
		}
	}
	if v := os.Getenv("FLARE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			p.MaxAttempts = uint32(n)
		}
	}
	return p
}

// Backoff computes the delay before retrying after the given 1-based attempt.
func (p RetryPolicy) Backoff(attempts uint32) time.Duration {
	switch p.Type {
	case BackoffNone:
		return 0
	case BackoffFixed:
		if p.Base <= 0 {
			return 0
		}
		if p.Cap > 0 && p.Base > p.Cap {
			return p.Cap
		}
		return p.Base
	case BackoffExp, BackoffExpJitter:
		base := p.Base
		if base <= 0 {
			base = 200 * time.Millisecond
		}
		factor := p.Factor
		if factor <= 0 {
			factor = 2.0
		}
		delay := float64(base)
		for i := uint32(1); i < attempts; i++ {
			delay *= factor
		}
		d := time.Duration(delay)
		if p.Cap > 0 && d > p.Cap {
			d = p.Cap
		}
		if p.Type == BackoffExpJitter {
			if d <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(d)))
		}
		return d
	default:
		return 0
	}
}
