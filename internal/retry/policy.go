// Package retry computes backoff schedules for outbound deliveries.
package retry

import (
	"time"

	"git.home.luguber.info/inful/appforge/internal/config"
)

// Defaults give five attempts separated by 1s, 2s, 4s and 8s.
const (
	DefaultAttempts = 5
	DefaultBase     = time.Second
	DefaultCap      = time.Minute
)

// Policy is an attempt budget plus the delay rule between attempts.
type Policy struct {
	Mode        config.RetryBackoffMode
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// FromNotify derives the delivery policy from notification settings.
// Unset or unknown fields take the defaults.
func FromNotify(cfg config.NotifyConfig) Policy {
	p := Policy{
		Mode:        config.NormalizeRetryBackoff(string(cfg.Backoff)),
		Base:        cfg.BaseDelay,
		Cap:         DefaultCap,
		MaxAttempts: cfg.MaxAttempts,
	}
	if p.Mode == "" {
		p.Mode = config.RetryBackoffExponential
	}
	if p.Base <= 0 {
		p.Base = DefaultBase
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultAttempts
	}
	if p.Base > p.Cap {
		p.Cap = p.Base
	}
	return p
}

// Attempts is the total number of tries, including the first.
func (p Policy) Attempts() int { return max(p.MaxAttempts, 1) }

// Delay is the wait after failed attempt n (1-based). It is zero for n < 1
// and never exceeds Cap.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case config.RetryBackoffFixed:
		d = p.Base
	case config.RetryBackoffLinear:
		d = time.Duration(n) * p.Base
	default:
		if n > 30 {
			return p.Cap
		}
		d = p.Base << (n - 1)
	}
	return min(d, p.Cap)
}

// Schedule lists every delay the policy will wait, in order.
func (p Policy) Schedule() []time.Duration {
	out := make([]time.Duration, 0, p.Attempts()-1)
	for n := 1; n < p.Attempts(); n++ {
		out = append(out, p.Delay(n))
	}
	return out
}
