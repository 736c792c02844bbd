package reliability

import "time"

// Config is the resolved, clamped reliability policy applied around a
// single upstream call site (one per provider client).
type Config struct {
	MaxRetries         int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	RetryJitter        time.Duration
	RetryOnNetworkErr  bool
	RetryStatusCodes   map[int]struct{}
	Threshold          int
	CooldownMs         time.Duration
}

// DefaultConfig mirrors the defaults a provider client falls back to when
// the caller supplies no override.
func DefaultConfig() Config {
	return Resolve(Config{
		MaxRetries:        2,
		RetryBaseDelay:    300 * time.Millisecond,
		RetryMaxDelay:     5 * time.Second,
		RetryJitter:       100 * time.Millisecond,
		RetryOnNetworkErr: true,
		RetryStatusCodes:  map[int]struct{}{429: {}, 500: {}, 502: {}, 503: {}, 504: {}},
		Threshold:         5,
		CooldownMs:        30 * time.Second,
	})
}

// Resolve clamps every field of cfg into its documented range. It is pure
// and safe to call on a zero-value Config, which resolves to the lower
// bounds (no retries, 1ms base delay, threshold 1, 100ms cooldown), not to
// DefaultConfig's numbers.
func Resolve(cfg Config) Config {
	out := cfg

	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if out.MaxRetries > 10 {
		out.MaxRetries = 10
	}

	if out.RetryBaseDelay < time.Millisecond {
		out.RetryBaseDelay = time.Millisecond
	}
	if out.RetryMaxDelay < out.RetryBaseDelay {
		out.RetryMaxDelay = out.RetryBaseDelay
	}
	if out.RetryJitter < 0 {
		out.RetryJitter = 0
	}

	if out.RetryStatusCodes == nil {
		out.RetryStatusCodes = map[int]struct{}{}
	} else {
		filtered := make(map[int]struct{}, len(out.RetryStatusCodes))
		for code := range out.RetryStatusCodes {
			if code >= 100 && code <= 599 {
				filtered[code] = struct{}{}
			}
		}
		out.RetryStatusCodes = filtered
	}

	if out.Threshold < 1 {
		out.Threshold = 1
	}
	if out.Threshold > 100 {
		out.Threshold = 100
	}

	if out.CooldownMs < 100*time.Millisecond {
		out.CooldownMs = 100 * time.Millisecond
	}
	if out.CooldownMs > 300*time.Second {
		out.CooldownMs = 300 * time.Second
	}

	return out
}

func (c Config) isRetryStatus(code int) bool {
	_, ok := c.RetryStatusCodes[code]
	return ok
}
