package reconnect

import (
	"livon-client/internal/config"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Options selects the delay policy between reconnect attempts.
type Options struct {
	Strategy    string
	Delay       time.Duration
	MaxDelay    time.Duration
	MaxAttempts int // 0 retries forever
}

func OptionsFromConfig(cfg config.ReconnectConfig) Options {
	return Options{
		Strategy:    cfg.Strategy,
		Delay:       cfg.Delay,
		MaxDelay:    cfg.MaxDelay,
		MaxAttempts: cfg.MaxAttempts,
	}
}

// NewBackOff returns a constant delay unless the exponential strategy is
// requested explicitly.
func (o Options) NewBackOff() backoff.BackOff {
	delay := o.Delay
	if delay <= 0 {
		delay = 3 * time.Second
	}
	if o.Strategy != config.StrategyExponential {
		return backoff.NewConstantBackOff(delay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	if o.MaxDelay > delay {
		b.MaxInterval = o.MaxDelay
	} else {
		b.MaxInterval = delay
	}
	b.Reset()
	return b
}
