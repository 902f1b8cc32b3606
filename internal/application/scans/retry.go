package scans

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollMaxWait  = 30 * time.Second
)

// RetryPolicy bounds how long a finished scan waits for the backend to index it.
type RetryPolicy struct {
	Interval time.Duration
	MaxWait  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Interval: DefaultPollInterval, MaxWait: DefaultPollMaxWait}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	if p.MaxWait <= 0 {
		p.MaxWait = DefaultPollMaxWait
	}
	return p
}

// Attempts is the number of report fetches the budget allows, at least one.
func (p RetryPolicy) Attempts() int {
	p = p.normalized()
	n := int(p.MaxWait / p.Interval)
	if n < 1 {
		n = 1
	}
	return n
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	p = p.normalized()
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), uint64(p.Attempts()-1))
	return backoff.WithContext(b, ctx)
}
