// Package ratelimit paces asset downloads.
//
// Pacing is optional. New returns an Unlimited limiter for a zero rate, which
// is the default, and a TokenBucket backed by golang.org/x/time/rate
// otherwise. Wait honours context cancellation so a stopped run never blocks
// on the limiter.
//
// Usage:
//
//	limiter := ratelimit.New(cfg.Download.RequestsPerSecond)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit
