// Package retry runs an operation until it succeeds, fails permanently or
// runs out of budget.
//
// The download path uses it with unlimited attempts and a constant pause,
// which is the default. Bounds are opt-in through MaxAttempts and MaxElapsed.
// Only download_transport and download_status failures are retried by
// DefaultRetryIf; everything else returns on the first attempt.
//
// Basic usage:
//
//	cfg := retry.FromConfig(appCfg.Download.Retry, log)
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		return fetcher.Fetch(ctx, asset.URL, w)
//	}, cfg)
//
// Logging is throttled: the first VerboseAttempts retries are logged at WARN,
// the next one announces that further retries are suppressed, and the rest go
// to DEBUG. OnRetry still fires for every retry.
package retry
