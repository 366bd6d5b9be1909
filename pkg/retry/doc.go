// Package retry retries transient failures with backoff.
//
// Operations receive the caller's context and every wait between attempts
// is cancellable:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		return fetch(ctx, url)
//	}, &retry.Config{
//		MaxAttempts: 2,
//		Backoff:     &retry.ConstantBackoff{Delay: time.Second},
//	})
//
// DefaultRetryIf retries upstream_unavailable errors (network failures,
// 429 and 5xx responses) and untyped errors. Authentication, not-found,
// private-account and undersized-resource errors are returned immediately,
// as is context cancellation.
package retry
