package bleconn

import (
	"context"
	"time"
)

// RetryBluetoothConnectionError retries fn up to attempts times whenever
// Classify judges the returned error non-terminal, sleeping
// BackoffDuration between tries. It is the general-purpose counterpart
// to EstablishConnection for call sites that already hold an open GATT
// connection and just need a classified-backoff retry around a single
// operation, grounded on bleak-retry-connector's
// retry_bluetooth_connection_error decorator (§9, §10).
func RetryBluetoothConnectionError(ctx context.Context, attempts int, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		class, backoff := Classify(err)
		if class == ClassNormalDisconnect || attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(BackoffDuration(backoff)):
		}
	}
	return lastErr
}
