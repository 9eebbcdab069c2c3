package bleconn

import (
	"context"
	"errors"
	"time"
)

// WaitForDisconnect waits for device's Connected property to report
// false under a fixed DisconnectTimeout ceiling, then ensures at least
// minWait has elapsed in total before returning (§4.G): topping up the
// remaining time when Connected went false early, or sleeping out
// minWait outright when there is no platform path to watch or the path
// vanished from the bus entirely (the out-of-slots ejection case,
// original wait_for_disconnect's KeyError branch). If the ceiling
// expires, or any other error occurs, it returns without an extra
// sleep, matching the original's broad catch-and-log.
//
// Callers fold their retry backoff into minWait rather than sleeping it
// separately, so the total per-attempt wait is max(disconnect-wait,
// backoff) instead of their sum.
func WaitForDisconnect(ctx context.Context, view DeviceView, device Device, minWait time.Duration) error {
	path, ok := device.Path()
	if !ok || view == nil {
		return sleepAtLeast(ctx, minWait)
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, DisconnectTimeout)
	err := view.WaitForCondition(waitCtx, path, "Connected", false)
	cancel()

	switch {
	case errors.Is(err, errPathGone):
		return sleepAtLeast(ctx, minWait)
	case err == nil:
		if remaining := minWait - time.Since(start); remaining > 0 {
			return sleepAtLeast(ctx, remaining)
		}
		return nil
	default:
		// ErrNoBus, the DisconnectTimeout ceiling expiring, or ctx
		// cancellation: nothing more to confirm or wait for.
		return nil
	}
}

// sleepAtLeast sleeps for d, or returns early with ctx's error if ctx
// is done first.
func sleepAtLeast(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// WaitForDeviceToReappear polls view for address to reappear on any
// adapter path within maxWait, at ReappearWaitInterval cadence (§4.G). It
// returns nil once the device reappears, ErrNoBus at once if view is
// nil, or the context/deadline error otherwise.
func WaitForDeviceToReappear(ctx context.Context, view DeviceView, address Address, maxWait time.Duration) error {
	if view == nil {
		return ErrNoBus
	}
	if maxWait <= 0 {
		maxWait = reappearWaitBound
	}
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(ReappearWaitInterval)
	defer ticker.Stop()

	for {
		if dev, err := GetDevice(ctx, view, address); err == nil && dev != nil {
			return nil
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
