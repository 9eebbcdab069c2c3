package bleconn

import (
	"context"
	"errors"
)

// EstablishConnection drives the attempt state machine of §4.F:
// AttemptStart (refresh the device handle, reap stale siblings on a
// retry) -> Connect (bounded by BleakSafetyTimeout) -> Done on success,
// or OnError (classify, count, maybe back off) -> AttemptStart again.
// view, slots, and reaper may all be nil, in which case the
// corresponding steps (device freshening, slot bookkeeping, stale
// reaping) are skipped.
func EstablishConnection(
	ctx context.Context,
	view DeviceView,
	slots *SlotManager,
	reaper *Reaper,
	factory ClientFactory,
	initialDevice Device,
	logicalName string,
	opts Options,
) (GATTClient, error) {
	opts = opts.withDefaults()
	device := initialDevice
	var counters Counters
	var client GATTClient
	createClient := true

	for {
		counters.Attempt++
		isRetry := counters.Attempt > 1
		original := device

		if opts.BLEDeviceCallback != nil {
			device = opts.BLEDeviceCallback()
		} else if fresh, err := Freshen(ctx, view, device); err == nil && fresh != nil {
			device = *fresh
		}

		// The device handle can change between attempts (a new
		// adapter wins arbitration, a fresh path is assigned); when it
		// does, any client already bound to the old handle must be
		// discarded and rebuilt rather than reused.
		if !createClient {
			createClient = BLEDeviceHasChanged(original, device)
		}

		if isRetry && reaper != nil {
			_ = reaper.CloseStaleConnections(ctx, device, true)
		}

		if createClient {
			client = factory(device, opts.DisconnectedCallback, isRetry)
			createClient = false
		}

		useCache := *opts.UseServicesCache && cacheStillValid(ctx, view, device, opts.CachedServices)

		connectCtx, cancel := context.WithTimeout(ctx, BleakSafetyTimeout)
		err := client.Connect(connectCtx, BleakTimeout, useCache)
		cancel()

		if err == nil {
			if path, ok := device.Path(); ok && slots != nil {
				slots.AllocateSlot(path, device.Address)
			}
			return client, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		class, backoff := Classify(err)
		switch {
		case class == ClassTimeout:
			counters.Timeouts++
		case class == ClassTransient || class == ClassOutOfSlots || isBaseTransient(err):
			counters.TransientErrors++
		default:
			counters.ConnectErrors++
		}

		if counters.Terminal(opts.MaxAttempts) {
			return nil, translateTerminal(ctx, view, device, logicalName, counters.Attempt, class, err)
		}

		// The backoff for this class is folded into the disconnect
		// wait's min_wait rather than slept separately, so the total
		// per-attempt delay is max(disconnect-wait, backoff) instead
		// of their sum.
		if !isBrokenPipe(err) {
			_ = WaitForDisconnect(ctx, view, device, BackoffDuration(backoff))
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

func isBrokenPipe(err error) bool {
	var bp *BrokenPipeError
	return errors.As(err, &bp)
}
