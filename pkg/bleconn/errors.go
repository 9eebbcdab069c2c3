package bleconn

import (
	"context"
	"errors"
	"fmt"
)

// Terminal error sentinels (§7). Callers match against these with
// errors.Is; the underlying backend error remains reachable via
// errors.Unwrap or ConnectError.Cause.
var (
	// ErrNotFound means the device could not be reached: the sequence
	// ended on timeouts or a device-missing error, or on a
	// DeviceNotFoundError after which the device did not reappear on the
	// bus. Restarting the scanner or moving the device closer is the
	// recommended next step.
	ErrNotFound = errors.New("bleconn: device not found")

	// ErrOutOfSlots means the adapter's connection slots are exhausted.
	ErrOutOfSlots = errors.New("bleconn: out of connection slots")

	// ErrAborted means the connection attempt was repeatedly aborted by
	// interference or range, not a missing device or exhausted slots.
	ErrAborted = errors.New("bleconn: connection aborted")

	// ErrConnectionError is the catch-all terminal class for anything
	// not covered by the three above.
	ErrConnectionError = errors.New("bleconn: connection error")
)

const (
	notFoundAdvice   = "try restarting the scanner or moving the device closer"
	outOfSlotsAdvice = "the proxy/adapter is out of connection slots; add more proxies near this device"
	abortedAdvice    = "interference/range; an external adapter with extension may help; extension cables reduce USB 3 interference"
)

// ConnectError is the error EstablishConnection returns once an attempt
// sequence reaches its terminal condition (§7). It wraps one of the
// sentinel classes above plus the original backend error.
type ConnectError struct {
	Class       error // one of ErrNotFound, ErrOutOfSlots, ErrAborted, ErrConnectionError
	Cause       error
	Device      Device
	LogicalName string
	Attempts    int
	advice      string
}

func (e *ConnectError) Error() string {
	name := e.LogicalName
	desc := e.Device.Description()
	if name != "" && name != string(e.Device.Address) {
		desc = name + " - " + desc
	}
	msg := fmt.Sprintf("%s - %s: Failed to connect after %d attempt(s): %s",
		errClassLabel(e.Class), desc, e.Attempts, causeString(e.Cause))
	if e.advice != "" {
		msg += ": " + e.advice
	}
	return msg
}

// Unwrap exposes both the sentinel class and the original cause to
// errors.Is/errors.As chains.
func (e *ConnectError) Unwrap() []error {
	return []error{e.Class, e.Cause}
}

// Cause_ returns the original backend error that triggered termination
// (the same value as the Cause field).
func (e *ConnectError) Cause_() error { return e.Cause }

func errClassLabel(class error) string {
	switch {
	case errors.Is(class, ErrNotFound):
		return "BleakNotFoundError"
	case errors.Is(class, ErrOutOfSlots):
		return "BleakOutOfConnectionSlotsError"
	case errors.Is(class, ErrAborted):
		return "BleakAbortedError"
	default:
		return "BleakConnectionError"
	}
}

// newConnectError builds the terminal error for a finished attempt
// sequence, applying the message format of §7.
func newConnectError(class error, advice string, device Device, logicalName string, attempts int, cause error) *ConnectError {
	return &ConnectError{
		Class:       class,
		Cause:       cause,
		Device:      device,
		LogicalName: logicalName,
		Attempts:    attempts,
		advice:      advice,
	}
}

// translateTerminal implements the terminal translation table of §7. It
// may perform one bounded reappear-wait against view when cause carries
// the DeviceNotFoundError type tag, to disambiguate a true disappearance
// from a likely slot exhaustion.
func translateTerminal(ctx context.Context, view DeviceView, device Device, logicalName string, attempts int, class ErrorClass, cause error) error {
	switch {
	case class == ClassTimeout:
		return newConnectError(ErrNotFound, notFoundAdvice, device, logicalName, attempts, cause)
	case class == ClassDeviceMissing:
		return newConnectError(ErrNotFound, notFoundAdvice, device, logicalName, attempts, cause)
	case isDeviceNotFoundType(cause):
		if reappeared := deviceReappeared(ctx, view, device); !reappeared {
			return newConnectError(ErrNotFound, notFoundAdvice, device, logicalName, attempts, cause)
		}
		return newConnectError(ErrOutOfSlots, outOfSlotsAdvice, device, logicalName, attempts, cause)
	case class == ClassOutOfSlots:
		return newConnectError(ErrOutOfSlots, outOfSlotsAdvice, device, logicalName, attempts, cause)
	case class == ClassTransient || class == ClassTransientMedium || class == ClassTransientLong || class == ClassAborted:
		return newConnectError(ErrAborted, abortedAdvice, device, logicalName, attempts, cause)
	default:
		return newConnectError(ErrConnectionError, "", device, logicalName, attempts, cause)
	}
}

func deviceReappeared(ctx context.Context, view DeviceView, device Device) bool {
	if view == nil {
		return false
	}
	waitCtx, cancel := context.WithTimeout(ctx, reappearWaitBound)
	defer cancel()
	err := WaitForDeviceToReappear(waitCtx, view, device.Address, reappearWaitBound)
	return err == nil
}
