package bleconn

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrorClass is the small, stable taxonomy every backend error is
// projected into before the retry engine acts on it.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassTimeout
	ClassTransient
	ClassTransientMedium
	ClassTransientLong
	ClassOutOfSlots
	ClassDeviceMissing
	ClassNormalDisconnect
	ClassAborted
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTimeout:
		return "timeout"
	case ClassTransient:
		return "transient"
	case ClassTransientMedium:
		return "transient_medium"
	case ClassTransientLong:
		return "transient_long"
	case ClassOutOfSlots:
		return "out_of_slots"
	case ClassDeviceMissing:
		return "device_missing"
	case ClassNormalDisconnect:
		return "normal_disconnect"
	case ClassAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// BackoffClass selects the duration family used to pace a retry.
type BackoffClass int

const (
	BackoffDefault BackoffClass = iota
	BackoffDBus
	BackoffTransient
	BackoffTransientMedium
	BackoffTransientLong
	BackoffOutOfSlots
	BackoffNormalDisconnect
)

// backoffDurations is the base-default duration table of §3. It is a
// package-level constant table, not rebuilt per call, keeping
// BackoffDuration allocation-free.
var backoffDurations = [...]time.Duration{
	BackoffDefault:          100 * time.Millisecond,
	BackoffDBus:             250 * time.Millisecond,
	BackoffTransient:        250 * time.Millisecond,
	BackoffTransientMedium:  900 * time.Millisecond,
	BackoffTransientLong:    1250 * time.Millisecond,
	BackoffOutOfSlots:       4 * time.Second,
	BackoffNormalDisconnect: 0,
}

// BackoffDuration returns the configured duration for a BackoffClass. It
// is a pure function of its input, per invariant 1 of §8.
func BackoffDuration(c BackoffClass) time.Duration {
	if int(c) < 0 || int(c) >= len(backoffDurations) {
		return backoffDurations[BackoffDefault]
	}
	return backoffDurations[c]
}

// Type-tag sentinel errors. A backend wraps its underlying failure in
// one of these (via fmt.Errorf("...: %w", cause) or by returning the
// value directly) to communicate the precedence-first type tag from
// §4.A; Classify checks errors.As against each before falling back to
// message substring matching.

// TimeoutError tags an operation that exceeded its deadline.
type TimeoutError struct{ Cause error }

func (e *TimeoutError) Error() string { return "timed out: " + causeString(e.Cause) }
func (e *TimeoutError) Unwrap() error { return e.Cause }

// BrokenPipeError tags a transport write failure after the peer closed
// the connection out from under us.
type BrokenPipeError struct{ Cause error }

func (e *BrokenPipeError) Error() string { return "broken pipe: " + causeString(e.Cause) }
func (e *BrokenPipeError) Unwrap() error { return e.Cause }

// EOFLikeError tags an unexpected end-of-stream while waiting on a
// reply.
type EOFLikeError struct{ Cause error }

func (e *EOFLikeError) Error() string { return "unexpected eof: " + causeString(e.Cause) }
func (e *EOFLikeError) Unwrap() error { return e.Cause }

// DBusError tags a generic object-bus call failure that is not itself a
// timeout.
type DBusError struct {
	Cause   error
	Message string
}

func (e *DBusError) Error() string {
	if e.Message != "" {
		return "dbus error: " + e.Message
	}
	return "dbus error: " + causeString(e.Cause)
}
func (e *DBusError) Unwrap() error { return e.Cause }

// DeviceNotFoundError tags a backend-reported "device not found"
// failure distinct from a device-missing message substring: it may
// really mean the adapter ran out of connection slots (§4.F), so it is
// classified as ClassOutOfSlots rather than ClassDeviceMissing.
type DeviceNotFoundError struct {
	Cause   error
	Message string
}

func (e *DeviceNotFoundError) Error() string {
	if e.Message != "" {
		return "device not found: " + e.Message
	}
	return "device not found: " + causeString(e.Cause)
}
func (e *DeviceNotFoundError) Unwrap() error { return e.Cause }

func causeString(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}

// Keyword sets exactly as specified in §3. Declared as map[string]struct{}
// so membership checks never allocate.
var (
	outOfSlotsKeywords = map[string]struct{}{
		"available connection":        {},
		"connection slot":             {},
		"ESP_GATT_CONN_CONN_CANCEL":   {},
	}
	transientMediumKeywords = map[string]struct{}{
		"ESP_GATT_CONN_TIMEOUT":        {},
		"ESP_GATT_CONN_FAIL_ESTABLISH": {},
	}
	transientLongKeywords = map[string]struct{}{
		"ESP_GATT_ERROR": {},
	}
	transientKeywords = map[string]struct{}{
		"le-connection-abort-by-local":        {},
		"br-connection-canceled":              {},
		"ESP_GATT_CONN_FAIL_ESTABLISH":        {},
		"ESP_GATT_CONN_TERMINATE_PEER_USER":   {},
		"ESP_GATT_CONN_TERMINATE_LOCAL_HOST":  {},
		"ESP_GATT_CONN_CONN_CANCEL":           {},
	}
	deviceMissingKeywords = map[string]struct{}{
		"org.freedesktop.DBus.Error.UnknownObject": {},
	}
)

const normalDisconnectKeyword = "Disconnected"
const deviceMissingSubstring = "not found"

func containsAny(msg string, set map[string]struct{}) bool {
	for kw := range set {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// Classify is the pure, allocation-free classifier of §4.A: type tags
// take precedence over message substring matching, and within message
// matching OutOfSlots and TransientMedium are checked ahead of the
// broader Transient set so that keywords present in more than one set
// (e.g. "ESP_GATT_CONN_CONN_CANCEL", "ESP_GATT_CONN_FAIL_ESTABLISH")
// resolve to the more specific, user-relevant class (§9).
func Classify(err error) (ErrorClass, BackoffClass) {
	if err == nil {
		return ClassUnknown, BackoffDefault
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout, BackoffDBus
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return ClassTimeout, BackoffDBus
	}

	var notFound *DeviceNotFoundError
	if errors.As(err, &notFound) {
		return ClassOutOfSlots, BackoffOutOfSlots
	}

	var brokenPipe *BrokenPipeError
	if errors.As(err, &brokenPipe) {
		return ClassTransient, BackoffDBus
	}

	var eofErr *EOFLikeError
	if errors.As(err, &eofErr) {
		return ClassTransient, BackoffDBus
	}

	var dbusErr *DBusError
	if errors.As(err, &dbusErr) {
		return ClassTransient, BackoffDBus
	}

	msg := err.Error()

	if containsAny(msg, outOfSlotsKeywords) {
		return ClassOutOfSlots, BackoffOutOfSlots
	}
	if containsAny(msg, transientMediumKeywords) {
		return ClassTransientMedium, BackoffTransientMedium
	}
	if containsAny(msg, transientLongKeywords) {
		return ClassTransientLong, BackoffTransientLong
	}
	if containsAny(msg, transientKeywords) {
		return ClassTransient, BackoffTransient
	}
	if containsAny(msg, deviceMissingKeywords) || strings.Contains(msg, deviceMissingSubstring) {
		return ClassDeviceMissing, BackoffDefault
	}
	if strings.Contains(msg, normalDisconnectKeyword) {
		return ClassNormalDisconnect, BackoffNormalDisconnect
	}

	return ClassUnknown, BackoffDefault
}

// isBaseTransient reports whether err's message matches the base
// transient keyword set, independent of which ErrorClass it resolves
// to. The original counts an error as transient_errors++ whenever its
// message is in TRANSIENT_ERRORS, even when that same message also
// matches a more specific medium/long-backoff keyword set and
// therefore resolves to ClassTransientMedium/ClassTransientLong for
// backoff purposes (e.g. "ESP_GATT_CONN_FAIL_ESTABLISH" is in both).
// EstablishConnection uses this to key its transient-error budget off
// the same membership the original checks, rather than off Classify's
// backoff-oriented class.
func isBaseTransient(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), transientKeywords)
}

// isDeviceNotFoundType reports whether err carries the DeviceNotFoundError
// type tag specifically, as opposed to having merely matched the
// OutOfSlots keyword set by message. The terminal translator (§7) uses
// this to decide whether a reappear check can downgrade the result from
// OutOfSlots to NotFound.
func isDeviceNotFoundType(err error) bool {
	var notFound *DeviceNotFoundError
	return errors.As(err, &notFound)
}
