package bleconn

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DetailsKind selects which variant of Details a Device carries.
type DetailsKind int

const (
	// DetailsNone means the device carries no platform-specific details.
	DetailsNone DetailsKind = iota
	// DetailsBlueZ means the device was derived from a BlueZ object path.
	DetailsBlueZ
	// DetailsRemote means the device was derived from a remote proxy source.
	DetailsRemote
)

// Details is the platform-specific variant attached to a Device. Exactly
// one of the BlueZ or Remote fields is meaningful, selected by Kind.
type Details struct {
	Kind DetailsKind

	// Path and Props are set when Kind == DetailsBlueZ.
	Path  Path
	Props map[string]any

	// Source is set when Kind == DetailsRemote.
	Source string
}

// Device is an immutable, point-in-time snapshot of a BLE peer, re-derived
// before each connection attempt rather than mutated in place.
type Device struct {
	Address Address
	Name    string
	Details Details
	RSSI    int16
}

// rssiForComparison returns the RSSI to beat when comparing this device
// against a sibling path: the properties-sourced RSSI takes precedence
// over the value cached on the Device itself.
func (d Device) rssiForComparison() int16 {
	if d.Details.Kind == DetailsBlueZ && d.Details.Props != nil {
		if v, ok := d.Details.Props["RSSI"]; ok {
			if rssi, ok := coerceRSSI(v); ok && rssi != 0 {
				return rssi
			}
		}
	}
	if d.RSSI != 0 {
		return d.RSSI
	}
	return NoRSSI
}

func coerceRSSI(v any) (int16, bool) {
	switch n := v.(type) {
	case int16:
		return n, true
	case int32:
		return int16(n), true
	case int64:
		return int16(n), true
	case int:
		return int16(n), true
	default:
		return 0, false
	}
}

// Path returns the BlueZ object path for the device, if it has one.
func (d Device) Path() (Path, bool) {
	if d.Details.Kind != DetailsBlueZ || d.Details.Path == "" {
		return "", false
	}
	return d.Details.Path, true
}

// Changed reports whether new is a sufficiently different device from d
// that any bound GATT client must be rebuilt: the address changed, or
// both devices carry BlueZ paths and those paths differ.
func (d Device) Changed(new Device) bool {
	if d.Address != new.Address {
		return true
	}
	dp, dok := d.Path()
	np, nok := new.Path()
	return dok && nok && dp != np
}

// BLEDeviceHasChanged reports whether new is a sufficiently different
// device from original that a GATT client bound to original must be
// discarded and rebuilt (§4.F, §10), rather than reused across a retry.
func BLEDeviceHasChanged(original, new Device) bool {
	return original.Changed(new)
}

// Description renders a human-readable device identifier for error
// messages and logs: "<address> - <name>" when the name differs from
// the address, optionally suffixed with the BlueZ path prefix or the
// remote source tag.
func (d Device) Description() string {
	base := string(d.Address)
	if d.Name != "" && d.Name != string(d.Address) {
		base = string(d.Address) + " - " + d.Name
	}
	switch d.Details.Kind {
	case DetailsBlueZ:
		p := string(d.Details.Path)
		if len(p) > 15 {
			p = p[:15]
		}
		return base + " -> " + p
	case DetailsRemote:
		return base + " -> " + d.Details.Source
	default:
		return base
	}
}

// WatcherHandle is an opaque token identifying a registered device
// watcher. Ownership stays with whichever DeviceView issued it; it is
// never meaningful to compare across views.
type WatcherHandle uuid.UUID

func newWatcherHandle() WatcherHandle {
	return WatcherHandle(uuid.New())
}

// DeviceView is a read-only abstraction over a platform's BLE object
// bus. Implementations must be safe for concurrent use; AllocateSlot and
// friends call it between every suspension point rather than caching.
type DeviceView interface {
	// Properties returns the full properties snapshot keyed by object
	// path then interface name then property key. It returns ErrNoBus
	// if the platform bus could not be reached.
	Properties(ctx context.Context) (map[Path]map[string]map[string]any, error)

	// IsConnected reports whether the device at path currently has
	// Connected=true, per the last known properties snapshot.
	IsConnected(path Path) bool

	// AddDeviceWatcher installs a watcher for the given path. The
	// onConnectedChanged callback fires with the new Connected value
	// whenever a PropertiesChanged-equivalent signal carries it; the
	// onCharChanged callback fires on characteristic value changes.
	// Either callback may be nil.
	AddDeviceWatcher(path Path, onConnectedChanged func(connected bool), onCharChanged func()) WatcherHandle

	// RemoveDeviceWatcher tears down a previously installed watcher.
	RemoveDeviceWatcher(handle WatcherHandle)

	// WaitForCondition blocks until the property at path reaches want,
	// or ctx is done. It returns ErrNoBus immediately if there is no
	// bus, and the context error on cancellation/timeout.
	WaitForCondition(ctx context.Context, path Path, key string, want any) error
}

// Disconnector issues a platform-native disconnect directive for a path.
type Disconnector interface {
	Disconnect(ctx context.Context, path Path) error
}

// GATTClient is the narrow contract the retry engine requires from a
// concrete GATT backend. Implementations are produced by a ClientFactory
// bound to a specific Device for the lifetime of a connection attempt
// sequence.
type GATTClient interface {
	// Connect attempts to establish the GATT connection within timeout.
	// useCache hints that the backend may reuse a previously discovered
	// service table instead of performing full discovery.
	Connect(ctx context.Context, timeout time.Duration, useCache bool) error

	// Disconnect tears down the connection, if any.
	Disconnect(ctx context.Context) error

	// SetDisconnectedCallback installs fn to be invoked when the
	// platform reports an unsolicited disconnect.
	SetDisconnectedCallback(fn func())
}

// CacheClearer is optionally implemented by a GATTClient that supports
// discarding a cached service table, e.g. after a services-changed
// indication from the peer.
type CacheClearer interface {
	ClearCache(ctx context.Context) error
}

// ServiceCollectionAccessor is optionally implemented by a cached
// service collection to expose the object paths it covers, so the retry
// engine can validate cache freshness against the current device view
// (§4.F.1).
type ServiceCollectionAccessor interface {
	ServicePaths() []Path
}

// ClientFactory builds a new GATTClient bound to device. disconnected is
// the caller-supplied disconnect callback to wire through;
// isRetryClient indicates this construction happened inside a retry
// loop rather than on the caller's first attempt.
type ClientFactory func(device Device, disconnected func(), isRetryClient bool) GATTClient

// Change identifies the direction of an AllocationChangeEvent.
type Change int

const (
	// Allocated means a slot was newly held for a path.
	Allocated Change = iota
	// Released means a previously held slot was freed.
	Released
)

func (c Change) String() string {
	if c == Allocated {
		return "allocated"
	}
	return "released"
}

// AllocationChangeEvent describes a single slot allocation transition,
// delivered synchronously to every subscribed listener in emission
// order.
type AllocationChangeEvent struct {
	Change  Change
	Path    Path
	Adapter string
	Address Address
}

// Counters tracks the outcome of each attempt within a single
// EstablishConnection call.
type Counters struct {
	Timeouts        int
	ConnectErrors   int
	TransientErrors int
	Attempt         int
}

// MaxTransientErrors is the default cap on TransientErrors before a
// connection attempt sequence gives up regardless of MaxAttempts.
const MaxTransientErrors = 9

// DefaultMaxAttempts is the default cap on Timeouts+ConnectErrors.
const DefaultMaxAttempts = 4

// Terminal reports whether the counters have reached the terminal
// condition for the given attempt cap.
func (c Counters) Terminal(maxAttempts int) bool {
	return c.Timeouts+c.ConnectErrors >= maxAttempts || c.TransientErrors >= MaxTransientErrors
}

// Options configures EstablishConnection. All fields are optional; the
// zero value selects the documented defaults.
type Options struct {
	// DisconnectedCallback is wired into every client this call
	// produces.
	DisconnectedCallback func()

	// MaxAttempts caps Timeouts+ConnectErrors. Zero selects
	// DefaultMaxAttempts.
	MaxAttempts int

	// CachedServices, if non-nil, hints that service discovery may be
	// skipped on first success provided the cache still validates
	// against the current device view (§4.F.1).
	CachedServices ServiceCollectionAccessor

	// UseServicesCache allows the backend's own cache to be used on
	// connect even without CachedServices. A nil pointer selects the
	// default, true; point it at false to disable the cache.
	UseServicesCache *bool

	// BLEDeviceCallback, if set, is invoked at the start of every
	// attempt to obtain a fresh device instead of reusing the previous
	// one.
	BLEDeviceCallback func() Device
}

// withDefaults returns a copy of opts with zero-valued fields replaced
// by their documented defaults.
func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.UseServicesCache == nil {
		t := true
		o.UseServicesCache = &t
	}
	return o
}
