package bleconn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/commatea/comx-ble/pkg/logger"
	"github.com/godbus/dbus/v5"
)

// ErrNoBus reports that the platform object bus could not be reached.
// NewBlueZView wraps it around the connection failure, and NullView
// returns it from Properties and WaitForCondition. The failure is not
// latched: every NewBlueZView call tries the bus again, and there is no
// reset entry point.
var ErrNoBus = errors.New("bleconn: platform object bus unavailable")

const bluezService = "org.bluez"
const deviceInterface = "org.bluez.Device1"

type watcherEntry struct {
	onConnectedChanged func(bool)
	onCharChanged      func()
}

type propertyWaiter struct {
	path Path
	key  string
	want any
	done chan struct{}
}

// BlueZView is the live DeviceView backed by the BlueZ object manager
// over the D-Bus system bus. It keeps a local snapshot of object
// properties current by subscribing to PropertiesChanged and
// InterfacesRemoved signals, matching the long-lived manager object the
// upstream Python implementation keeps (grounded on
// bleak-retry-connector's BlueZManager usage and on
// other_examples' mstroecker-LinuxPods / houneTeam-pible_go D-Bus call
// sites).
type BlueZView struct {
	conn *dbus.Conn
	log  *logger.Logger

	mu       sync.Mutex
	props    map[Path]map[string]map[string]any
	watchers map[Path]map[WatcherHandle]watcherEntry
	waiters  []*propertyWaiter

	sigChan chan *dbus.Signal
	closed  chan struct{}
}

// NewBlueZView connects to the system bus, loads the current managed
// objects, and starts watching for property changes. It returns
// ErrNoBus (wrapped with the underlying cause) if the bus cannot be
// reached within DBusConnectTimeout.
func NewBlueZView(ctx context.Context, log *logger.Logger) (*BlueZView, error) {
	ctx, cancel := context.WithTimeout(ctx, DBusConnectTimeout)
	defer cancel()

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoBus, err)
	}

	v := &BlueZView{
		conn:     conn,
		log:      log,
		props:    make(map[Path]map[string]map[string]any),
		watchers: make(map[Path]map[WatcherHandle]watcherEntry),
		sigChan:  make(chan *dbus.Signal, 64),
		closed:   make(chan struct{}),
	}

	if err := v.loadManagedObjects(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrNoBus, err)
	}
	if err := v.subscribeSignals(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrNoBus, err)
	}

	conn.Signal(v.sigChan)
	go v.dispatchLoop()

	return v, nil
}

func (v *BlueZView) loadManagedObjects(ctx context.Context) error {
	obj := v.conn.Object(bluezService, dbus.ObjectPath("/"))
	call := obj.CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0)
	if call.Err != nil {
		return call.Err
	}
	var managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := call.Store(&managed); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for path, ifaces := range managed {
		v.props[Path(path)] = convertIfaces(ifaces)
	}
	return nil
}

func convertIfaces(ifaces map[string]map[string]dbus.Variant) map[string]map[string]any {
	out := make(map[string]map[string]any, len(ifaces))
	for iface, props := range ifaces {
		converted := make(map[string]any, len(props))
		for k, variant := range props {
			converted[k] = variant.Value()
		}
		out[iface] = converted
	}
	return out
}

func (v *BlueZView) subscribeSignals() error {
	rules := []string{
		"type='signal',interface='org.freedesktop.DBus.Properties',member='PropertiesChanged',path_namespace='/org/bluez'",
		"type='signal',sender='org.bluez',interface='org.freedesktop.DBus.ObjectManager',member='InterfacesRemoved'",
		"type='signal',sender='org.bluez',interface='org.freedesktop.DBus.ObjectManager',member='InterfacesAdded'",
	}
	for _, rule := range rules {
		if call := v.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
			return call.Err
		}
	}
	return nil
}

func (v *BlueZView) dispatchLoop() {
	for {
		select {
		case sig, ok := <-v.sigChan:
			if !ok {
				return
			}
			v.handleSignal(sig)
		case <-v.closed:
			return
		}
	}
}

func (v *BlueZView) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case "org.freedesktop.DBus.Properties.PropertiesChanged":
		v.handlePropertiesChanged(Path(sig.Path), sig.Body)
	case "org.freedesktop.DBus.ObjectManager.InterfacesRemoved":
		v.handleInterfacesRemoved(sig.Body)
	case "org.freedesktop.DBus.ObjectManager.InterfacesAdded":
		v.handleInterfacesAdded(sig.Body)
	}
}

func (v *BlueZView) handlePropertiesChanged(path Path, body []interface{}) {
	if len(body) < 2 {
		return
	}
	iface, ok := body[0].(string)
	if !ok {
		return
	}
	changed, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	v.mu.Lock()
	if v.props[path] == nil {
		v.props[path] = make(map[string]map[string]any)
	}
	if v.props[path][iface] == nil {
		v.props[path][iface] = make(map[string]any)
	}
	for k, variant := range changed {
		v.props[path][iface][k] = variant.Value()
	}

	var fireConnected *bool
	if iface == deviceInterface {
		if raw, ok := changed["Connected"]; ok {
			if b, ok := raw.Value().(bool); ok {
				fireConnected = &b
			}
		}
	}
	watchers := make([]watcherEntry, 0, len(v.watchers[path]))
	for _, w := range v.watchers[path] {
		watchers = append(watchers, w)
	}

	remaining := v.waiters[:0]
	var satisfied []*propertyWaiter
	for _, w := range v.waiters {
		if w.path == path {
			if val, ok := v.props[path][iface][w.key]; ok && val == w.want {
				satisfied = append(satisfied, w)
				continue
			}
		}
		remaining = append(remaining, w)
	}
	v.waiters = remaining
	v.mu.Unlock()

	if fireConnected != nil {
		for _, w := range watchers {
			if w.onConnectedChanged != nil {
				safeCall(v.log, func() { w.onConnectedChanged(*fireConnected) })
			}
		}
	}
	for _, w := range satisfied {
		close(w.done)
	}
}

func (v *BlueZView) handleInterfacesRemoved(body []interface{}) {
	if len(body) < 1 {
		return
	}
	path, ok := body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	v.mu.Lock()
	delete(v.props, Path(path))
	v.mu.Unlock()
}

func (v *BlueZView) handleInterfacesAdded(body []interface{}) {
	if len(body) < 2 {
		return
	}
	path, ok := body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	ifaces, ok := body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return
	}
	v.mu.Lock()
	v.props[Path(path)] = convertIfaces(ifaces)
	v.mu.Unlock()
}

// safeCall recovers a panicking listener, matching §4.D/§7's
// requirement that listener failures never disrupt the caller.
func safeCall(log *logger.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil && log != nil {
			log.Error("bleconn: watcher callback panicked", "panic", r)
		}
	}()
	fn()
}

// Properties implements DeviceView.
func (v *BlueZView) Properties(ctx context.Context) (map[Path]map[string]map[string]any, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[Path]map[string]map[string]any, len(v.props))
	for path, ifaces := range v.props {
		ifacesCopy := make(map[string]map[string]any, len(ifaces))
		for iface, kv := range ifaces {
			kvCopy := make(map[string]any, len(kv))
			for k, val := range kv {
				kvCopy[k] = val
			}
			ifacesCopy[iface] = kvCopy
		}
		out[path] = ifacesCopy
	}
	return out, nil
}

// IsConnected implements DeviceView.
func (v *BlueZView) IsConnected(path Path) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	dev, ok := v.props[path][deviceInterface]
	if !ok {
		return false
	}
	connected, _ := dev["Connected"].(bool)
	return connected
}

// AddDeviceWatcher implements DeviceView.
func (v *BlueZView) AddDeviceWatcher(path Path, onConnectedChanged func(bool), onCharChanged func()) WatcherHandle {
	handle := newWatcherHandle()
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.watchers[path] == nil {
		v.watchers[path] = make(map[WatcherHandle]watcherEntry)
	}
	v.watchers[path][handle] = watcherEntry{onConnectedChanged: onConnectedChanged, onCharChanged: onCharChanged}
	return handle
}

// RemoveDeviceWatcher implements DeviceView.
func (v *BlueZView) RemoveDeviceWatcher(handle WatcherHandle) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for path, handlers := range v.watchers {
		if _, ok := handlers[handle]; ok {
			delete(handlers, handle)
			if len(handlers) == 0 {
				delete(v.watchers, path)
			}
			return
		}
	}
}

// WaitForCondition implements DeviceView. It blocks until the property
// at path/key equals want or ctx is done. If path is absent from the
// view when the call starts, it returns errPathGone at once (the
// KeyError-style miss behind §4.G's "path disappears" branch). A path
// removed while the wait is in progress does not end the wait; only
// ctx does.
func (v *BlueZView) WaitForCondition(ctx context.Context, path Path, key string, want any) error {
	v.mu.Lock()
	ifaces, ok := v.props[path]
	if !ok {
		v.mu.Unlock()
		return errPathGone
	}
	if val, ok := ifaces[deviceInterface][key]; ok && val == want {
		v.mu.Unlock()
		return nil
	}
	w := &propertyWaiter{path: path, key: key, want: want, done: make(chan struct{})}
	v.waiters = append(v.waiters, w)
	v.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		v.removeWaiter(w)
		return ctx.Err()
	}
}

func (v *BlueZView) removeWaiter(target *propertyWaiter) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, w := range v.waiters {
		if w == target {
			v.waiters = append(v.waiters[:i], v.waiters[i+1:]...)
			return
		}
	}
}

// Conn returns the underlying system bus connection, so a
// BlueZDisconnector can be built to share it.
func (v *BlueZView) Conn() *dbus.Conn { return v.conn }

// Close tears down the signal subscription and underlying bus
// connection.
func (v *BlueZView) Close() error {
	close(v.closed)
	return v.conn.Close()
}

// errPathGone signals that a watched path is absent from the view
// entirely, as opposed to merely not yet matching the wanted value.
var errPathGone = errors.New("bleconn: path removed from view")

// NullView is the permissive stub DeviceView used on hosts without a
// BlueZ-style object bus (§1 Non-goals: degrade to a permissive stub).
type NullView struct{}

func (NullView) Properties(context.Context) (map[Path]map[string]map[string]any, error) {
	return nil, ErrNoBus
}
func (NullView) IsConnected(Path) bool { return false }
func (NullView) AddDeviceWatcher(Path, func(bool), func()) WatcherHandle {
	return newWatcherHandle()
}
func (NullView) RemoveDeviceWatcher(WatcherHandle) {}
func (NullView) WaitForCondition(context.Context, Path, string, any) error {
	return ErrNoBus
}
