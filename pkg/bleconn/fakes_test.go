package bleconn

import (
	"context"
	"sync"
	"time"
)

// fakeView is a minimal in-memory DeviceView for tests: callers seed
// Props directly and fakeView serves Properties/IsConnected/
// WaitForCondition/watchers off that map.
type fakeView struct {
	mu       sync.Mutex
	props    map[Path]map[string]map[string]any
	watchers map[Path]map[WatcherHandle]func(bool)
	err      error
}

func newFakeView() *fakeView {
	return &fakeView{
		props:    make(map[Path]map[string]map[string]any),
		watchers: make(map[Path]map[WatcherHandle]func(bool)),
	}
}

func (f *fakeView) setDevice1(path Path, props map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.props[path] == nil {
		f.props[path] = make(map[string]map[string]any)
	}
	f.props[path][deviceInterface] = props
}

func (f *fakeView) setConnected(path Path, connected bool) {
	f.mu.Lock()
	if f.props[path] != nil && f.props[path][deviceInterface] != nil {
		f.props[path][deviceInterface]["Connected"] = connected
	}
	watchers := make([]func(bool), 0, len(f.watchers[path]))
	for _, w := range f.watchers[path] {
		watchers = append(watchers, w)
	}
	f.mu.Unlock()

	for _, w := range watchers {
		w(connected)
	}
}

func (f *fakeView) Properties(ctx context.Context) (map[Path]map[string]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[Path]map[string]map[string]any, len(f.props))
	for p, ifaces := range f.props {
		copied := make(map[string]map[string]any, len(ifaces))
		for iface, kv := range ifaces {
			kvCopy := make(map[string]any, len(kv))
			for k, v := range kv {
				kvCopy[k] = v
			}
			copied[iface] = kvCopy
		}
		out[p] = copied
	}
	return out, nil
}

func (f *fakeView) IsConnected(path Path) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	connected, _ := f.props[path][deviceInterface]["Connected"].(bool)
	return connected
}

func (f *fakeView) AddDeviceWatcher(path Path, onConnectedChanged func(bool), onCharChanged func()) WatcherHandle {
	handle := newWatcherHandle()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchers[path] == nil {
		f.watchers[path] = make(map[WatcherHandle]func(bool))
	}
	f.watchers[path][handle] = onConnectedChanged
	return handle
}

func (f *fakeView) RemoveDeviceWatcher(handle WatcherHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for path, handlers := range f.watchers {
		delete(handlers, handle)
		if len(handlers) == 0 {
			delete(f.watchers, path)
		}
	}
}

func (f *fakeView) WaitForCondition(ctx context.Context, path Path, key string, want any) error {
	f.mu.Lock()
	ifaces, ok := f.props[path]
	if !ok {
		f.mu.Unlock()
		return errPathGone
	}
	if val, ok := ifaces[deviceInterface][key]; ok && val == want {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	done := make(chan struct{})
	handle := f.AddDeviceWatcher(path, func(connected bool) {
		if key == "Connected" && connected == want {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	}, nil)
	defer f.RemoveDeviceWatcher(handle)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fakeDisconnector records every path it was asked to disconnect. If
// view is set, it also flips the path's Connected property to false, so
// a caller awaiting WaitForCondition sees the same confirmation a real
// disconnect would eventually produce.
type fakeDisconnector struct {
	mu           sync.Mutex
	disconnected []Path
	err          error
	view         *fakeView
}

func (f *fakeDisconnector) Disconnect(ctx context.Context, path Path) error {
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return f.err
	}
	f.disconnected = append(f.disconnected, path)
	view := f.view
	f.mu.Unlock()

	if view != nil {
		view.setConnected(path, false)
	}
	return nil
}

// fakeClient is a scripted bleconn.GATTClient used to drive
// EstablishConnection through specific attempt sequences.
type fakeClient struct {
	connectErrs []error
	connectN    int
	disconnectN int
}

func (c *fakeClient) Connect(ctx context.Context, timeout time.Duration, useCache bool) error {
	idx := c.connectN
	c.connectN++
	if idx < len(c.connectErrs) {
		return c.connectErrs[idx]
	}
	return nil
}

func (c *fakeClient) Disconnect(ctx context.Context) error {
	c.disconnectN++
	return nil
}

func (c *fakeClient) SetDisconnectedCallback(func()) {}
