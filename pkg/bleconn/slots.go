package bleconn

import (
	"context"
	"fmt"
	"sync"

	"github.com/commatea/comx-ble/pkg/logger"
)

// AdapterSlots tracks the configured and currently free connection slot
// count for one adapter (§3).
type AdapterSlots struct {
	Adapter string
	Max     int
	Free    int
}

// slotListener is a registered AllocationChangeEvent subscriber.
type slotListener struct {
	id int
	fn func(AllocationChangeEvent)
}

// SlotManager tracks per-adapter connection slot accounting and the set
// of paths currently holding a slot, mirroring BleakSlotManager from
// bleak-retry-connector's bluez.py (§4.D). It is safe for concurrent use.
type SlotManager struct {
	mu        sync.Mutex
	adapters  map[string]*AdapterSlots
	held      map[Path]string // path -> adapter holding its slot
	listeners []slotListener
	nextID    int
	view      DeviceView
	watchers  map[Path]WatcherHandle
}

// NewSlotManager builds a SlotManager. view is used to watch Connected
// transitions on allocated paths so a slot is automatically released when
// the underlying connection drops without going through ReleaseSlot.
func NewSlotManager(view DeviceView) *SlotManager {
	return &SlotManager{
		adapters: make(map[string]*AdapterSlots),
		held:     make(map[Path]string),
		view:     view,
		watchers: make(map[Path]WatcherHandle),
	}
}

// RegisterAdapter records max available slots for adapter. Calling it
// again for an already-registered adapter resets Free to max, per
// invariant (i) of §4.D: Free must never exceed Max.
//
// It then reconciles against the view's current properties snapshot:
// any path already under this adapter with Connected=true is
// pre-allocated and watched, even if doing so drives Free below zero
// (invariant (ii)) — the platform, not this manager, already holds
// that slot.
func (m *SlotManager) RegisterAdapter(adapter string, max int) {
	m.mu.Lock()
	m.adapters[adapter] = &AdapterSlots{Adapter: adapter, Max: max, Free: max}
	view := m.view
	m.mu.Unlock()

	if view == nil {
		return
	}
	props, err := view.Properties(context.Background())
	if err != nil {
		return
	}
	for path, ifaces := range props {
		if AdapterOfPath(path) != adapter {
			continue
		}
		dev, ok := ifaces[deviceInterface]
		if !ok {
			continue
		}
		if connected, _ := dev["Connected"].(bool); connected {
			m.preallocate(path, Address(stringProp(dev, "Address")))
		}
	}
}

// RemoveAdapter forgets an adapter entirely. Any paths it was holding
// slots for are released without emitting events, since the adapter
// itself is gone.
func (m *SlotManager) RemoveAdapter(adapter string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.adapters, adapter)
	for path, held := range m.held {
		if held == adapter {
			delete(m.held, path)
			if handle, ok := m.watchers[path]; ok {
				if m.view != nil {
					m.view.RemoveDeviceWatcher(handle)
				}
				delete(m.watchers, path)
			}
		}
	}
}

// AllocateSlot reserves one free slot on the adapter owning path for
// address, returning false if the adapter is unregistered or already at
// zero free slots (invariant (ii)). On success it installs a watcher that
// auto-releases the slot when path's Connected property goes false.
func (m *SlotManager) AllocateSlot(path Path, address Address) bool {
	adapter := AdapterOfPath(path)

	m.mu.Lock()
	if _, already := m.held[path]; already {
		m.mu.Unlock()
		return true
	}
	slots, ok := m.adapters[adapter]
	if !ok || slots.Free <= 0 {
		m.mu.Unlock()
		return false
	}
	slots.Free--
	m.held[path] = adapter
	m.mu.Unlock()

	m.commitAllocation(path, adapter, address)
	return true
}

// preallocate marks path as already holding a slot on adapter
// registration, bypassing the Free<=0 capacity check that AllocateSlot
// enforces: a reconciliation scan may observe more pre-existing
// Connected=true devices than the adapter's configured slot count
// (invariant (ii) of §4.D).
func (m *SlotManager) preallocate(path Path, address Address) {
	adapter := AdapterOfPath(path)

	m.mu.Lock()
	if _, already := m.held[path]; already {
		m.mu.Unlock()
		return
	}
	if slots, ok := m.adapters[adapter]; ok {
		slots.Free--
	}
	m.held[path] = adapter
	m.mu.Unlock()

	m.commitAllocation(path, adapter, address)
}

// commitAllocation installs the auto-release watcher for a newly held
// path and emits the Allocated event. Shared by AllocateSlot and
// preallocate, which differ only in how they account for the slot.
func (m *SlotManager) commitAllocation(path Path, adapter string, address Address) {
	view := m.view
	if view != nil {
		handle := view.AddDeviceWatcher(path, func(connected bool) {
			if !connected {
				m.ReleaseSlot(path, address)
			}
		}, nil)
		m.mu.Lock()
		if _, stillHeld := m.held[path]; stillHeld {
			m.watchers[path] = handle
		} else {
			view.RemoveDeviceWatcher(handle)
		}
		m.mu.Unlock()
	}

	m.emit(AllocationChangeEvent{Change: Allocated, Path: path, Adapter: adapter, Address: address})
}

// ReleaseSlot frees a previously allocated slot. It is a no-op if path
// holds no slot (invariant (iii): Free never exceeds Max, so releasing
// twice cannot over-free), or if the view still reports path as
// Connected: the platform, not the caller, owns that allocation until
// it actually disconnects (§4.D, original release_slot).
func (m *SlotManager) ReleaseSlot(path Path, address Address) {
	m.mu.Lock()
	adapter, held := m.held[path]
	if !held {
		m.mu.Unlock()
		return
	}
	view := m.view
	m.mu.Unlock()

	if view != nil && view.IsConnected(path) {
		return
	}

	m.mu.Lock()
	adapter, held = m.held[path]
	if !held {
		m.mu.Unlock()
		return
	}
	delete(m.held, path)
	if slots, ok := m.adapters[adapter]; ok && slots.Free < slots.Max {
		slots.Free++
	}
	handle, hadWatcher := m.watchers[path]
	delete(m.watchers, path)
	m.mu.Unlock()

	if hadWatcher && view != nil {
		view.RemoveDeviceWatcher(handle)
	}

	m.emit(AllocationChangeEvent{Change: Released, Path: path, Adapter: adapter, Address: address})
}

// RegisterAllocationCallback subscribes fn to every future
// AllocationChangeEvent, delivered synchronously in emission order. It
// returns a cancel function that unsubscribes fn. A panicking fn is
// recovered so it cannot disrupt other listeners or the caller of
// AllocateSlot/ReleaseSlot (§4.D).
func (m *SlotManager) RegisterAllocationCallback(fn func(AllocationChangeEvent)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, slotListener{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

func (m *SlotManager) emit(event AllocationChangeEvent) {
	m.mu.Lock()
	listeners := make([]slotListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					// listener failures must not disrupt the manager (§4.D)
					logger.Global().Error("bleconn: allocation listener panicked", "panic", r)
				}
			}()
			l.fn(event)
		}()
	}
}

// Diagnostics returns a snapshot of every registered adapter's slot
// accounting, for status reporting.
func (m *SlotManager) Diagnostics() map[string]AdapterSlots {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]AdapterSlots, len(m.adapters))
	for adapter, slots := range m.adapters {
		out[adapter] = *slots
	}
	return out
}

// ErrAdapterUnknown describes an adapter that was never registered. No
// SlotManager method returns it: AllocateSlot reports an unregistered
// adapter by returning false.
var ErrAdapterUnknown = fmt.Errorf("bleconn: adapter not registered")
