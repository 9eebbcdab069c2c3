package bleconn

import "testing"

func TestSlotManagerAllocateReleaseInvariants(t *testing.T) {
	m := NewSlotManager(nil)
	m.RegisterAdapter("hci0", 2)

	path1 := Path("/org/bluez/hci0/dev_AA_AA_AA_AA_AA_AA")
	path2 := Path("/org/bluez/hci0/dev_BB_BB_BB_BB_BB_BB")
	path3 := Path("/org/bluez/hci0/dev_CC_CC_CC_CC_CC_CC")

	if !m.AllocateSlot(path1, "AA:AA:AA:AA:AA:AA") {
		t.Fatal("expected first allocation to succeed")
	}
	if !m.AllocateSlot(path2, "BB:BB:BB:BB:BB:BB") {
		t.Fatal("expected second allocation to succeed")
	}
	if m.AllocateSlot(path3, "CC:CC:CC:CC:CC:CC") {
		t.Fatal("expected third allocation to fail: adapter only has 2 slots")
	}

	diag := m.Diagnostics()["hci0"]
	if diag.Free != 0 {
		t.Fatalf("Free = %d, want 0", diag.Free)
	}

	m.ReleaseSlot(path1, "AA:AA:AA:AA:AA:AA")
	diag = m.Diagnostics()["hci0"]
	if diag.Free != 1 {
		t.Fatalf("Free after release = %d, want 1", diag.Free)
	}

	// releasing an unheld path must not over-free (invariant iii)
	m.ReleaseSlot(path1, "AA:AA:AA:AA:AA:AA")
	diag = m.Diagnostics()["hci0"]
	if diag.Free != 1 {
		t.Fatalf("Free after double release = %d, want 1 (must not exceed Max-held)", diag.Free)
	}

	if !m.AllocateSlot(path3, "CC:CC:CC:CC:CC:CC") {
		t.Fatal("expected allocation to succeed now that a slot freed up")
	}
}

func TestSlotManagerUnregisteredAdapterRejected(t *testing.T) {
	m := NewSlotManager(nil)
	if m.AllocateSlot("/org/bluez/hci9/dev_AA_AA_AA_AA_AA_AA", "AA:AA:AA:AA:AA:AA") {
		t.Fatal("expected allocation against an unregistered adapter to fail")
	}
}

func TestSlotManagerEmitsAllocationChangeEvents(t *testing.T) {
	m := NewSlotManager(nil)
	m.RegisterAdapter("hci0", 1)

	var events []AllocationChangeEvent
	cancel := m.RegisterAllocationCallback(func(e AllocationChangeEvent) {
		events = append(events, e)
	})
	defer cancel()

	path := Path("/org/bluez/hci0/dev_AA_AA_AA_AA_AA_AA")
	m.AllocateSlot(path, "AA:AA:AA:AA:AA:AA")
	m.ReleaseSlot(path, "AA:AA:AA:AA:AA:AA")

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Change != Allocated || events[1].Change != Released {
		t.Fatalf("events = %v, %v; want Allocated then Released", events[0].Change, events[1].Change)
	}
}

func TestSlotManagerPanickingListenerDoesNotDisruptOthers(t *testing.T) {
	m := NewSlotManager(nil)
	m.RegisterAdapter("hci0", 1)

	var secondFired bool
	m.RegisterAllocationCallback(func(AllocationChangeEvent) {
		panic("boom")
	})
	m.RegisterAllocationCallback(func(AllocationChangeEvent) {
		secondFired = true
	})

	m.AllocateSlot("/org/bluez/hci0/dev_AA_AA_AA_AA_AA_AA", "AA:AA:AA:AA:AA:AA")

	if !secondFired {
		t.Fatal("expected second listener to fire despite the first panicking")
	}
}

func TestSlotManagerAutoReleaseOnDisconnect(t *testing.T) {
	view := newFakeView()
	path := Path("/org/bluez/hci0/dev_AA_AA_AA_AA_AA_AA")
	view.setDevice1(path, map[string]any{"Connected": true})

	m := NewSlotManager(view)
	m.RegisterAdapter("hci0", 1)
	m.AllocateSlot(path, "AA:AA:AA:AA:AA:AA")

	if free := m.Diagnostics()["hci0"].Free; free != 0 {
		t.Fatalf("Free = %d, want 0 after allocation", free)
	}

	view.setConnected(path, false)

	if free := m.Diagnostics()["hci0"].Free; free != 1 {
		t.Fatalf("Free = %d, want 1 after the view reported disconnect", free)
	}
}
