package bleconn

import (
	"context"
	"testing"
)

type noCacheClient struct{ fakeClient }

type cacheClearingClient struct {
	fakeClient
	cleared bool
}

func (c *cacheClearingClient) ClearCache(context.Context) error {
	c.cleared = true
	return nil
}

func TestClearCacheNoopWhenUnsupported(t *testing.T) {
	c := &noCacheClient{}
	if err := ClearCache(context.Background(), c); err != nil {
		t.Fatalf("ClearCache() error = %v, want nil for a client without CacheClearer", err)
	}
}

func TestClearCacheDelegatesWhenSupported(t *testing.T) {
	c := &cacheClearingClient{}
	if err := ClearCache(context.Background(), c); err != nil {
		t.Fatalf("ClearCache() error = %v", err)
	}
	if !c.cleared {
		t.Fatal("ClearCache() did not call through to the client's ClearCache")
	}
}

type fakeServiceCollection struct{ paths []Path }

func (f fakeServiceCollection) ServicePaths() []Path { return f.paths }

func TestCacheStillValidWhenPathsPresent(t *testing.T) {
	view := newFakeView()
	path := AddressToPath("AA:BB:CC:DD:EE:FF", "hci0")
	view.setDevice1(path, map[string]any{"Connected": false})

	cache := fakeServiceCollection{paths: []Path{path}}
	if !cacheStillValid(context.Background(), view, deviceAt(path, -40), cache) {
		t.Fatal("cacheStillValid() = false, want true when every cached path is still present")
	}
}

func TestCacheInvalidWhenPathMissing(t *testing.T) {
	view := newFakeView()
	path := AddressToPath("AA:BB:CC:DD:EE:FF", "hci0")
	missing := AddressToPath("AA:BB:CC:DD:EE:FF", "hci1")

	cache := fakeServiceCollection{paths: []Path{missing}}
	if cacheStillValid(context.Background(), view, deviceAt(path, -40), cache) {
		t.Fatal("cacheStillValid() = true, want false when a cached path has disappeared")
	}
}

func TestCacheAcceptedWhenNoBus(t *testing.T) {
	view := newFakeView()
	view.err = ErrNoBus
	cache := fakeServiceCollection{paths: []Path{"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"}}

	if !cacheStillValid(context.Background(), view, deviceAt("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF", -40), cache) {
		t.Fatal("cacheStillValid() = false, want true (accept cache) when the bus is unavailable")
	}
}
