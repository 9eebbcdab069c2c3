package bleconn

import (
	"context"
	"strings"
)

// ClearCache discards a GATT client's cached service table, if it
// supports CacheClearer, and returns nil unconditionally otherwise: a
// backend that never cached anything has nothing to clear (§10,
// supplemented from bleak-retry-connector's clear_cache).
func ClearCache(ctx context.Context, client GATTClient) error {
	clearer, ok := client.(CacheClearer)
	if !ok {
		return nil
	}
	return clearer.ClearCache(ctx)
}

// cacheStillValid implements §4.F.1: a cached service collection may
// only be reused if every object path it covers is still present under
// device's current path in the device view. A nil cache, a nil view, or
// an accessor exposing no paths is treated as "nothing to validate".
func cacheStillValid(ctx context.Context, view DeviceView, device Device, cache ServiceCollectionAccessor) bool {
	if cache == nil || view == nil {
		return true
	}
	paths := cache.ServicePaths()
	if len(paths) == 0 {
		return true
	}

	props, err := view.Properties(ctx)
	if err != nil {
		// no bus to validate against: accept the cache rather than force
		// full rediscovery on every connect (§9 open question: accept
		// cached_services when the bus is unavailable).
		return true
	}
	devicePath, hasPath := device.Path()
	for _, p := range paths {
		if _, ok := props[p]; !ok {
			return false
		}
		if hasPath && p != devicePath && !strings.HasPrefix(string(p), string(devicePath)+"/") {
			return false
		}
	}
	return true
}
