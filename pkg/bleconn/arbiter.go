package bleconn

import (
	"context"
	"errors"
)

// deviceFromProperties builds a Device value from a BlueZ Device1
// property set already read off the view.
func deviceFromProperties(path Path, props map[string]any) Device {
	address, _ := ParseAddress(stringProp(props, "Address"))
	rssi := NoRSSI
	if v, ok := coerceRSSI(props["RSSI"]); ok && v != 0 {
		rssi = v
	}
	return Device{
		Address: address,
		Name:    stringProp(props, "Alias"),
		RSSI:    rssi,
		Details: Details{Kind: DetailsBlueZ, Path: path, Props: props},
	}
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

// getBluezDevice implements the shared best-path search used by both
// Freshen (§4.C) and GetDevice: probe the sibling paths of path and
// return either nil (use path as-is) or a freshly derived Device for a
// better path, following the precedence rules of §4.C steps 1-4.
func getBluezDevice(ctx context.Context, view DeviceView, path Path, rssiHint int16) (*Device, error) {
	if view == nil {
		return nil, nil
	}

	props, err := view.Properties(ctx)
	if err != nil {
		if errors.Is(err, ErrNoBus) {
			return nil, nil
		}
		return nil, err
	}

	rssiToBeat := rssiHint
	if rssiToBeat == 0 {
		rssiToBeat = NoRSSI
	}
	if _, ok := props[path][deviceInterface]; !ok {
		// device has disappeared; take anything over the current path
		rssiToBeat = NoRSSI
	}

	bestPath := path
	for _, sibling := range siblingPaths(path) {
		devProps, ok := props[sibling][deviceInterface]
		if !ok {
			continue
		}

		if connected, _ := devProps["Connected"].(bool); connected {
			if sibling == path {
				// already connected on the path we were given
				return nil, nil
			}
			d := deviceFromProperties(sibling, devProps)
			return &d, nil
		}

		if sibling == path {
			continue
		}

		siblingRSSI := NoRSSI
		if v, ok := coerceRSSI(devProps["RSSI"]); ok && v != 0 {
			siblingRSSI = v
		}
		if rssiToBeat != NoRSSI && siblingRSSI-RSSISwitchThreshold < rssiToBeat {
			continue
		}
		bestPath = sibling
		rssiToBeat = siblingRSSI
	}

	if bestPath == path {
		return nil, nil
	}
	d := deviceFromProperties(bestPath, props[bestPath][deviceInterface])
	return &d, nil
}

// Freshen implements §4.C: re-derive the best device handle for address
// before a connection attempt. A nil, nil return means the caller
// should keep using device as-is.
func Freshen(ctx context.Context, view DeviceView, device Device) (*Device, error) {
	path, ok := device.Path()
	if !ok {
		return nil, nil
	}
	return getBluezDevice(ctx, view, path, device.rssiForComparison())
}

// GetDevice derives a Device for address without a known adapter,
// picking the best-RSSI sibling path the same way Freshen would.
func GetDevice(ctx context.Context, view DeviceView, address Address) (*Device, error) {
	return getBluezDevice(ctx, view, AddressToPath(address, ""), NoRSSI)
}

// GetDeviceByAdapter constructs the deterministic path for address on
// adapter and returns the Device found there, without searching
// siblings (§4.C).
func GetDeviceByAdapter(ctx context.Context, view DeviceView, address Address, adapter string) (*Device, error) {
	if view == nil {
		return nil, nil
	}
	props, err := view.Properties(ctx)
	if err != nil {
		if errors.Is(err, ErrNoBus) {
			return nil, nil
		}
		return nil, err
	}
	path := AddressToPath(address, adapter)
	devProps, ok := props[path][deviceInterface]
	if !ok {
		return nil, nil
	}
	d := deviceFromProperties(path, devProps)
	return &d, nil
}

// GetConnectedDevices enumerates sibling paths of device's path that
// currently report Connected=true (§4.E's enumeration step).
func GetConnectedDevices(ctx context.Context, view DeviceView, device Device) ([]Device, error) {
	path, ok := device.Path()
	if !ok || view == nil {
		return nil, nil
	}
	props, err := view.Properties(ctx)
	if err != nil {
		if errors.Is(err, ErrNoBus) {
			return nil, nil
		}
		return nil, err
	}
	var connected []Device
	for _, sibling := range siblingPaths(path) {
		devProps, ok := props[sibling][deviceInterface]
		if !ok {
			continue
		}
		if c, _ := devProps["Connected"].(bool); c {
			connected = append(connected, deviceFromProperties(sibling, devProps))
		}
	}
	return connected, nil
}
