// Package bleconn implements a Bluetooth Low Energy connection resilience
// layer: failure classification, adapter/path arbitration, per-adapter slot
// accounting, stale-connection reaping, and a retrying connect orchestrator
// that sits in front of a narrow GATT client interface.
package bleconn

import (
	"fmt"
	"strings"
)

// Address is a 48-bit BLE device address in its canonical upper-case
// colon-separated form, e.g. "AA:BB:CC:DD:EE:FF".
type Address string

// NoRSSI is the sentinel RSSI value used when no reading is available.
const NoRSSI int16 = -127

// RSSISwitchThreshold is the hysteresis margin (in dBm) a sibling adapter
// path must beat the current best by before the arbiter will switch to it.
const RSSISwitchThreshold = 5

// ParseAddress canonicalizes a MAC-style address string. It accepts
// colon or dash separated hex octets in any case and returns the
// canonical upper-case colon-separated form.
func ParseAddress(s string) (Address, error) {
	s = strings.ReplaceAll(s, "-", ":")
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return "", fmt.Errorf("bleconn: %q is not a valid 6-octet address", s)
	}
	octets := make([]string, 6)
	for i, p := range parts {
		if len(p) != 2 {
			return "", fmt.Errorf("bleconn: %q is not a valid 6-octet address", s)
		}
		octets[i] = strings.ToUpper(p)
		for _, c := range octets[i] {
			if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')) {
				return "", fmt.Errorf("bleconn: %q is not a valid 6-octet address", s)
			}
		}
	}
	return Address(strings.Join(octets, ":")), nil
}

// String returns the canonical form of the address.
func (a Address) String() string {
	return string(a)
}

// Path is a platform object-bus path identifying a device on a specific
// adapter, e.g. "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF" on BlueZ hosts.
type Path string

// maxAdapterIndex bounds the sibling adapters we probe (hci0..hci8).
const maxAdapterIndex = 8

// AddressToPath deterministically builds the BlueZ object path for an
// address on the given adapter. If adapter is empty, the placeholder
// adapter "hciX" is used, matching the upstream convention for paths
// that are not yet bound to a concrete adapter.
func AddressToPath(address Address, adapter string) Path {
	if adapter == "" {
		adapter = "hciX"
	}
	suffix := strings.ReplaceAll(string(address), ":", "_")
	return Path(fmt.Sprintf("/org/bluez/%s/dev_%s", adapter, suffix))
}

// AdapterOfPath extracts the adapter component ("hci0", ...) from a
// device path of the form "/org/bluez/hci<N>/dev_...".
func AdapterOfPath(path Path) string {
	parts := strings.Split(string(path), "/")
	if len(parts) < 4 {
		return ""
	}
	return parts[3]
}

// AddressOfPath extracts and canonicalizes the address embedded in a
// device path of the form "/org/bluez/hci<N>/dev_AA_BB_CC_DD_EE_FF".
func AddressOfPath(path Path) (Address, error) {
	idx := strings.Index(string(path), "/dev_")
	if idx < 0 {
		return "", fmt.Errorf("bleconn: %q has no device suffix", path)
	}
	raw := string(path)[idx+len("/dev_"):]
	return ParseAddress(strings.ReplaceAll(raw, "_", ":"))
}

// siblingPaths yields the possible sibling paths of path across adapters
// hci0..hci8. The transform splices the fixed-width adapter digit in
// place, which only works because BlueZ adapter names are single digits
// in this range; it mirrors the deterministic path convention in §6.
func siblingPaths(path Path) []Path {
	s := string(path)
	if len(s) < 15 {
		return nil
	}
	siblings := make([]Path, 0, maxAdapterIndex+1)
	for i := 0; i <= maxAdapterIndex; i++ {
		siblings = append(siblings, Path(fmt.Sprintf("%s%d%s", s[0:14], i, s[15:])))
	}
	return siblings
}
