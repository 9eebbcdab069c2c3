package bleconn

import "time"

// Timeout constants from §5. BleakSafetyTimeout must strictly exceed
// BleakTimeout (30s > 20s below); no test asserts this.
const (
	// BleakTimeout is the inner per-attempt connect timeout passed to
	// the GATT client.
	BleakTimeout = 20 * time.Second

	// BleakSafetyTimeout is the outer ceiling wrapping the client's own
	// timeout, in case a backend hangs past its nominal deadline.
	BleakSafetyTimeout = 30 * time.Second

	// DisconnectTimeout bounds how long the stale reaper and the
	// disconnect-wait helper will wait for a single disconnect.
	DisconnectTimeout = 5 * time.Second

	// DBusConnectTimeout bounds how long the device view will wait to
	// reach the platform object bus before latching "no bus".
	DBusConnectTimeout = 8500 * time.Millisecond

	// ReappearWaitInterval is the poll period used while waiting for a
	// device to reappear on the bus.
	ReappearWaitInterval = 250 * time.Millisecond

	// reappearWaitBound is how long the terminal translator (§7) waits
	// for a device to reappear before concluding a DeviceNotFoundError
	// was a true disappearance rather than a slot exhaustion.
	reappearWaitBound = 2 * time.Second
)
