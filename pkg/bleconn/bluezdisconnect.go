package bleconn

import (
	"context"

	"github.com/godbus/dbus/v5"
)

// BlueZDisconnector issues org.bluez.Device1.Disconnect calls over the
// system bus (§6 "Disconnect transport"). It reuses the same connection
// as a BlueZView when one is available, but only needs a *dbus.Conn.
type BlueZDisconnector struct {
	conn *dbus.Conn
}

// NewBlueZDisconnector wraps an existing system bus connection.
func NewBlueZDisconnector(conn *dbus.Conn) *BlueZDisconnector {
	return &BlueZDisconnector{conn: conn}
}

// Disconnect implements Disconnector.
func (d *BlueZDisconnector) Disconnect(ctx context.Context, path Path) error {
	obj := d.conn.Object(bluezService, dbus.ObjectPath(path))
	call := obj.CallWithContext(ctx, deviceInterface+".Disconnect", 0)
	return call.Err
}

// NullDisconnector is the permissive stub used when there is no
// platform bus to issue disconnects over.
type NullDisconnector struct{}

// Disconnect is a no-op.
func (NullDisconnector) Disconnect(context.Context, Path) error { return nil }
