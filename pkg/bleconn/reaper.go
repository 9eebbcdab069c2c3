package bleconn

import (
	"context"

	"github.com/commatea/comx-ble/pkg/logger"
)

// Reaper closes stale connections left open on sibling adapter paths
// before a fresh connection attempt, grounded on
// bleak-retry-connector's close_stale_connections (§4.E).
type Reaper struct {
	view         DeviceView
	disconnector Disconnector
	log          *logger.Logger
}

// NewReaper builds a Reaper over view and disconnector.
func NewReaper(view DeviceView, disconnector Disconnector, log *logger.Logger) *Reaper {
	return &Reaper{view: view, disconnector: disconnector, log: log}
}

// CloseStaleConnections disconnects every sibling path of device that
// currently reports Connected=true, optionally skipping device's own
// path when onlyOtherAdapters is set. Individual disconnect failures are
// logged and otherwise ignored, since a stale peer that refuses to
// disconnect should not block the caller's own connection attempt.
func (r *Reaper) CloseStaleConnections(ctx context.Context, device Device, onlyOtherAdapters bool) error {
	path, ok := device.Path()
	if !ok || r.view == nil {
		return nil
	}

	connected, err := GetConnectedDevices(ctx, r.view, device)
	if err != nil {
		return err
	}

	for _, stale := range connected {
		stalePath, ok := stale.Path()
		if !ok {
			continue
		}
		if onlyOtherAdapters && stalePath == path {
			continue
		}
		r.disconnectOne(ctx, stalePath)
	}
	return nil
}

// CloseStaleConnectionsByAddress is CloseStaleConnections without
// already holding a Device, for callers that only know the address.
func (r *Reaper) CloseStaleConnectionsByAddress(ctx context.Context, address Address) error {
	device := Device{Address: address, Details: Details{Kind: DetailsBlueZ, Path: AddressToPath(address, "")}}
	return r.CloseStaleConnections(ctx, device, false)
}

func (r *Reaper) disconnectOne(ctx context.Context, path Path) {
	if r.disconnector == nil {
		return
	}
	disconnectCtx, cancel := context.WithTimeout(ctx, DisconnectTimeout)
	defer cancel()

	if err := r.disconnector.Disconnect(disconnectCtx, path); err != nil {
		if r.log != nil {
			r.log.Warn("bleconn: failed to disconnect stale connection", "path", string(path), "error", err)
		}
		return
	}
	if err := r.view.WaitForCondition(disconnectCtx, path, "Connected", false); err != nil && r.log != nil {
		r.log.Warn("bleconn: stale connection did not confirm disconnect", "path", string(path), "error", err)
	}
}
