// Package gattadapter adapts tinygo.org/x/bluetooth's central-mode API to
// bleconn.GATTClient, grounded on the Connect/DiscoverServices/
// DiscoverCharacteristics sequence in ComX-Bridge's pkg/transport/ble.
package gattadapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/commatea/comx-ble/pkg/bleconn"
	"tinygo.org/x/bluetooth"
)

// Client is a bleconn.GATTClient backed by a tinygo.org/x/bluetooth
// central-mode adapter. Unlike the scanning transport it is adapted
// from, Client connects directly to an address already resolved by the
// arbiter, since bleconn.EstablishConnection never scans.
type Client struct {
	mu      sync.Mutex
	adapter *bluetooth.Adapter
	address bluetooth.Address

	device       *bluetooth.Device
	disconnected func()
}

// New builds a Client bound to address on adapter. disconnected, if
// non-nil, is invoked when the adapter reports an unsolicited disconnect
// for this address.
func New(adapter *bluetooth.Adapter, address bluetooth.Address, disconnected func()) *Client {
	return &Client{adapter: adapter, address: address, disconnected: disconnected}
}

// SetDisconnectedCallback implements bleconn.GATTClient.
func (c *Client) SetDisconnectedCallback(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = fn
}

// Connect implements bleconn.GATTClient. useCache is accepted for
// interface conformance and ignored: Connect only establishes the link
// and performs no service discovery, and tinygo.org/x/bluetooth has no
// persistent GATT cache of its own.
func (c *Client) Connect(ctx context.Context, timeout time.Duration, useCache bool) error {
	type result struct {
		device bluetooth.Device
		err    error
	}
	done := make(chan result, 1)

	go func() {
		device, err := c.adapter.Connect(c.address, bluetooth.ConnectionParams{})
		done <- result{device: device, err: err}
	}()

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("gattadapter: connect %s: %w", c.address.String(), r.err)
		}
		c.mu.Lock()
		c.device = &r.device
		cb := c.disconnected
		c.mu.Unlock()
		c.wireDisconnectHandler(cb)
		return nil
	case <-connectCtx.Done():
		return connectCtx.Err()
	}
}

// wireDisconnectHandler installs an adapter-wide connect handler that
// filters to this client's address. tinygo.org/x/bluetooth only exposes
// one handler per adapter, so later clients on the same adapter replace
// the previous handler; bleconn only ever drives one attempt sequence
// per adapter at a time so this is not a practical concern.
func (c *Client) wireDisconnectHandler(onDisconnect func()) {
	if onDisconnect == nil {
		return
	}
	c.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		c.mu.Lock()
		mine := c.device != nil && device.Address.String() == c.address.String()
		c.mu.Unlock()
		if mine {
			onDisconnect()
		}
	})
}

// Disconnect implements bleconn.GATTClient.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	device := c.device
	c.device = nil
	c.mu.Unlock()

	if device == nil {
		return nil
	}
	return device.Disconnect()
}

// ClearCache implements bleconn.CacheClearer. There is nothing to clear
// on this backend; it exists so bleconn.ClearCache's type assertion
// succeeds uniformly instead of silently no-op'ing on a missing method.
func (c *Client) ClearCache(ctx context.Context) error { return nil }

// Factory returns a bleconn.ClientFactory bound to adapter, parsing each
// device's address with bluetooth.ParseMAC.
func Factory(adapter *bluetooth.Adapter) bleconn.ClientFactory {
	return func(device bleconn.Device, disconnected func(), isRetryClient bool) bleconn.GATTClient {
		mac, err := bluetooth.ParseMAC(string(device.Address))
		if err != nil {
			return &errorClient{err: fmt.Errorf("gattadapter: invalid address %q: %w", device.Address, err)}
		}
		addr := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}
		return New(adapter, addr, disconnected)
	}
}

// errorClient is returned by Factory when the device address cannot be
// parsed, so EstablishConnection's Classify/terminal path handles it
// uniformly rather than panicking inside the factory.
type errorClient struct{ err error }

func (e *errorClient) Connect(context.Context, time.Duration, bool) error { return e.err }
func (e *errorClient) Disconnect(context.Context) error                  { return nil }
func (e *errorClient) SetDisconnectedCallback(func())                    {}
