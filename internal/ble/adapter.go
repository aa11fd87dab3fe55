// Package ble connects to the tracker cube over Bluetooth Low Energy. It
// defines the transport capability the session is written against, the
// session state machine itself, and the transport variants.
package ble

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Tracker GATT UUIDs. The orientation characteristic notifies one status
// byte per side change.
const (
	ServiceUUID         = "c7e70010-c847-11e6-8175-8c89a55d403c"
	OrientationCharUUID = "c7e70012-c847-11e6-8175-8c89a55d403c"
)

var (
	// ErrRadioUnavailable means there is no usable Bluetooth radio.
	ErrRadioUnavailable = errors.New("bluetooth unavailable")
	// ErrConnectionFailed wraps failures after the device was found.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrUnknownDevice is returned when connecting to a device the adapter
	// has not seen in a scan.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrInvalidState is returned by session controls that do not apply to
	// the current state.
	ErrInvalidState = errors.New("invalid session state")
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
	// Unsubscribe stops notifications.
	Unsubscribe() error
}

// Service represents a discovered GATT service.
type Service interface {
	// DiscoverCharacteristic finds a characteristic by UUID.
	DiscoverCharacteristic(charUUID string) (Characteristic, error)
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverService finds a primary service by UUID.
	DiscoverService(serviceUUID string) (Service, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter.
type Adapter interface {
	// Enable powers on the BLE adapter. Errors wrap ErrRadioUnavailable.
	Enable() error
	// Scan reports advertisements to visit until visit returns true, ctx is
	// cancelled (ctx.Err() is returned) or the scan fails.
	Scan(ctx context.Context, visit func(Device) (stop bool)) error
	// Connect establishes a connection to a device reported by Scan.
	Connect(ctx context.Context, device Device) (Connection, error)
}

// MatchName returns a matcher for devices whose advertised name equals name
// or starts with it. The tracker appends a serial suffix to its name.
func MatchName(name string) func(Device) bool {
	return func(d Device) bool {
		return d.Name != "" && strings.HasPrefix(d.Name, name)
	}
}

// Find scans until a device satisfying match shows up. It blocks until then
// or until ctx is cancelled.
func Find(ctx context.Context, adapter Adapter, match func(Device) bool) (Device, error) {
	var (
		mu    sync.Mutex
		found Device
		ok    bool
	)
	err := adapter.Scan(ctx, func(d Device) bool {
		if !match(d) {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		found, ok = d, true
		return true
	})

	mu.Lock()
	defer mu.Unlock()
	if ok {
		return found, nil
	}
	if err != nil {
		return Device{}, err
	}
	if ctx.Err() != nil {
		return Device{}, ctx.Err()
	}
	return Device{}, errors.New("ble: scan ended without a matching device")
}
