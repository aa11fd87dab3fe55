//go:build linux

package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/walkure/gatt"
	"github.com/walkure/gatt/logger"
)

// poweredOnWait bounds how long Enable waits for the HCI device to report
// its first state.
const poweredOnWait = 5 * time.Second

// HCIAdapter talks to the controller over a raw HCI socket using
// walkure/gatt, bypassing BlueZ. It needs CAP_NET_ADMIN and a controller
// that bluetoothd is not holding.
type HCIAdapter struct {
	mu          sync.Mutex
	dev         gatt.Device
	state       gatt.State
	stateCh     chan gatt.State
	visit       func(gatt.Peripheral, *gatt.Advertisement, int)
	peripherals map[string]gatt.Peripheral
	pending     map[string]chan error
	connections map[string]*hciConnection
}

// NewHCIAdapter creates an HCI adapter. The device is opened by Enable.
func NewHCIAdapter() *HCIAdapter {
	logger.SetLogger(slog.Default())
	return &HCIAdapter{
		stateCh:     make(chan gatt.State, 1),
		peripherals: make(map[string]gatt.Peripheral),
		pending:     make(map[string]chan error),
		connections: make(map[string]*hciConnection),
	}
}

func (a *HCIAdapter) Enable() error {
	a.mu.Lock()
	if a.dev != nil {
		powered := a.state == gatt.StatePoweredOn
		a.mu.Unlock()
		if !powered {
			return fmt.Errorf("ble: hci not powered on: %w", ErrRadioUnavailable)
		}
		return nil
	}
	a.mu.Unlock()

	d, err := gatt.NewDevice()
	if err != nil {
		return fmt.Errorf("ble: open hci device: %w: %w", ErrRadioUnavailable, err)
	}
	d.Handle(
		gatt.PeripheralDiscovered(a.onDiscovered),
		gatt.PeripheralConnected(a.onConnected),
		gatt.PeripheralDisconnected(a.onDisconnected),
	)
	if err := d.Init(a.onStateChanged); err != nil {
		return fmt.Errorf("ble: init hci device: %w: %w", ErrRadioUnavailable, err)
	}

	a.mu.Lock()
	a.dev = d
	a.mu.Unlock()

	select {
	case s := <-a.stateCh:
		if s != gatt.StatePoweredOn {
			return fmt.Errorf("ble: hci state %s: %w", s, ErrRadioUnavailable)
		}
		return nil
	case <-time.After(poweredOnWait):
		return fmt.Errorf("ble: hci did not power on: %w", ErrRadioUnavailable)
	}
}

func (a *HCIAdapter) onStateChanged(d gatt.Device, s gatt.State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	slog.Debug("[BLE] hci state changed", "state", s)

	select {
	case a.stateCh <- s:
	default:
	}
}

func (a *HCIAdapter) onDiscovered(p gatt.Peripheral, adv *gatt.Advertisement, rssi int) {
	a.mu.Lock()
	a.peripherals[p.ID()] = p
	visit := a.visit
	a.mu.Unlock()
	if visit != nil {
		visit(p, adv, rssi)
	}
}

func (a *HCIAdapter) onConnected(p gatt.Peripheral, err error) {
	a.mu.Lock()
	ch, ok := a.pending[p.ID()]
	delete(a.pending, p.ID())
	a.mu.Unlock()
	if ok {
		ch <- err
	}
}

func (a *HCIAdapter) onDisconnected(p gatt.Peripheral, err error) {
	a.mu.Lock()
	conn, ok := a.connections[p.ID()]
	delete(a.connections, p.ID())
	a.mu.Unlock()
	if ok {
		slog.Debug("[BLE] hci peripheral disconnected", "id", p.ID(), "error", err)
		conn.fireDisconnect()
	}
}

func (a *HCIAdapter) Scan(ctx context.Context, visit func(Device) bool) error {
	a.mu.Lock()
	d := a.dev
	a.mu.Unlock()
	if d == nil {
		return fmt.Errorf("ble: scan before enable: %w", ErrRadioUnavailable)
	}

	stop := make(chan struct{})
	var once sync.Once
	a.mu.Lock()
	a.visit = func(p gatt.Peripheral, adv *gatt.Advertisement, rssi int) {
		name := adv.LocalName
		if name == "" {
			name = p.Name()
		}
		if visit(Device{Name: name, Address: p.ID(), RSSI: rssi}) {
			once.Do(func() { close(stop) })
		}
	}
	a.mu.Unlock()

	d.Scan([]gatt.UUID{}, true)
	defer func() {
		d.StopScanning()
		a.mu.Lock()
		a.visit = nil
		a.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return nil
	}
}

func (a *HCIAdapter) Connect(ctx context.Context, device Device) (Connection, error) {
	a.mu.Lock()
	d := a.dev
	p, ok := a.peripherals[device.Address]
	ch := make(chan error, 1)
	if ok {
		a.pending[device.Address] = ch
	}
	a.mu.Unlock()
	if d == nil {
		return nil, fmt.Errorf("ble: connect before enable: %w", ErrRadioUnavailable)
	}
	if !ok {
		return nil, fmt.Errorf("ble: connect to %s: %w", device.Address, ErrUnknownDevice)
	}

	d.Connect(p)

	select {
	case <-ctx.Done():
		a.mu.Lock()
		delete(a.pending, device.Address)
		a.mu.Unlock()
		d.CancelConnection(p)
		return nil, fmt.Errorf("ble: connect to %s: %w", device.Address, ctx.Err())
	case err := <-ch:
		if err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", device.Address, err)
		}
	}

	conn := &hciConnection{dev: d, p: p}
	a.mu.Lock()
	a.connections[device.Address] = conn
	a.mu.Unlock()
	return conn, nil
}

// Compile-time check that HCIAdapter implements Adapter.
var _ Adapter = (*HCIAdapter)(nil)

type hciConnection struct {
	dev gatt.Device
	p   gatt.Peripheral

	mu           sync.Mutex
	disconnectCb func()
}

func (c *hciConnection) DiscoverService(serviceUUID string) (Service, error) {
	uuid, err := gatt.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}
	svcs, err := c.p.DiscoverServices([]gatt.UUID{uuid})
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}
	for _, s := range svcs {
		if s.UUID().Equal(uuid) {
			return &hciService{p: c.p, svc: s}, nil
		}
	}
	return nil, fmt.Errorf("ble: service %s not found", serviceUUID)
}

func (c *hciConnection) Disconnect() error {
	c.dev.CancelConnection(c.p)
	return nil
}

func (c *hciConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	c.disconnectCb = cb
	c.mu.Unlock()
}

func (c *hciConnection) fireDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type hciService struct {
	p   gatt.Peripheral
	svc *gatt.Service
}

func (s *hciService) DiscoverCharacteristic(charUUID string) (Characteristic, error) {
	uuid, err := gatt.ParseUUID(charUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse characteristic UUID: %w", err)
	}
	chars, err := s.p.DiscoverCharacteristics([]gatt.UUID{uuid}, s.svc)
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	for _, c := range chars {
		if !c.UUID().Equal(uuid) {
			continue
		}
		// The CCCD must be known before notifications can be enabled.
		if _, err := s.p.DiscoverDescriptors(nil, c); err != nil {
			return nil, fmt.Errorf("ble: discover descriptors: %w", err)
		}
		return &hciCharacteristic{p: s.p, char: c}, nil
	}
	return nil, fmt.Errorf("ble: characteristic %s not found", charUUID)
}

type hciCharacteristic struct {
	p    gatt.Peripheral
	char *gatt.Characteristic
}

func (c *hciCharacteristic) Subscribe(cb func([]byte)) error {
	return c.p.SetNotifyValue(c.char, func(_ *gatt.Characteristic, b []byte, err error) {
		if err != nil {
			slog.Debug("[BLE] hci notification error", "error", err)
			return
		}
		cb(b)
	})
}

func (c *hciCharacteristic) Unsubscribe() error {
	return c.p.SetNotifyValue(c.char, nil)
}
