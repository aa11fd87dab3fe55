package ble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ScanForDevices lists the peripherals advertising within timeout, one entry
// per address, strongest signal first. Used by the cube-scan diagnostic to
// find the name to put in device_name.
func ScanForDevices(adapter Adapter, timeout time.Duration) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var mu sync.Mutex
	seen := make(map[string]Device)
	var order []string
	err := adapter.Scan(ctx, func(d Device) bool {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := seen[d.Address]; !ok {
			order = append(order, d.Address)
		}
		// Later advertisements often carry the name the first one lacked.
		if prev, ok := seen[d.Address]; ok && d.Name == "" {
			d.Name = prev.Name
		}
		seen[d.Address] = d
		return false
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	devices := make([]Device, 0, len(order))
	for _, addr := range order {
		devices = append(devices, seen[addr])
	}
	sort.SliceStable(devices, func(i, j int) bool { return devices[i].RSSI > devices[j].RSSI })
	return devices, nil
}
