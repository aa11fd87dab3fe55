//go:build !linux

package ble

import (
	"context"
	"fmt"
)

// HCIAdapter is only available on Linux; elsewhere it reports the radio as
// unavailable.
type HCIAdapter struct{}

// NewHCIAdapter returns an adapter that always reports ErrRadioUnavailable.
func NewHCIAdapter() *HCIAdapter { return &HCIAdapter{} }

func (a *HCIAdapter) Enable() error {
	return fmt.Errorf("ble: raw hci transport requires linux: %w", ErrRadioUnavailable)
}

func (a *HCIAdapter) Scan(context.Context, func(Device) bool) error {
	return a.Enable()
}

func (a *HCIAdapter) Connect(context.Context, Device) (Connection, error) {
	return nil, a.Enable()
}

var _ Adapter = (*HCIAdapter)(nil)
