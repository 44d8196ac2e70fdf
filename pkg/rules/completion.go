package rules

import (
	"context"
	"fmt"

	"github.com/dukex/devsim/pkg/models"
	"github.com/dukex/devsim/pkg/persistence"
)

// JobStopper removes every scheduled job of a device and returns how many.
type JobStopper interface {
	StopDevice(ctx context.Context, deviceID string) int
}

// CompletionResult describes what the completion policy did.
type CompletionResult struct {
	Completed   bool
	AutoPaused  bool
	JobsStopped int
}

// IsComplete reports whether a sequential device has sent every row.
func IsComplete(device *models.Device) bool {
	return device.Exhausted()
}

// ShouldAutoPause reports whether completion disables the device. Devices set
// to loop only pause when they have nothing at all to send.
func ShouldAutoPause(device *models.Device) bool {
	if !IsComplete(device) {
		return false
	}

	return !device.AutoReset || len(device.Dataset) == 0
}

// CompletionPolicy rewinds exhausted sequential devices and, unless they
// loop, disables them and stops their jobs.
type CompletionPolicy struct {
	Store   persistence.DeviceStore
	Stopper JobStopper
}

// Apply is a no-op for devices that still have rows to send.
func (p *CompletionPolicy) Apply(ctx context.Context, device *models.Device) (CompletionResult, error) {
	if !IsComplete(device) {
		return CompletionResult{}, nil
	}

	cursor := 0
	update := persistence.DeviceUpdate{Cursor: &cursor}
	autoPause := ShouldAutoPause(device)

	if autoPause {
		enabled := false
		update.Enabled = &enabled
	}

	if err := p.Store.UpdateDeviceFields(ctx, device.ID, update); err != nil {
		return CompletionResult{}, fmt.Errorf("failed to apply completion policy: %w", err)
	}

	update.Apply(device)

	result := CompletionResult{Completed: true, AutoPaused: autoPause}

	if autoPause && p.Stopper != nil {
		result.JobsStopped = p.Stopper.StopDevice(ctx, device.ID)
	}

	return result, nil
}
