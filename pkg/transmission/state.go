package transmission

import "github.com/dukex/devsim/pkg/models"

// DeriveState computes a device's state from a snapshot of its jobs and
// record. jobs should hold only jobs that existed across the device read;
// with none the device is INACTIVE.
func DeriveState(jobs []models.Job, device *models.Device, manual bool) models.TransmissionState {
	if manual {
		return models.StateManual
	}

	if len(jobs) == 0 || device == nil {
		return models.StateInactive
	}

	if device.Enabled {
		for _, job := range jobs {
			if !job.Paused {
				return models.StateActive
			}
		}
	}

	return models.StatePaused
}

// AvailableActions returns the enabled and visible flag of every action for state.
// start and pause are never enabled together.
func AvailableActions(state models.TransmissionState) map[models.Action]models.ActionAvailability {
	inactive := state == models.StateInactive
	active := state == models.StateActive
	paused := state == models.StatePaused
	running := active || paused

	return map[models.Action]models.ActionAvailability{
		models.ActionTransmitNow: {Enabled: inactive || paused, Visible: true},
		models.ActionStart:       {Enabled: inactive, Visible: inactive},
		models.ActionPause:       {Enabled: active, Visible: active},
		models.ActionResume:      {Enabled: paused, Visible: paused},
		models.ActionStop:        {Enabled: running, Visible: running},
	}
}

// Allowed reports whether action may run in state.
func Allowed(state models.TransmissionState, action models.Action) bool {
	return AvailableActions(state)[action].Enabled
}
