package contracts

import "context"

// Backend is the command surface a configuration client talks to. It is
// implemented in-process by the backend service and remotely by the control
// client.
type Backend interface {
	// GetSettings returns the current settings and the device snapshot. Idempotent.
	GetSettings(ctx context.Context) (SettingsView, error)
	// SetSettings validates, persists and applies an update. The returned
	// status reflects the worker started with the new settings. A rejected
	// update returns a *ValidationError.
	SetSettings(ctx context.Context, update SettingsUpdate) (WorkerStatus, error)
	// GetError returns the supervisor's current status.
	GetError(ctx context.Context) (WorkerStatus, error)
	// AttemptRestart restarts the worker with the last applied settings.
	AttemptRestart(ctx context.Context) (WorkerStatus, error)
}
