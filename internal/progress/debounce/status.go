package debounce

// Status is the save indicator shown next to an edited field.
type Status string

// Save indicator states.
const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// Snapshot is the indicator plus what it is based on.
type Snapshot struct {
	Status Status `json:"status"`
	// Error is the message of the last failed write while Status is error.
	Error string `json:"error,omitempty"`
	// Pending counts channels with a timer outstanding or a write in flight.
	Pending int `json:"pending"`
}
