package types

// Commands sent on the control channel.
const (
	CommandGetSettings    = "get_settings"
	CommandUpdateSettings = "update_settings"
)

// Message types received on the control channel.
const (
	MessageStatus     = "status"
	MessageSettings   = "settings"
	MessageStats      = "stats"
	MessageDetections = "detections"
	MessageError      = "error"
)

// AI models the device firmware accepts.
var AIModels = []string{"yolov4", "mediapipe_pose", "mediapipe_face"}

// GetSettingsCommand asks the device to reply with a settings message.
type GetSettingsCommand struct {
	Command string `json:"command"`
}

// NewGetSettings returns a get_settings command.
func NewGetSettings() GetSettingsCommand {
	return GetSettingsCommand{Command: CommandGetSettings}
}

// UpdateSettingsCommand pushes all three editable settings at once.
type UpdateSettingsCommand struct {
	Command             string  `json:"command"`
	AIModel             string  `json:"ai_model"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	DisplayFPS          bool    `json:"display_fps"`
}

// NewUpdateSettings returns an update_settings command.
func NewUpdateSettings(model string, threshold float64, displayFPS bool) UpdateSettingsCommand {
	return UpdateSettingsCommand{
		Command:             CommandUpdateSettings,
		AIModel:             model,
		ConfidenceThreshold: threshold,
		DisplayFPS:          displayFPS,
	}
}

// Envelope carries the discriminator of a device message.
type Envelope struct {
	Type string `json:"type"`
}

// StatusMessage reports the device-side connection flag.
type StatusMessage struct {
	Connected *bool `json:"connected"`
}

// SettingsMessage mirrors the device settings. Absent fields are nil.
type SettingsMessage struct {
	AIModel             *string  `json:"ai_model"`
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
	DisplayFPS          *bool    `json:"display_fps"`
}

// StatsMessage reports the device processing rate.
type StatsMessage struct {
	FPS *float64 `json:"fps"`
}

// DetectionsMessage reports the number of objects in the latest frame.
type DetectionsMessage struct {
	Count *int `json:"count"`
}

// ErrorMessage is a device-reported application error.
type ErrorMessage struct {
	Message string `json:"message"`
}
