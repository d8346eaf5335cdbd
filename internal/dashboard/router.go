package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dj-oyu/ai-wifi-cam/liveview/pkg/types"
)

// ErrMalformed wraps every payload the router refuses to apply.
var ErrMalformed = errors.New("malformed control message")

// Routed describes what the router did with one control message.
type Routed struct {
	Type        string
	Applied     bool   // the model changed
	DeviceError string // set for error-typed messages
}

// Route parses one control-channel text frame and dispatches it on its type.
// Malformed payloads return the model unchanged with an ErrMalformed error.
// Error and unknown types are reported in Routed but never applied.
func Route(m Model, raw []byte) (Model, Routed, error) {
	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return m, Routed{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	routed := Routed{Type: env.Type}

	switch env.Type {
	case types.MessageStatus:
		var msg types.StatusMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return m, routed, fmt.Errorf("%w: status: %v", ErrMalformed, err)
		}
		if msg.Connected != nil {
			m.Connected = *msg.Connected
			routed.Applied = true
		}

	case types.MessageSettings:
		var msg types.SettingsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return m, routed, fmt.Errorf("%w: settings: %v", ErrMalformed, err)
		}
		if msg.AIModel != nil && *msg.AIModel != "" {
			m.Settings.AIModel = *msg.AIModel
			routed.Applied = true
		}
		if msg.ConfidenceThreshold != nil {
			m.Settings.ConfidenceThreshold = *msg.ConfidenceThreshold
			routed.Applied = true
		}
		if msg.DisplayFPS != nil {
			m.Settings.DisplayFPS = *msg.DisplayFPS
			routed.Applied = true
		}

	case types.MessageStats:
		var msg types.StatsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return m, routed, fmt.Errorf("%w: stats: %v", ErrMalformed, err)
		}
		if msg.FPS != nil {
			m.Stats.FPS = *msg.FPS
			routed.Applied = true
		}

	case types.MessageDetections:
		var msg types.DetectionsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return m, routed, fmt.Errorf("%w: detections: %v", ErrMalformed, err)
		}
		if msg.Count != nil {
			m.Stats.DetectionCount = *msg.Count
			routed.Applied = true
		}

	case types.MessageError:
		var msg types.ErrorMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return m, routed, fmt.Errorf("%w: error: %v", ErrMalformed, err)
		}
		routed.DeviceError = msg.Message
	}

	return m, routed, nil
}
