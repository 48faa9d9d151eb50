package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// NOTE: This is the length of the full string: "area:action:payload".
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data formats inline callback data as "area:action:payload".
// Payload is kept as-is (no escaping); it may itself contain colons.
func Data(area, action, payload string) string {
	area = strings.TrimSpace(area)
	action = strings.TrimSpace(action)
	if payload == "" {
		return area + ":" + action
	}
	return area + ":" + action + ":" + payload
}

// Split parses callback data produced by Data.
// The payload keeps any embedded colons.
func Split(data string) (area, action, payload string) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	switch len(parts) {
	case 0:
		return "", "", ""
	case 1:
		return parts[0], "", ""
	case 2:
		return parts[0], parts[1], ""
	default:
		return parts[0], parts[1], parts[2]
	}
}

// Check validates the final callback data length.
func Check(data string) error {
	if len(data) > MaxCallbackDataLen {
		return ErrCallbackDataTooLong
	}
	return nil
}
