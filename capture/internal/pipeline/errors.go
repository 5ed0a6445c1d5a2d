package pipeline

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory represents the classification of GStreamer errors for telemetry
type ErrorCategory int

const (
	// ErrCategoryDevice indicates a missing or busy capture device
	ErrCategoryDevice ErrorCategory = iota
	// ErrCategoryFormat indicates caps negotiation or pixel format failures
	ErrCategoryFormat
	// ErrCategoryPermission indicates the device exists but cannot be opened
	ErrCategoryPermission
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryFormat:
		return "format"
	case ErrCategoryPermission:
		return "permission"
	default:
		return "unknown"
	}
}

// Error is a classified pipeline error posted on the bus.
type Error struct {
	Category ErrorCategory
	Message  string
}

func (e *Error) Error() string {
	return "pipeline error [" + e.Category.String() + "]: " + e.Message
}

// ClassifyGError classifies a bus error message.
// go-gst's GError does not expose Domain(), so classification relies on
// string matching.
func ClassifyGError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return Classify(gerr.Error(), gerr.DebugString())
}

// Classify categorizes an error from its message and debug string.
// Permission is checked first (most specific), then format, then device.
func Classify(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)

	switch {
	case containsAny(combined, permissionKeywords):
		return ErrCategoryPermission
	case containsAny(combined, formatKeywords):
		return ErrCategoryFormat
	case containsAny(combined, deviceKeywords):
		return ErrCategoryDevice
	default:
		return ErrCategoryUnknown
	}
}

var (
	permissionKeywords = []string{
		"permission denied",
		"not permitted",
		"eacces",
	}

	formatKeywords = []string{
		"not negotiated",
		"negotiation",
		"caps",
		"format",
		"no decoder",
		"missing plugin",
	}

	deviceKeywords = []string{
		"cannot identify device",
		"could not open device",
		"no such file",
		"not found",
		"busy",
		"device",
		"resource",
	}
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
