package media

import (
	"context"
	"strings"
)

// DeviceErrorKind classifies device acquisition failures for user messaging.
type DeviceErrorKind string

const (
	DeviceNotReadable DeviceErrorKind = "NOT_READABLE"
	DeviceNotFound    DeviceErrorKind = "NOT_FOUND"
	DeviceNotAllowed  DeviceErrorKind = "NOT_ALLOWED"
	DeviceUnknown     DeviceErrorKind = "UNKNOWN"
)

// DeviceReporter delivers classified device failures to the caller. The
// acquisition path reports instead of returning errors because the join
// sequence must continue regardless of local media availability.
type DeviceReporter func(kind DeviceErrorKind, message string)

// deviceErrorMessages are the user-facing messages per error kind.
var deviceErrorMessages = map[DeviceErrorKind]string{
	DeviceNotReadable: "Camera or microphone is being used by another application. Please close other apps using your camera/mic and try again.",
	DeviceNotFound:    "No camera or microphone found. Please connect a device and try again.",
	DeviceNotAllowed:  "Camera/microphone access denied. Please allow access in your browser settings.",
	DeviceUnknown:     "Failed to access camera or microphone. Please check your device settings.",
}

// classification rules, checked in priority order.
var deviceErrorRules = []struct {
	kind       DeviceErrorKind
	substrings []string
}{
	{DeviceNotReadable, []string{"NOT_READABLE", "Device in use"}},
	{DeviceNotFound, []string{"NOT_FOUND", "Requested device not found"}},
	{DeviceNotAllowed, []string{"NOT_ALLOWED", "Permission denied"}},
}

// ClassifyDeviceError maps an SDK error onto the fixed taxonomy by matching
// substrings of its description.
func ClassifyDeviceError(err error) (DeviceErrorKind, string) {
	desc := ""
	if err != nil {
		desc = err.Error()
	}
	for _, rule := range deviceErrorRules {
		for _, s := range rule.substrings {
			if strings.Contains(desc, s) {
				return rule.kind, deviceErrorMessages[rule.kind]
			}
		}
	}
	return DeviceUnknown, deviceErrorMessages[DeviceUnknown]
}

// Acquisition is the outcome of local track acquisition. Either or both
// tracks may be nil; AudioOnly is set when the combined capture failed but
// the audio fallback succeeded.
type Acquisition struct {
	Audio     Track
	Video     Track
	AudioOnly bool
}

// AcquireTracks attempts combined audio+video capture, degrading to
// audio-only and then to no media. Failures are classified and reported
// through report; they never propagate as errors past this boundary.
func AcquireTracks(ctx context.Context, source TrackSource, report DeviceReporter) Acquisition {
	audio, video, err := source.AcquireAudioVideo(ctx)
	if err == nil {
		return Acquisition{Audio: audio, Video: video}
	}

	kind, msg := ClassifyDeviceError(err)
	if report != nil {
		report(kind, msg)
	}

	audio, err = source.AcquireAudio(ctx)
	if err == nil {
		return Acquisition{Audio: audio, AudioOnly: true}
	}

	kind, msg = ClassifyDeviceError(err)
	if report != nil {
		report(kind, msg)
	}

	// No local media at all; the call proceeds receive-only.
	return Acquisition{}
}
