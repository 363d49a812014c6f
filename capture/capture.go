// Package capture wraps a device.Backend's raw screenshot bytes into a
// decoded frame plus a classification the agent loop can branch on.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/mobigent/agentcore/device"
	"github.com/mobigent/agentcore/screenshot"
)

// Status classifies the outcome of a capture attempt.
type Status int

const (
	Ok Status = iota
	SensitiveBlocked
	Fallback
)

func (s Status) String() string {
	switch s {
	case Ok:
		return "ok"
	case SensitiveBlocked:
		return "sensitive_blocked"
	case Fallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Frame is the result of a capture: the raw (possibly placeholder) image
// bytes, its decoded dimensions, and how it was obtained.
type Frame struct {
	PNG    []byte
	Width  int
	Height int
	Status Status
	Cause  string // set when Status != Ok
}

// sensitiveMarkers are substrings a backend's screenshot error may contain
// to signal the platform actively refused capture (e.g. FLAG_SECURE), as
// opposed to a transient I/O failure. Real platforms surface this as a
// negative status code from the capture API; backends are expected to
// translate that into an error whose text contains one of these.
var sensitiveMarkers = []string{"flag_secure", "capture refused", "secure_window", "disallowed"}

// Service wraps a device.Backend, classifying every capture attempt.
type Service struct {
	backend device.Backend
}

// NewService builds a Service over backend.
func NewService(backend device.Backend) *Service {
	return &Service{backend: backend}
}

// Capture fetches one frame from the backend. The sensitive-blocked and
// fallback paths both substitute a solid-black placeholder sized to the
// backend's reported screen size. An Ok frame carries the decoded image's
// own dimensions; they are not checked against the screen size.
func (s *Service) Capture(ctx context.Context) (Frame, error) {
	size, err := s.backend.ScreenSize(ctx)
	if err != nil {
		return Frame{}, fmt.Errorf("capture: screen size: %w", err)
	}

	data, err := s.backend.Screenshot(ctx)
	if err != nil {
		if isSensitive(err) {
			placeholder, perr := screenshot.Placeholder(size.Width, size.Height)
			if perr != nil {
				return Frame{}, fmt.Errorf("capture: placeholder: %w", perr)
			}
			return Frame{
				PNG:    placeholder,
				Width:  size.Width,
				Height: size.Height,
				Status: SensitiveBlocked,
				Cause:  err.Error(),
			}, nil
		}
		return s.fallback(size, err.Error())
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return s.fallback(size, fmt.Sprintf("decode: %v", err))
	}
	bounds := img.Bounds()
	return Frame{
		PNG:    data,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Status: Ok,
	}, nil
}

func (s *Service) fallback(size device.Size, cause string) (Frame, error) {
	placeholder, err := screenshot.Placeholder(size.Width, size.Height)
	if err != nil {
		return Frame{}, fmt.Errorf("capture: placeholder: %w", err)
	}
	return Frame{
		PNG:    placeholder,
		Width:  size.Width,
		Height: size.Height,
		Status: Fallback,
		Cause:  cause,
	}, nil
}

func isSensitive(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range sensitiveMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
