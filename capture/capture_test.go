package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/mobigent/agentcore/device"
)

type stubBackend struct {
	device.Backend // nil embed; only ScreenSize/Screenshot are exercised
	size           device.Size
	sizeErr        error
	data           []byte
	dataErr        error
}

func (s *stubBackend) ScreenSize(ctx context.Context) (device.Size, error) {
	return s.size, s.sizeErr
}

func (s *stubBackend) Screenshot(ctx context.Context) ([]byte, error) {
	return s.data, s.dataErr
}

func validPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestCaptureOk(t *testing.T) {
	backend := &stubBackend{size: device.Size{Width: 200, Height: 100}, data: validPNG(t, 200, 100)}
	svc := NewService(backend)

	frame, err := svc.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if frame.Status != Ok {
		t.Errorf("Status = %v, want Ok", frame.Status)
	}
	if frame.Width != 200 || frame.Height != 100 {
		t.Errorf("dims = %dx%d, want 200x100", frame.Width, frame.Height)
	}
}

func TestCaptureSensitiveBlocked(t *testing.T) {
	backend := &stubBackend{
		size:    device.Size{Width: 200, Height: 100},
		dataErr: errors.New("capture refused: FLAG_SECURE window"),
	}
	svc := NewService(backend)

	frame, err := svc.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if frame.Status != SensitiveBlocked {
		t.Errorf("Status = %v, want SensitiveBlocked", frame.Status)
	}
	if frame.Width != 200 || frame.Height != 100 {
		t.Errorf("placeholder dims = %dx%d, want 200x100 (match screen_size)", frame.Width, frame.Height)
	}
	img, err := png.Decode(bytes.NewReader(frame.PNG))
	if err != nil {
		t.Fatalf("decode placeholder: %v", err)
	}
	r, g, b, _ := img.At(0, 0).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Error("placeholder should be solid black")
	}
}

func TestCaptureFallbackOnCorruptBytes(t *testing.T) {
	backend := &stubBackend{
		size: device.Size{Width: 50, Height: 60},
		data: []byte("not an image"),
	}
	svc := NewService(backend)

	frame, err := svc.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if frame.Status != Fallback {
		t.Errorf("Status = %v, want Fallback", frame.Status)
	}
	if frame.Width != 50 || frame.Height != 60 {
		t.Errorf("placeholder dims = %dx%d, want 50x60", frame.Width, frame.Height)
	}
	if frame.Cause == "" {
		t.Error("expected a non-empty cause")
	}
}

func TestCaptureFallbackOnBackendError(t *testing.T) {
	backend := &stubBackend{
		size:    device.Size{Width: 10, Height: 10},
		dataErr: errors.New("device offline"),
	}
	svc := NewService(backend)

	frame, err := svc.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if frame.Status != Fallback {
		t.Errorf("Status = %v, want Fallback", frame.Status)
	}
}

func TestCaptureHardErrorOnScreenSizeFailure(t *testing.T) {
	backend := &stubBackend{sizeErr: errors.New("adb not found")}
	svc := NewService(backend)

	if _, err := svc.Capture(context.Background()); err == nil {
		t.Error("expected a hard error when screen size can't be determined")
	}
}
