package device

import (
	"context"
	"fmt"
)

// GestureTransport is the platform bridge an A11yBackend drives: a thin RPC
// surface onto the OS accessibility service. The concrete bridge is supplied
// by the host application; this package only defines the shape it must have.
type GestureTransport interface {
	ScreenSize(ctx context.Context) (Size, error)
	CaptureScreen(ctx context.Context) ([]byte, error)
	Dispatch(ctx context.Context, gesture string, args map[string]any) error
	Launch(ctx context.Context, packageName string) error
	Deeplink(ctx context.Context, uri string) error
}

// A11yBackend is the preferred Backend implementation: direct accessibility
// gestures, no shell involved. Gesture and key calls report MethodA11y;
// OpenApp and OpenDeepLink report MethodSystem on success.
type A11yBackend struct {
	transport GestureTransport
}

// NewA11yBackend wraps a GestureTransport as a Backend.
func NewA11yBackend(transport GestureTransport) *A11yBackend {
	return &A11yBackend{transport: transport}
}

func (b *A11yBackend) ScreenSize(ctx context.Context) (Size, error) {
	return b.transport.ScreenSize(ctx)
}

func (b *A11yBackend) Screenshot(ctx context.Context) ([]byte, error) {
	return b.transport.CaptureScreen(ctx)
}

func (b *A11yBackend) Tap(ctx context.Context, p Point) (Outcome, error) {
	if err := b.transport.Dispatch(ctx, "tap", map[string]any{"x": p.X, "y": p.Y}); err != nil {
		return fail(MethodA11y, err.Error()), nil
	}
	return ok(MethodA11y), nil
}

func (b *A11yBackend) LongPress(ctx context.Context, p Point, duration int) (Outcome, error) {
	args := map[string]any{"x": p.X, "y": p.Y, "duration_ms": duration}
	if err := b.transport.Dispatch(ctx, "long_press", args); err != nil {
		return fail(MethodA11y, err.Error()), nil
	}
	return ok(MethodA11y), nil
}

func (b *A11yBackend) Swipe(ctx context.Context, start, end Point, duration int) (Outcome, error) {
	args := map[string]any{
		"x1": start.X, "y1": start.Y,
		"x2": end.X, "y2": end.Y,
		"duration_ms": duration,
	}
	if err := b.transport.Dispatch(ctx, "swipe", args); err != nil {
		return fail(MethodA11y, err.Error()), nil
	}
	return ok(MethodA11y), nil
}

func (b *A11yBackend) TypeText(ctx context.Context, text string, clearFirst bool) (Outcome, error) {
	args := map[string]any{"text": text, "clear_first": clearFirst}
	if err := b.transport.Dispatch(ctx, "type", args); err != nil {
		return fail(MethodA11y, err.Error()), nil
	}
	return ok(MethodA11y), nil
}

func (b *A11yBackend) Back(ctx context.Context) (Outcome, error) {
	if err := b.transport.Dispatch(ctx, "back", nil); err != nil {
		return fail(MethodA11y, err.Error()), nil
	}
	return ok(MethodA11y), nil
}

func (b *A11yBackend) Home(ctx context.Context) (Outcome, error) {
	if err := b.transport.Dispatch(ctx, "home", nil); err != nil {
		return fail(MethodA11y, err.Error()), nil
	}
	return ok(MethodA11y), nil
}

func (b *A11yBackend) OpenApp(ctx context.Context, packageName string) (Outcome, error) {
	if err := b.transport.Launch(ctx, packageName); err != nil {
		return fail(MethodA11y, fmt.Sprintf("launch %s: %v", packageName, err)), nil
	}
	return ok(MethodSystem), nil
}

func (b *A11yBackend) OpenDeepLink(ctx context.Context, uri string) (Outcome, error) {
	if err := b.transport.Deeplink(ctx, uri); err != nil {
		return fail(MethodA11y, fmt.Sprintf("deeplink %s: %v", uri, err)), nil
	}
	return ok(MethodSystem), nil
}
