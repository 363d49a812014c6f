package device

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
)

// ShellExecutor runs a single shell-injected command and returns its
// output. This package supplies no implementation: the host injects one
// (cmd/agentrunner's runs adb via os/exec); tests substitute a fake.
type ShellExecutor interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// ShellBackend drives the device by shelling commands to an external CLI
// (e.g. `adb shell input ...`). Gesture and key calls report MethodShell;
// OpenApp and OpenDeepLink report MethodSystem on success.
type ShellBackend struct {
	exec ShellExecutor
	size Size // cached; refreshed by ScreenSize
}

// NewShellBackend wraps a ShellExecutor as a Backend.
func NewShellBackend(exec ShellExecutor) *ShellBackend {
	return &ShellBackend{exec: exec}
}

func (b *ShellBackend) run(ctx context.Context, args ...string) (Outcome, error) {
	out, err := b.exec.Run(ctx, args...)
	if err != nil {
		return fail(MethodShell, fmt.Sprintf("%v: %s", err, bytes.TrimSpace(out))), nil
	}
	return ok(MethodShell), nil
}

func (b *ShellBackend) ScreenSize(ctx context.Context) (Size, error) {
	out, err := b.exec.Run(ctx, "shell", "wm", "size")
	if err != nil {
		return Size{}, fmt.Errorf("wm size: %w", err)
	}
	w, h, perr := parseWMSize(out)
	if perr != nil {
		return Size{}, perr
	}
	b.size = Size{Width: w, Height: h}
	return b.size, nil
}

func (b *ShellBackend) Screenshot(ctx context.Context) ([]byte, error) {
	out, err := b.exec.Run(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return nil, fmt.Errorf("screencap: %w", err)
	}
	return out, nil
}

func (b *ShellBackend) Tap(ctx context.Context, p Point) (Outcome, error) {
	return b.run(ctx, "shell", "input", "tap", strconv.Itoa(p.X), strconv.Itoa(p.Y))
}

func (b *ShellBackend) LongPress(ctx context.Context, p Point, duration int) (Outcome, error) {
	return b.run(ctx, "shell", "input", "swipe",
		strconv.Itoa(p.X), strconv.Itoa(p.Y), strconv.Itoa(p.X), strconv.Itoa(p.Y),
		strconv.Itoa(duration))
}

func (b *ShellBackend) Swipe(ctx context.Context, start, end Point, duration int) (Outcome, error) {
	return b.run(ctx, "shell", "input", "swipe",
		strconv.Itoa(start.X), strconv.Itoa(start.Y),
		strconv.Itoa(end.X), strconv.Itoa(end.Y),
		strconv.Itoa(duration))
}

func (b *ShellBackend) TypeText(ctx context.Context, text string, clearFirst bool) (Outcome, error) {
	if clearFirst {
		// Best-effort: one long-pressed forward-delete key event before
		// typing; it does not select all first and is not guaranteed to
		// clear every field type.
		_, _ = b.exec.Run(ctx, "shell", "input", "keyevent", "--longpress", "KEYCODE_FORWARD_DEL")
	}
	return b.run(ctx, "shell", "input", "text", shellQuote(text))
}

func (b *ShellBackend) Back(ctx context.Context) (Outcome, error) {
	return b.run(ctx, "shell", "input", "keyevent", "KEYCODE_BACK")
}

func (b *ShellBackend) Home(ctx context.Context) (Outcome, error) {
	return b.run(ctx, "shell", "input", "keyevent", "KEYCODE_HOME")
}

func (b *ShellBackend) OpenApp(ctx context.Context, packageName string) (Outcome, error) {
	outcome, err := b.run(ctx, "shell", "monkey", "-p", packageName,
		"-c", "android.intent.category.LAUNCHER", "1")
	if outcome.OK {
		outcome.Method = MethodSystem
	}
	return outcome, err
}

func (b *ShellBackend) OpenDeepLink(ctx context.Context, uri string) (Outcome, error) {
	outcome, err := b.run(ctx, "shell", "am", "start", "-a", "android.intent.action.VIEW", "-d", uri)
	if outcome.OK {
		outcome.Method = MethodSystem
	}
	return outcome, err
}

func shellQuote(s string) string {
	// `input text` treats spaces specially; android's shell input expects
	// %s for spaces rather than quoting.
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			out = append(out, '%', 's')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

func parseWMSize(out []byte) (int, int, error) {
	// Expected: "Physical size: 1080x2400"
	s := string(out)
	idx := bytes.IndexByte(out, ':')
	if idx < 0 {
		return 0, 0, fmt.Errorf("unexpected wm size output: %q", s)
	}
	dims := s[idx+1:]
	var w, h int
	if _, err := fmt.Sscanf(dims, "%dx%d", &w, &h); err != nil {
		return 0, 0, fmt.Errorf("parse wm size %q: %w", s, err)
	}
	return w, h, nil
}

// FallbackBackend composes a preferred Backend with a secondary one: every
// operation tries primary first, and only on a failed (false) Outcome falls
// back to secondary internally, reporting whichever method actually
// serviced the call.
type FallbackBackend struct {
	Primary   Backend
	Secondary Backend
}

func (f *FallbackBackend) ScreenSize(ctx context.Context) (Size, error) {
	size, err := f.Primary.ScreenSize(ctx)
	if err == nil {
		return size, nil
	}
	return f.Secondary.ScreenSize(ctx)
}

func (f *FallbackBackend) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := f.Primary.Screenshot(ctx)
	if err == nil {
		return data, nil
	}
	return f.Secondary.Screenshot(ctx)
}

type backendOp func(Backend) (Outcome, error)

func (f *FallbackBackend) attempt(ctx context.Context, op backendOp) (Outcome, error) {
	outcome, err := op(f.Primary)
	if err != nil {
		return Outcome{}, err
	}
	if outcome.OK {
		return outcome, nil
	}
	return op(f.Secondary)
}

func (f *FallbackBackend) Tap(ctx context.Context, p Point) (Outcome, error) {
	return f.attempt(ctx, func(b Backend) (Outcome, error) { return b.Tap(ctx, p) })
}

func (f *FallbackBackend) LongPress(ctx context.Context, p Point, duration int) (Outcome, error) {
	return f.attempt(ctx, func(b Backend) (Outcome, error) { return b.LongPress(ctx, p, duration) })
}

func (f *FallbackBackend) Swipe(ctx context.Context, start, end Point, duration int) (Outcome, error) {
	return f.attempt(ctx, func(b Backend) (Outcome, error) { return b.Swipe(ctx, start, end, duration) })
}

func (f *FallbackBackend) TypeText(ctx context.Context, text string, clearFirst bool) (Outcome, error) {
	return f.attempt(ctx, func(b Backend) (Outcome, error) { return b.TypeText(ctx, text, clearFirst) })
}

func (f *FallbackBackend) Back(ctx context.Context) (Outcome, error) {
	return f.attempt(ctx, func(b Backend) (Outcome, error) { return b.Back(ctx) })
}

func (f *FallbackBackend) Home(ctx context.Context) (Outcome, error) {
	return f.attempt(ctx, func(b Backend) (Outcome, error) { return b.Home(ctx) })
}

func (f *FallbackBackend) OpenApp(ctx context.Context, packageName string) (Outcome, error) {
	return f.attempt(ctx, func(b Backend) (Outcome, error) { return b.OpenApp(ctx, packageName) })
}

func (f *FallbackBackend) OpenDeepLink(ctx context.Context, uri string) (Outcome, error) {
	return f.attempt(ctx, func(b Backend) (Outcome, error) { return b.OpenDeepLink(ctx, uri) })
}
