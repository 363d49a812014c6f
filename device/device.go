// Package device defines the trait the agent loop drives the physical
// screen through. The core never talks to an operating system directly; it
// calls this interface and two concrete back-ends (A11yBackend, ShellBackend)
// satisfy it.
package device

import "context"

// Method names the low-level mechanism that actually serviced a call.
type Method string

const (
	MethodA11y   Method = "a11y"
	MethodShell  Method = "shell"
	MethodSystem Method = "system"
)

// Outcome is returned by every Backend operation.
type Outcome struct {
	OK     bool
	Method Method
	Detail string
}

func ok(m Method) Outcome { return Outcome{OK: true, Method: m} }
func fail(m Method, detail string) Outcome {
	return Outcome{OK: false, Method: m, Detail: detail}
}

// Size is the device's screen size in pixels, top-left origin.
type Size struct {
	Width  int
	Height int
}

// Point is a pixel coordinate, top-left origin.
type Point struct {
	X int
	Y int
}

// Backend is the device-control back-end the agent loop calls. Every
// mutating operation returns an Outcome instead of a bare error: a false
// Outcome is a recoverable signal the loop records on the step (it does not
// retry the action), not a hard failure of the call itself. A non-nil error means the back-end itself
// could not be reached at all.
type Backend interface {
	// ScreenSize reports the current screen dimensions, resolving
	// orientation.
	ScreenSize(ctx context.Context) (Size, error)

	// Screenshot returns the raw encoded bytes of the current screen, or an
	// error if capture failed. Non-decodable bytes are returned as they are.
	// A sensitive-blocked screen is signaled by an error whose text carries
	// one of capture.Service's sensitive markers; any other error is treated
	// as a fallback — see capture.Service.
	Screenshot(ctx context.Context) ([]byte, error)

	Tap(ctx context.Context, p Point) (Outcome, error)
	LongPress(ctx context.Context, p Point, duration int) (Outcome, error)
	Swipe(ctx context.Context, start, end Point, duration int) (Outcome, error)
	TypeText(ctx context.Context, text string, clearFirst bool) (Outcome, error)
	Back(ctx context.Context) (Outcome, error)
	Home(ctx context.Context) (Outcome, error)
	OpenApp(ctx context.Context, packageName string) (Outcome, error)
	OpenDeepLink(ctx context.Context, uri string) (Outcome, error)
}

// AppResolver maps a human-readable app name to an installed package name.
// The loop only consults it for an OpenApp target that doesn't already look
// like a package name (no dot); a target containing a dot is passed straight
// to Backend.OpenApp. Skill/intent matching over installed apps lives
// entirely behind this interface, not in the loop itself.
type AppResolver interface {
	Resolve(ctx context.Context, name string) (packageName string, ok bool)
}

// Clamp pins p to the screen bounds described by size, reporting whether
// clamping was necessary. A coordinate exactly on the edge is left
// untouched.
func Clamp(p Point, size Size) (Point, bool) {
	clamped := p
	changed := false
	if size.Width > 0 {
		maxX := size.Width - 1
		if clamped.X < 0 {
			clamped.X = 0
			changed = true
		} else if clamped.X > maxX {
			clamped.X = maxX
			changed = true
		}
	}
	if size.Height > 0 {
		maxY := size.Height - 1
		if clamped.Y < 0 {
			clamped.Y = 0
			changed = true
		} else if clamped.Y > maxY {
			clamped.Y = maxY
			changed = true
		}
	}
	return clamped, changed
}
