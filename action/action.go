// Package action defines the closed set of device actions a model reply can
// express, plus the parsers (whole-text and incremental/streaming) that
// recover an Action from that grammar.
package action

import "fmt"

// Kind is the closed tag of the Action sum type. New verbs are additive
// schema changes, never an open interface.
type Kind string

const (
	KindTap        Kind = "tap"
	KindLongPress  Kind = "long_press"
	KindSwipe      Kind = "swipe"
	KindType       Kind = "type"
	KindBack       Kind = "back"
	KindHome       Kind = "home"
	KindOpenApp    Kind = "open"
	KindOpenDeep   Kind = "deep_link"
	KindWait       Kind = "wait"
	KindFinish     Kind = "finish"
	KindCallUser   Kind = "call_user"
	KindParseError Kind = "parse_error"
)

// Point is a screen coordinate in the model's own reply — not yet clamped
// to a real screen; clamping is the agent loop's job once it knows the
// device's actual size (device.Clamp).
type Point struct {
	X int
	Y int
}

// Action is a tagged union over every verb the grammar can produce. Only
// the fields relevant to Kind are populated; callers switch on Kind.
type Action struct {
	Kind Kind

	Coordinate Point // tap, long_press
	Start, End Point // swipe
	DurationMS int   // long_press, swipe, wait

	Text       string // type
	ClearFirst bool   // type

	App string // open
	URI string // deep_link

	Message string // finish, call_user

	// Warnings records non-fatal oddities noticed while parsing this
	// action, e.g. a second marker trailing the one actually used
	// (first marker wins).
	Warnings []string

	// Reason is set only when Kind == KindParseError.
	Reason string
}

// ParseError reports why a reply could not be resolved to an action.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return fmt.Sprintf("action: parse: %s", e.Reason) }
