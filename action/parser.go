package action

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	markerDo       = "do(action="
	markerFinish   = "finish(message="
	markerCallUser = "call_user(message="
)

var allMarkers = []string{markerDo, markerFinish, markerCallUser}

// ParseText resolves one Action out of a complete model reply. An
// unrecognized reply yields Kind == KindParseError rather than a Go error —
// that is itself a valid outcome the agent loop folds into its
// consecutive-parse-error budget.
func ParseText(text string) (Action, error) {
	idx, marker := findEarliestMarker(text)
	if idx < 0 {
		return Action{Kind: KindParseError, Reason: "no recognized action marker in reply"}, nil
	}
	warnings := extraMarkerWarnings(text, idx)

	openParen := idx + strings.IndexByte(marker, '(')
	closeParen, err := matchingParen(text, openParen)
	if err != nil {
		return Action{Kind: KindParseError, Reason: err.Error()}, nil
	}
	inner := text[openParen+1 : closeParen]

	switch marker {
	case markerFinish:
		msg, err := parseQuotedOrRaw(strings.TrimPrefix(inner, "message="))
		if err != nil {
			return Action{Kind: KindParseError, Reason: fmt.Sprintf("finish: %v", err)}, nil
		}
		return Action{Kind: KindFinish, Message: msg, Warnings: warnings}, nil
	case markerCallUser:
		msg, err := parseQuotedOrRaw(strings.TrimPrefix(inner, "message="))
		if err != nil {
			return Action{Kind: KindParseError, Reason: fmt.Sprintf("call_user: %v", err)}, nil
		}
		return Action{Kind: KindCallUser, Message: msg, Warnings: warnings}, nil
	default:
		return parseDo(inner, warnings)
	}
}

func parseDo(inner string, warnings []string) (Action, error) {
	parts := splitTopLevelArgs(inner)
	if len(parts) == 0 {
		return Action{Kind: KindParseError, Reason: "do(): missing action name"}, nil
	}
	name, err := parseQuotedOrRaw(strings.TrimPrefix(parts[0], "action="))
	if err != nil {
		return Action{Kind: KindParseError, Reason: fmt.Sprintf("do(): action name: %v", err)}, nil
	}

	args := map[string]string{}
	for _, p := range parts[1:] {
		k, v, err := splitKV(p)
		if err != nil {
			continue
		}
		args[k] = v
	}

	act := Action{Warnings: warnings}
	switch name {
	case "tap":
		act.Kind = KindTap
		pt, err := parsePoint(args["coordinate"])
		if err != nil {
			return Action{Kind: KindParseError, Reason: fmt.Sprintf("tap: %v", err)}, nil
		}
		act.Coordinate = pt
	case "long_press":
		act.Kind = KindLongPress
		pt, err := parsePoint(args["coordinate"])
		if err != nil {
			return Action{Kind: KindParseError, Reason: fmt.Sprintf("long_press: %v", err)}, nil
		}
		act.Coordinate = pt
		act.DurationMS = parseIntOr(args["duration"], 0)
	case "swipe":
		act.Kind = KindSwipe
		start, err := parsePoint(args["start"])
		if err != nil {
			return Action{Kind: KindParseError, Reason: fmt.Sprintf("swipe: %v", err)}, nil
		}
		end, err := parsePoint(args["end"])
		if err != nil {
			return Action{Kind: KindParseError, Reason: fmt.Sprintf("swipe: %v", err)}, nil
		}
		act.Start, act.End = start, end
		act.DurationMS = parseIntOr(args["duration"], 0)
	case "type":
		act.Kind = KindType
		text, err := parseQuotedOrRaw(args["text"])
		if err != nil {
			return Action{Kind: KindParseError, Reason: fmt.Sprintf("type: %v", err)}, nil
		}
		act.Text = text
		// Accept both "clear_first" (what the prompt documents) and the
		// shorter "clear" alias some replies use, preferring clear_first
		// when a reply sets both.
		clearArg, ok := args["clear_first"]
		if !ok {
			clearArg = args["clear"]
		}
		act.ClearFirst = parseBoolOr(clearArg, false)
	case "back":
		act.Kind = KindBack
	case "home":
		act.Kind = KindHome
	case "open":
		act.Kind = KindOpenApp
		app, err := parseQuotedOrRaw(args["app"])
		if err != nil {
			return Action{Kind: KindParseError, Reason: fmt.Sprintf("open: %v", err)}, nil
		}
		act.App = app
	case "deep_link":
		act.Kind = KindOpenDeep
		uri, err := parseQuotedOrRaw(args["uri"])
		if err != nil {
			return Action{Kind: KindParseError, Reason: fmt.Sprintf("deep_link: %v", err)}, nil
		}
		act.URI = uri
	case "wait":
		act.Kind = KindWait
		act.DurationMS = parseIntOr(args["duration"], 0)
	default:
		return Action{Kind: KindParseError, Reason: fmt.Sprintf("unrecognized action verb %q", name)}, nil
	}
	return act, nil
}

func findEarliestMarker(text string) (int, string) {
	bestIdx := -1
	bestMarker := ""
	for _, m := range allMarkers {
		if i := strings.Index(text, m); i >= 0 && (bestIdx == -1 || i < bestIdx) {
			bestIdx = i
			bestMarker = m
		}
	}
	return bestIdx, bestMarker
}

// extraMarkerWarnings implements the "first marker wins" tie-break: a
// second marker occurring anywhere else in the text is surfaced as a
// warning rather than silently dropped.
func extraMarkerWarnings(text string, usedIdx int) []string {
	var warnings []string
	for _, m := range allMarkers {
		for i := 0; i+len(m) <= len(text); {
			found := strings.Index(text[i:], m)
			if found < 0 {
				break
			}
			pos := i + found
			if pos != usedIdx {
				warnings = append(warnings, fmt.Sprintf("ignored additional marker %q at offset %d", m, pos))
			}
			i = pos + 1
		}
	}
	return warnings
}

// matchingParen finds the index of the ')' that closes the '(' at openIdx,
// tracking nested parens/brackets and quoted strings so that characters
// inside string literals or [a,b] pairs never affect depth.
func matchingParen(text string, openIdx int) (int, error) {
	depth := 0
	inQuote := false
	escaped := false
	for i := openIdx; i < len(text); i++ {
		c := text[i]
		if inQuote {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("unterminated call starting at offset %d", openIdx)
}

// splitTopLevelArgs splits s on commas that are not inside a quoted string
// or a [a,b] bracket pair.
func splitTopLevelArgs(s string) []string {
	var parts []string
	depth := 0
	inQuote := false
	escaped := false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(s[start:]); tail != "" {
		parts = append(parts, tail)
	}
	return parts
}

func splitKV(s string) (string, string, error) {
	i := strings.IndexByte(s, '=')
	if i < 0 {
		return "", "", fmt.Errorf("not a key=value pair: %q", s)
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), nil
}

// parseQuotedOrRaw accepts a double-quoted string with standard escapes, or
// returns the trimmed raw text unchanged (bare identifiers like a verb
// name).
func parseQuotedOrRaw(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty value")
	}
	if s[0] != '"' {
		return s, nil
	}
	if len(s) < 2 || s[len(s)-1] != '"' {
		return "", fmt.Errorf("unterminated string %q", s)
	}
	unquoted, err := strconv.Unquote(s)
	if err != nil {
		return "", fmt.Errorf("invalid string literal %q: %w", s, err)
	}
	return unquoted, nil
}

// parsePoint parses a "[x,y]" coordinate pair.
func parsePoint(s string) (Point, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return Point{}, fmt.Errorf("expected [x,y], got %q", s)
	}
	inner := s[1 : len(s)-1]
	comma := strings.IndexByte(inner, ',')
	if comma < 0 {
		return Point{}, fmt.Errorf("expected [x,y], got %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(inner[:comma]))
	if err != nil {
		return Point{}, fmt.Errorf("invalid x in %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(inner[comma+1:]))
	if err != nil {
		return Point{}, fmt.Errorf("invalid y in %q: %w", s, err)
	}
	return Point{X: x, Y: y}, nil
}

func parseIntOr(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func parseBoolOr(s string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return b
}
