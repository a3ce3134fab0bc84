package resolver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// Resolve maps input to one of the session ids. An exact match always
// wins, so catalog ids like "tree" resolve regardless of length. Otherwise
// input is treated as a prefix of a custom session's UUID.
func Resolve(ids []string, input string) (string, error) {
	return ResolveKind("sessions", ids, input)
}

// ResolveKind is Resolve for ids of another kind, named in errors.
func ResolveKind(kind string, ids []string, input string) (string, error) {
	for _, id := range ids {
		if id == input {
			return id, nil
		}
	}

	if len(input) < MinShortIDLength {
		if len(input) == 0 {
			return "", &NotFoundError{Kind: kind, ShortID: input}
		}
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(input))
	}

	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, input) {
			matches = append(matches, id)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Kind: kind, ShortID: input}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Kind: kind, ShortID: input, Matches: matches}
	}
}

// NotFoundError indicates nothing matched the short ID.
type NotFoundError struct {
	Kind    string
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s found matching '%s'", kindOr(e.Kind), e.ShortID)
}

// AmbiguousError indicates several ids matched the short ID.
type AmbiguousError struct {
	Kind    string
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d %s", e.ShortID, len(e.Matches), kindOr(e.Kind))
}

func kindOr(kind string) string {
	if kind == "" {
		return "sessions"
	}
	return kind
}

// FormatAmbiguousError lists the candidates, up to 10, for display.
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Short ID '%s' matches %d %s:\n", err.ShortID, len(err.Matches), kindOr(err.Kind))

	shown := len(err.Matches)
	if shown > 10 {
		shown = 10
	}
	for _, id := range err.Matches[:shown] {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify it.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	var target *AmbiguousError
	return errors.As(err, &target)
}
