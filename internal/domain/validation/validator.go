package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"townsim/internal/domain/town"
)

const (
	MinNameLength = 2
	MaxNameLength = 50

	MinY          = -64
	MaxY          = 320
	MaxHorizontal = 30_000_000

	MinSearchRadius = 1
	MaxSearchRadius = 100

	// MaxInitialAmount is one full double chest of 64-stacks: 64 * 9 * 6.
	MaxInitialAmount = 64 * 9 * 6
	MaxInitialKinds  = 100
)

var reservedWords = []string{
	"admin",
	"moderator",
	"operator",
	"console",
	"system",
	"staff",
	"null",
	"undefined",
}

// Validator holds no state; every method returns nil or a *town.Error of
// kind Validation.
type Validator struct{}

func (Validator) Name(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return town.Validation(town.CodeInvalidName, "name must not be empty")
	}
	n := utf8.RuneCountInString(trimmed)
	if n < MinNameLength || n > MaxNameLength {
		return town.Validation(town.CodeInvalidName, "name must be between %d and %d characters", MinNameLength, MaxNameLength)
	}
	for _, r := range trimmed {
		if !allowedNameRune(r) {
			return town.Validation(town.CodeInvalidName, "name contains invalid character %q", r)
		}
	}
	lower := strings.ToLower(trimmed)
	for _, w := range reservedWords {
		if strings.Contains(lower, w) {
			return town.Validation(town.CodeInappropriateName, "name contains inappropriate content")
		}
	}
	return nil
}

func allowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '\'', '.':
		return true
	}
	return false
}

func (Validator) Position(p town.Position) error {
	if p.Y < MinY || p.Y > MaxY {
		return town.Validation(town.CodeInvalidPosition, "y must be between %d and %d, got %d", MinY, MaxY, p.Y)
	}
	if !horizontalInRange(p.X) || !horizontalInRange(p.Z) {
		return town.Validation(town.CodeInvalidPosition, "x and z must be within +/-%d", MaxHorizontal)
	}
	return nil
}

func (Validator) SearchRadius(r int) error {
	if r < MinSearchRadius || r > MaxSearchRadius {
		return town.Validation(town.CodeInvalidSearchRadius, "search radius must be between %d and %d, got %d", MinSearchRadius, MaxSearchRadius, r)
	}
	return nil
}

func (Validator) InitialResources(resources map[string]int) error {
	if len(resources) > MaxInitialKinds {
		return town.Validation(town.CodeInvalidResources, "at most %d resource kinds allowed, got %d", MaxInitialKinds, len(resources))
	}
	for kind, amount := range resources {
		if strings.TrimSpace(kind) == "" {
			return town.Validation(town.CodeInvalidResources, "resource kind is required")
		}
		if amount <= 0 || amount > MaxInitialAmount {
			return town.Validation(town.CodeInvalidResources, "amount of %s must be in (0, %d], got %d", kind, MaxInitialAmount, amount)
		}
	}
	return nil
}

// ResourceDelta checks an add (delta > 0) or remove (delta < 0) against the
// currently held amount.
func (Validator) ResourceDelta(current int, kind string, delta int) error {
	if strings.TrimSpace(kind) == "" {
		return town.Validation(town.CodeInvalidResources, "resource kind is required")
	}
	if delta < 0 && -delta > current {
		return town.Validation(town.CodeInsufficientResources, "cannot remove %d %s, only %d held", -delta, kind, current)
	}
	if delta > 0 && current > town.MaxResourceCount-delta {
		return town.Validation(town.CodeResourceOverflow, "adding %d %s would overflow", delta, kind)
	}
	return nil
}

func (v Validator) Settings(s town.Settings) error {
	if s.Name != nil {
		if err := v.Name(*s.Name); err != nil {
			return err
		}
	}
	if s.SearchRadius != nil {
		if err := v.SearchRadius(*s.SearchRadius); err != nil {
			return err
		}
	}
	return nil
}

func (v Validator) PlatformName(name string) error {
	return v.Name(name)
}

// horizontalInRange checks both bounds directly; -math.MinInt overflows.
func horizontalInRange(n int) bool {
	return n >= -MaxHorizontal && n <= MaxHorizontal
}
