package validation

import (
	"errors"
	"math"
	"strings"
	"testing"

	"townsim/internal/domain/town"
)

func TestValidator_Name(t *testing.T) {
	v := Validator{}
	ok := []string{"Ab", "St. John's", "river_town-2", "  Padded  ", strings.Repeat("x", 50)}
	for _, name := range ok {
		if err := v.Name(name); err != nil {
			t.Fatalf("expected %q to pass, got %v", name, err)
		}
	}
	bad := []string{"", "   ", "A", strings.Repeat("x", 51), "semi;colon", "tab\there"}
	for _, name := range bad {
		if err := v.Name(name); !town.HasCode(err, town.CodeInvalidName) {
			t.Fatalf("expected %q to fail with INVALID_NAME, got %v", name, err)
		}
	}
}

func TestValidator_NameRejectsReservedWords(t *testing.T) {
	v := Validator{}
	for _, name := range []string{"admin", "ADMIN town", "The Moderators"} {
		err := v.Name(name)
		if !town.HasCode(err, town.CodeInappropriateName) {
			t.Fatalf("expected %q to be inappropriate, got %v", name, err)
		}
		if !errors.Is(err, town.ErrValidation) {
			t.Fatalf("expected validation kind, got %v", err)
		}
	}
}

func TestValidator_Position(t *testing.T) {
	v := Validator{}
	if err := v.Position(town.Position{X: 0, Y: 64, Z: 0}); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if err := v.Position(town.Position{Y: -64}); err != nil {
		t.Fatalf("lower bound should pass: %v", err)
	}
	if err := v.Position(town.Position{Y: 320}); err != nil {
		t.Fatalf("upper bound should pass: %v", err)
	}
	if err := v.Position(town.Position{X: -30_000_000, Y: 64, Z: 30_000_000}); err != nil {
		t.Fatalf("horizontal bounds should pass: %v", err)
	}
	for _, p := range []town.Position{
		{Y: -65}, {Y: 321}, {X: 30_000_001}, {Z: -30_000_001},
		{X: math.MinInt, Y: 64}, {X: math.MaxInt, Y: 64},
		{Z: math.MinInt, Y: 64}, {Z: math.MaxInt, Y: 64},
	} {
		if err := v.Position(p); !town.HasCode(err, town.CodeInvalidPosition) {
			t.Fatalf("expected %+v to fail, got %v", p, err)
		}
	}
}

func TestValidator_SearchRadius(t *testing.T) {
	v := Validator{}
	for _, r := range []int{1, 50, 100} {
		if err := v.SearchRadius(r); err != nil {
			t.Fatalf("expected %d to pass: %v", r, err)
		}
	}
	for _, r := range []int{0, -1, 101} {
		if err := v.SearchRadius(r); !town.HasCode(err, town.CodeInvalidSearchRadius) {
			t.Fatalf("expected %d to fail, got %v", r, err)
		}
	}
}

func TestValidator_InitialResources(t *testing.T) {
	v := Validator{}
	if err := v.InitialResources(map[string]int{"wood": MaxInitialAmount}); err != nil {
		t.Fatalf("max amount should pass: %v", err)
	}
	cases := []map[string]int{
		{"": 1},
		{"wood": 0},
		{"wood": MaxInitialAmount + 1},
	}
	for _, c := range cases {
		if err := v.InitialResources(c); !town.HasCode(err, town.CodeInvalidResources) {
			t.Fatalf("expected %v to fail, got %v", c, err)
		}
	}
	many := map[string]int{}
	for i := 0; i <= MaxInitialKinds; i++ {
		many[strings.Repeat("k", i+1)] = 1
	}
	if err := v.InitialResources(many); err == nil {
		t.Fatalf("expected too many kinds to fail")
	}
}

func TestValidator_ResourceDelta(t *testing.T) {
	v := Validator{}
	if err := v.ResourceDelta(5, "wood", -5); err != nil {
		t.Fatalf("removing all should pass: %v", err)
	}
	if err := v.ResourceDelta(5, "wood", -6); !town.HasCode(err, town.CodeInsufficientResources) {
		t.Fatalf("expected insufficient, got %v", err)
	}
	if err := v.ResourceDelta(town.MaxResourceCount, "wood", 1); !town.HasCode(err, town.CodeResourceOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if err := v.ResourceDelta(0, " ", 1); !town.HasCode(err, town.CodeInvalidResources) {
		t.Fatalf("expected missing kind, got %v", err)
	}
}

func TestValidator_SettingsOnlyChecksPresentFields(t *testing.T) {
	v := Validator{}
	if err := v.Settings(town.Settings{}); err != nil {
		t.Fatalf("empty settings should pass: %v", err)
	}
	bad := 0
	if err := v.Settings(town.Settings{SearchRadius: &bad}); err == nil {
		t.Fatalf("expected bad radius to fail")
	}
	name := "x"
	if err := v.Settings(town.Settings{Name: &name}); err == nil {
		t.Fatalf("expected bad name to fail")
	}
}
