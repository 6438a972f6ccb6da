package units

import (
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	for _, unit := range ValidUnits {
		if !IsValid(unit) {
			t.Errorf("%q should be valid", unit)
		}
	}
	for _, unit := range []string{"", "knots", "m/s", "MPH"} {
		if IsValid(unit) {
			t.Errorf("%q should be invalid", unit)
		}
	}
}

func TestConversionsRoundTrip(t *testing.T) {
	for _, unit := range ValidUnits {
		got := ToMPS(FromMPS(10.0, unit), unit)
		if math.Abs(got-10.0) > 1e-9 {
			t.Errorf("%s round trip: got %v", unit, got)
		}
	}
}

func TestFromMPS(t *testing.T) {
	tests := []struct {
		unit string
		want float64
	}{
		{MPS, 10.0},
		{MPH, 22.369362920544},
		{KMPH, 36.0},
		{KPH, 36.0},
	}
	for _, tt := range tests {
		if got := FromMPS(10.0, tt.unit); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("FromMPS(10, %s) = %v, want %v", tt.unit, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(KPH); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Validate("furlongs"); err == nil {
		t.Error("expected an error for an unknown unit")
	}
}
