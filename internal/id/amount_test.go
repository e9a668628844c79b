package id

import (
	"math/big"
	"testing"
)

func TestNormalizeAmountBaseUnits(t *testing.T) {
	base, dec, err := NormalizeAmount("1000000", "", 6)
	if err != nil {
		t.Fatalf("NormalizeAmount failed: %v", err)
	}
	if base != "1000000" || dec != "1" {
		t.Fatalf("unexpected result: base=%s dec=%s", base, dec)
	}
}

func TestNormalizeAmountDecimal(t *testing.T) {
	base, dec, err := NormalizeAmount("", "1.25", 6)
	if err != nil {
		t.Fatalf("NormalizeAmount failed: %v", err)
	}
	if base != "1250000" || dec != "1.25" {
		t.Fatalf("unexpected result: base=%s dec=%s", base, dec)
	}
}

func TestNormalizeAmountValidation(t *testing.T) {
	if _, _, err := NormalizeAmount("10", "1", 6); err == nil {
		t.Fatal("expected mutual exclusivity error")
	}
	if _, _, err := NormalizeAmount("", "1.1234567", 6); err == nil {
		t.Fatal("expected precision error")
	}
	if got := FormatDecimalCompat("0", 6); got != "0" {
		t.Fatalf("unexpected zero format: %s", got)
	}
}

func TestParseUnits(t *testing.T) {
	got, err := ParseUnits("0.01", 6)
	if err != nil {
		t.Fatalf("ParseUnits failed: %v", err)
	}
	if got.Cmp(big.NewInt(10000)) != 0 {
		t.Fatalf("unexpected base units: %s", got)
	}
	if _, err := ParseUnits("0.0000001", 6); err == nil {
		t.Fatal("expected precision error")
	}
	if _, err := ParseUnits("-1", 18); err == nil {
		t.Fatal("expected format error for negative amount")
	}
	if _, err := ParseUnits("1e5", 18); err == nil {
		t.Fatal("expected format error for exponent notation")
	}
}

func TestFormatUnitsRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		in       string
		decimals int
	}{
		{"1", 18}, {"0.000001", 6}, {"123.456", 18}, {"1000000", 6},
	} {
		base, err := ParseUnits(tc.in, tc.decimals)
		if err != nil {
			t.Fatalf("ParseUnits(%s) failed: %v", tc.in, err)
		}
		if got := FormatUnits(base, tc.decimals); got != tc.in {
			t.Fatalf("round trip mismatch: %s -> %s", tc.in, got)
		}
		if ToDecimal(base, tc.decimals).String() != tc.in {
			t.Fatalf("decimal mismatch for %s: %s", tc.in, ToDecimal(base, tc.decimals))
		}
	}
}
