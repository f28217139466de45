package currency

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidatePrecision(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"within limits", "12345678.1234", false},
		{"too many fraction digits", "1.12345", true},
		{"too many whole digits", "123456789", true},
		{"zero", "0", false},
		{"negative within limits", "-99.5", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := decimal.NewFromString(tc.value)
			if err != nil {
				t.Fatalf("parse decimal: %v", err)
			}
			err = ValidatePrecision(v)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidatePrecision(%s) error = %v, wantErr %v", tc.value, err, tc.wantErr)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	v := decimal.RequireFromString("19.999")
	got := Truncate(v, "USD")
	want := decimal.RequireFromString("19.99")
	if !got.Equal(want) {
		t.Fatalf("Truncate() = %s, want %s", got, want)
	}
}

func TestConvertPayout(t *testing.T) {
	tests := []struct {
		name        string
		base        string
		rateSeller  string
		rateBuyer   string
		want        string
		wantErrKind bool
	}{
		{"same currency passthrough", "100", "1", "1", "100", false},
		{"seller rate higher", "100", "2", "1", "200", false},
		{"buyer rate zero rejected", "100", "1", "0", "", true},
		{"fractional result within currency scale", "10", "1.005", "1", "10.05", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			base := decimal.RequireFromString(tc.base)
			rs := decimal.RequireFromString(tc.rateSeller)
			rb := decimal.RequireFromString(tc.rateBuyer)
			got, err := ConvertPayout(base, rs, rb, "USD")
			if tc.wantErrKind {
				if err == nil {
					t.Fatalf("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("ConvertPayout: %v", err)
			}
			want := decimal.RequireFromString(tc.want)
			if !got.Equal(want) {
				t.Fatalf("ConvertPayout() = %s, want %s", got, want)
			}
		})
	}
}
