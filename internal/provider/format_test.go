package provider

import "testing"

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		country string
		want    string
	}{
		{"nigerian local", "08031234567", "NG", "+2348031234567"},
		{"nigerian with spaces", "0803 123 4567", "NG", "+2348031234567"},
		{"nigerian with dashes", "0803-123-4567", "NG", "+2348031234567"},
		{"already international", "+2348031234567", "NG", "+2348031234567"},
		{"double zero prefix", "002348031234567", "NG", "+2348031234567"},
		{"bare international", "2348031234567", "NG", "+2348031234567"},
		{"kenyan local", "0712345678", "KE", "+254712345678"},
		{"uk local", "07911123456", "GB", "+447911123456"},
		{"us ten digit", "4155551234", "US", "+14155551234"},
		{"unknown country stays local", "0123456", "XX", "0123456"},
		{"empty", "", "NG", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatPhone(tt.raw, tt.country)
			if got != tt.want {
				t.Errorf("FormatPhone(%q, %q) = %q, want %q", tt.raw, tt.country, got, tt.want)
			}
		})
	}
}

func TestFormatPhone_Idempotent(t *testing.T) {
	inputs := []struct {
		raw     string
		country string
	}{
		{"08031234567", "NG"},
		{"0712 345 678", "KE"},
		{"+447911123456", "GB"},
		{"002348031234567", "NG"},
		{"0123456", "XX"},
	}

	for _, in := range inputs {
		once := FormatPhone(in.raw, in.country)
		twice := FormatPhone(once, in.country)
		if once != twice {
			t.Errorf("FormatPhone not idempotent for (%q, %q): first %q, second %q",
				in.raw, in.country, once, twice)
		}
	}
}
