package core

import (
	"encoding/json"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"150", 15000, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"1.٣", 0, false}, // Arabic-Indic digit
		{"1.５", 0, false}, // fullwidth digit
		{"٤٢", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestFormatINR(t *testing.T) {
	cases := map[int64]string{
		0:          "₹0.00",
		5:          "₹0.05",
		15000:      "₹150.00",
		99950:      "₹999.50",
		100000:     "₹1,000.00",
		12345678:   "₹1,23,456.78",
		1000000000: "₹1,00,00,000.00",
		-250:       "-₹2.50",
	}
	for in, want := range cases {
		if got := FormatINR(in); got != want {
			t.Errorf("FormatINR(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestMoneyJSONIsMajorUnits(t *testing.T) {
	b, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{Money{Cents: 10050}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"amount":100.5}` {
		t.Fatalf("unexpected json %s", b)
	}

	var in struct {
		Amount Money `json:"amount"`
	}
	if err := json.Unmarshal([]byte(`{"amount":42.25}`), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if in.Amount.Cents != 4225 {
		t.Fatalf("got %d cents", in.Amount.Cents)
	}
}
