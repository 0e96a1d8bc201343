package duration

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		wantMs  int64
		wantErr bool
	}{
		{in: "1d2h30m", wantMs: 24*60*60*1000 + 2*60*60*1000 + 30*60*1000},
		{in: "30m", wantMs: 30 * 60 * 1000},
		{in: "10s", wantMs: 10 * 1000},
		{in: "1d", wantMs: 24 * 60 * 60 * 1000},
		{in: "2h30m10s", wantMs: 2*60*60*1000 + 30*60*1000 + 10*1000},
		{in: "", wantErr: true},
		{in: "1h1d", wantErr: true},     // out of order
		{in: "1h1h", wantErr: true},     // repeated unit
		{in: "-5m", wantErr: true},      // negative
		{in: "1.5h", wantErr: true},     // fractional
		{in: "1 h", wantErr: true},      // spaces
		{in: "5w", wantErr: true},       // unknown unit
		{in: "abc", wantErr: true},
	}

	for _, c := range cases {
		got, err := Parse(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %d", c.in, got)
			} else if !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("Parse(%q): expected ErrInvalidFormat, got %v", c.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.wantMs {
			t.Errorf("Parse(%q) = %d, want %d", c.in, got, c.wantMs)
		}
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{ms: 0, want: "0s"},
		{ms: 1000, want: "1s"},
		{ms: 60 * 1000, want: "1m"},
		{ms: 60 * 60 * 1000, want: "1h"},
		{ms: 24 * 60 * 60 * 1000, want: "1d"},
		{ms: 24*60*60*1000 + 2*60*60*1000 + 30*60*1000, want: "1d2h30m"},
	}
	for _, c := range cases {
		if got := Format(c.ms); got != c.want {
			t.Errorf("Format(%d) = %q, want %q", c.ms, got, c.want)
		}
	}
}

// TestRoundTrip verifies P1: format(parse(x)) re-parses to the same
// milliseconds for every valid input. Carry normalization (60m formats as
// 1h) is checked by TestFormatCarry.
func TestRoundTrip(t *testing.T) {
	inputs := []string{"1d2h30m", "30m", "10s", "1d", "2h30m10s", "23h59m59s"}
	for _, in := range inputs {
		ms, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		formatted := Format(ms)
		ms2, err := Parse(formatted)
		if err != nil {
			t.Fatalf("Parse(Format(Parse(%q))) = Parse(%q): %v", in, formatted, err)
		}
		if ms != ms2 {
			t.Errorf("round trip mismatch for %q: %d != %d (formatted %q)", in, ms, ms2, formatted)
		}
	}
}

func TestFormatCarry(t *testing.T) {
	// 60m should normalize to 1h on format.
	ms, err := Parse("60m")
	if err != nil {
		t.Fatalf("Parse(60m): %v", err)
	}
	if got := Format(ms); got != "1h" {
		t.Errorf("Format(Parse(60m)) = %q, want %q", got, "1h")
	}
}
