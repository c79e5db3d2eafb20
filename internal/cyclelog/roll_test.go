package cyclelog

import (
	"reflect"
	"testing"
	"time"
)

func TestParseRetention(t *testing.T) {
	cases := []struct {
		in   string
		want Retention
	}{
		{"", Retention{Roll: Daily}},
		{"0", Retention{Roll: Daily}},
		{"10m", Retention{Roll: Minutely, Keep: 10}},
		{"12h", Retention{Roll: Hourly, Keep: 12}},
		{" 4d ", Retention{Roll: Daily, Keep: 4}},
	}
	for _, c := range cases {
		got, err := ParseRetention(c.in)
		if err != nil {
			t.Fatalf("%q: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("%q: got %+v want %+v", c.in, got, c.want)
		}
	}
	for _, bad := range []string{"d", "4w", "-1h", "x2h", "1.5d"} {
		if _, err := ParseRetention(bad); err == nil {
			t.Fatalf("%q should fail", bad)
		}
	}
}

func TestRetentionString(t *testing.T) {
	if s := (Retention{Roll: Daily}).String(); s != "forever" {
		t.Fatalf("got %q", s)
	}
	if s := (Retention{Roll: Hourly, Keep: 12}).String(); s != "12 x HOURLY" {
		t.Fatalf("got %q", s)
	}
}

func TestFileNameRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 13, 47, 12, 0, time.UTC)
	want := map[RollCycle]string{
		Minutely: "20260301-1347.cycle",
		Hourly:   "20260301-13.cycle",
		Daily:    "20260301.cycle",
	}
	for roll, name := range want {
		c := roll.Cycle(now)
		if got := roll.FileName(c); got != name {
			t.Fatalf("%s: file name %q want %q", roll, got, name)
		}
		back, err := roll.ParseFileName(name)
		if err != nil {
			t.Fatalf("%s: parse: %v", roll, err)
		}
		if back != c {
			t.Fatalf("%s: parsed %d want %d", roll, back, c)
		}
		if !roll.Start(c).Equal(now.Truncate(roll.Duration())) {
			t.Fatalf("%s: start %s", roll, roll.Start(c))
		}
	}
	if _, err := Daily.ParseFileName("20260301.index"); err == nil {
		t.Fatalf("index file accepted as a cycle")
	}
	if _, err := Daily.ParseFileName("garbage.cycle"); err == nil {
		t.Fatalf("garbage accepted")
	}
}

func TestFileNamesSortInCycleOrder(t *testing.T) {
	a := Hourly.FileName(Hourly.Cycle(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))
	b := Hourly.FileName(Hourly.Cycle(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
	if !(a < b) {
		t.Fatalf("%q should sort before %q", a, b)
	}
}

func TestExpiredCycles(t *testing.T) {
	cycles := []int64{1, 2, 3, 4, 5}
	if got := ExpiredCycles(cycles, 5, 2); !reflect.DeepEqual(got, []int64{1, 2, 3}) {
		t.Fatalf("keep 2: %v", got)
	}
	if got := ExpiredCycles(cycles, 5, 5); got != nil {
		t.Fatalf("keep 5: %v", got)
	}
	if got := ExpiredCycles(cycles, 5, 0); got != nil {
		t.Fatalf("keep 0 must keep all: %v", got)
	}
	// a gap in the cycles does not matter, only the window does
	if got := ExpiredCycles([]int64{1, 9}, 10, 2); !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("gap: %v", got)
	}
	if got := ExpiredCycles(nil, 10, 1); got != nil {
		t.Fatalf("empty: %v", got)
	}
}

func TestKeepIn(t *testing.T) {
	tests := []struct {
		retention string
		roll      RollCycle
		want      int
	}{
		{"4d", Daily, 4},
		{"4d", Hourly, 96},
		{"12h", Daily, 1},
		{"90m", Hourly, 2},
		{"10m", Minutely, 10},
		{"0", Minutely, 0},
	}
	for _, tt := range tests {
		r, err := ParseRetention(tt.retention)
		if err != nil {
			t.Fatalf("%s: %v", tt.retention, err)
		}
		if got := r.KeepIn(tt.roll); got != tt.want {
			t.Fatalf("%s in %s = %d, want %d", tt.retention, tt.roll, got, tt.want)
		}
	}
}
