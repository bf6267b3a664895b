package model

import (
	"testing"
	"time"
)

func TestParseDaySet(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string // canonical String() of the result
		wantErr bool
	}{
		{in: "every_day", want: "every_day"},
		{in: "everyday", want: "every_day"},
		{in: "Every Day", want: "every_day"},
		{in: "daily", want: "every_day"},
		{in: "weekdays", want: "weekdays"},
		{in: "weekend", want: "weekend"},
		{in: "monday,wednesday,friday", want: "monday,wednesday,friday"},
		{in: "mon,wed,fri", want: "monday,wednesday,friday"},
		{in: "MON, mon, Monday", want: "monday"}, // dedup
		{in: "", wantErr: true},
		{in: "funday", wantErr: true},
		{in: "mon,funday", wantErr: true},
		{in: " , , ", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseDaySet(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDaySet(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDaySet(%q): %v", tc.in, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("ParseDaySet(%q) = %q, want %q", tc.in, got.String(), tc.want)
		}
	}
}

func TestDaySetContains(t *testing.T) {
	t.Parallel()

	if !EveryDay().Contains(time.Sunday) || !EveryDay().Contains(time.Wednesday) {
		t.Fatal("every_day must contain all weekdays")
	}
	if !Weekdays().Contains(time.Monday) || !Weekdays().Contains(time.Friday) {
		t.Fatal("weekdays must contain monday..friday")
	}
	if Weekdays().Contains(time.Saturday) || Weekdays().Contains(time.Sunday) {
		t.Fatal("weekdays must not contain the weekend")
	}
	if !Weekend().Contains(time.Saturday) || !Weekend().Contains(time.Sunday) {
		t.Fatal("weekend must contain saturday and sunday")
	}
	if Weekend().Contains(time.Monday) {
		t.Fatal("weekend must not contain monday")
	}

	set := OnDays(time.Tuesday, time.Thursday)
	if !set.Contains(time.Tuesday) || !set.Contains(time.Thursday) {
		t.Fatal("explicit set must contain its days")
	}
	if set.Contains(time.Wednesday) {
		t.Fatal("explicit set must not contain other days")
	}

	if (DaySet{}).Contains(time.Monday) {
		t.Fatal("zero set matches nothing")
	}
	if !(DaySet{}).IsZero() {
		t.Fatal("zero set must report IsZero")
	}
}

func TestDaySetStringRoundtrip(t *testing.T) {
	t.Parallel()

	for _, s := range []DaySet{
		EveryDay(),
		Weekdays(),
		Weekend(),
		OnDays(time.Sunday),
		OnDays(time.Monday, time.Saturday),
	} {
		back, err := ParseDaySet(s.String())
		if err != nil {
			t.Fatalf("ParseDaySet(%q): %v", s.String(), err)
		}
		if back.String() != s.String() {
			t.Fatalf("roundtrip %q -> %q", s.String(), back.String())
		}
	}
}
