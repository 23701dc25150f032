package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	today := testNow.Format("2006-01-02")
	cases := []struct {
		in, want string
	}{
		{"2024-03-05", "2024-03-05"},
		{"2024-3-5", "2024-03-05"},
		{"05/03/2024", "2024-03-05"},
		{"05-03-2024", "2024-03-05"},
		{"2024/03/05", "2024-03-05"},
		{"12/31/2024", "2024-12-31"}, // not a valid D/M/Y, read as US
		{"2024-03-05T10:30:00Z", "2024-03-05"},
		{"Mar 5, 2024", "2024-03-05"},
		{"29/02/2024", "2024-02-29"},
		{"", today},
		{"garbage", today},
		{"31/02/2024", today},
		{"2023-02-29", today},
	}
	for _, tc := range cases {
		if got := ParseDate(tc.in, testNow); got != tc.want {
			t.Errorf("ParseDate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMonthKey(t *testing.T) {
	k, err := ParseMonthKey("2024-11")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if k.String() != "2024-11" {
		t.Fatalf("unexpected key %s", k)
	}
	if got := k.AddMonths(2).String(); got != "2025-01" {
		t.Fatalf("AddMonths(2) = %s", got)
	}
	if got := k.Prev().String(); got != "2024-10" {
		t.Fatalf("Prev() = %s", got)
	}
	if k.DaysIn() != 30 {
		t.Fatalf("expected 30 days in November, got %d", k.DaysIn())
	}
	if full, err := ParseMonthKey("2024-11-23"); err != nil || full != k {
		t.Fatalf("expected date string to reduce to month, got %v %v", full, err)
	}
	for _, bad := range []string{"", "2024-13", "11/2024"} {
		if _, err := ParseMonthKey(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestDateAddMonthsClampsToMonthEnd(t *testing.T) {
	cases := []struct {
		from Date
		n    int
		want string
	}{
		{NewDate(2024, 1, 31), 1, "2024-02-29"},
		{NewDate(2023, 1, 31), 1, "2023-02-28"},
		{NewDate(2024, 1, 31), 2, "2024-03-31"},
		{NewDate(2024, 11, 15), 3, "2025-02-15"},
	}
	for _, tc := range cases {
		if got := tc.from.AddMonths(tc.n).ISO(); got != tc.want {
			t.Errorf("%s + %d = %s, want %s", tc.from.ISO(), tc.n, got, tc.want)
		}
	}
}

func TestDateAndMonthJSON(t *testing.T) {
	in := struct {
		D Date     `json:"d"`
		M MonthKey `json:"m"`
	}{NewDate(2024, 2, 9), MonthKey{Year: 2024, Month: time.February}}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"d":"2024-02-09","m":"2024-02"}` {
		t.Fatalf("unexpected json %s", b)
	}

	var out struct {
		D Date     `json:"d"`
		M MonthKey `json:"m"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.D.Equal(in.D.Time) || out.M != in.M {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
