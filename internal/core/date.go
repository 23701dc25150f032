package core

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const isoLayout = "2006-01-02"

type (
	Date struct {
		time.Time
	}

	// MonthKey identifies a ledger partition; it renders as YYYY-MM.
	MonthKey struct {
		Year  int
		Month time.Month
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseISODate parses a strict YYYY-MM-DD string.
func ParseISODate(s string) (Date, error) {
	t, err := time.Parse(isoLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// ISO renders the date as YYYY-MM-DD.
func (d Date) ISO() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(isoLayout)
}

// AddMonths shifts d by n calendar months, clamping to the last day of the
// target month (Jan 31 + 1 month = Feb 28/29).
func (d Date) AddMonths(n int) Date {
	target := MonthKeyOf(d.Time).AddMonths(n)
	day := d.Day()
	if last := target.DaysIn(); day > last {
		day = last
	}
	return NewDate(target.Year, int(target.Month), day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.ISO()), nil
}

// MarshalJSON shadows the promoted time.Time encoder so dates travel as YYYY-MM-DD.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.ISO())), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		if string(b) == "null" {
			*d = Date{}
			return nil
		}
		return fmt.Errorf("%w: %s", ErrInvalidDate, b)
	}
	return d.UnmarshalText([]byte(s))
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseISODate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// EndOfDay returns the last instant of t's calendar day in UTC.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
}

// MonthKeyOf returns the month containing t.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// ParseMonthKey parses YYYY-MM (a trailing -DD is tolerated and ignored).
func ParseMonthKey(s string) (MonthKey, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 10 {
		s = s[:7]
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return MonthKey{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthKeyOf(t), nil
}

func (k MonthKey) String() string {
	if k.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

func (k MonthKey) IsZero() bool {
	return k.Year == 0 && k.Month == 0
}

func (k MonthKey) AddMonths(n int) MonthKey {
	return MonthKeyOf(time.Date(k.Year, k.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC))
}

func (k MonthKey) Prev() MonthKey {
	return k.AddMonths(-1)
}

func (k MonthKey) FirstDay() Date {
	return NewDate(k.Year, int(k.Month), 1)
}

// DaysIn returns the number of days in the month.
func (k MonthKey) DaysIn() int {
	return time.Date(k.Year, k.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (k MonthKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MonthKey) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*k = MonthKey{}
		return nil
	}
	parsed, err := ParseMonthKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

type datePattern struct {
	re               *regexp.Regexp
	year, month, day int // submatch indexes
}

var datePatterns = []datePattern{
	{regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`), 1, 2, 3},
	{regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`), 3, 2, 1},
	{regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`), 3, 2, 1},
	{regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`), 1, 2, 3},
}

var genericLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02 Jan 06",
	"01/02/2006",
	"20060102",
}

// NormalizeDate reads a date in any of the supported layouts. It is total:
// input that matches nothing yields the calendar day of now.
func NormalizeDate(s string, now time.Time) Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return DateOf(now)
	}
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		y, _ := strconv.Atoi(m[p.year])
		mo, _ := strconv.Atoi(m[p.month])
		d, _ := strconv.Atoi(m[p.day])
		if validCalendarDay(y, mo, d) {
			return NewDate(y, mo, d)
		}
	}
	for _, layout := range genericLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t)
		}
	}
	return DateOf(now)
}

// ParseDate is NormalizeDate rendered as YYYY-MM-DD.
func ParseDate(s string, now time.Time) string {
	return NormalizeDate(s, now).ISO()
}

func validCalendarDay(y, m, d int) bool {
	if m < 1 || m > 12 || d < 1 {
		return false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return t.Year() == y && int(t.Month()) == m && t.Day() == d
}
