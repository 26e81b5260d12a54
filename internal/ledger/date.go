package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DateFormat is the storage and display format of a Date.
	DateFormat = "2006-01-02"
	// CompactDateFormat is the 8-digit form the broker uses on the wire.
	CompactDateFormat = "20060102"
)

// Date is a calendar day with no time component.
type Date struct {
	y int
	m time.Month
	d int
}

// NewDate returns a normalized Date for the given year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{t.Year(), t.Month(), t.Day()}
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date { return NewDate(t.Date()) }

// Today returns the current date in loc.
func Today(loc *time.Location) Date { return DateOf(time.Now().In(loc)) }

// ParseDate parses an ISO-8601 day (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// ParseCompactDate parses an 8-digit day (20060102).
func ParseCompactDate(s string) (Date, error) {
	if len(s) != 8 {
		return Date{}, fmt.Errorf("parse date %q: want 8 digits", s)
	}
	t, err := time.Parse(CompactDateFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// Year returns the year of d.
func (d Date) Year() int { return d.y }

// Month returns the month of d.
func (d Date) Month() time.Month { return d.m }

// Day returns the day of the month of d.
func (d Date) Day() int { return d.d }

// Weekday returns the day of the week of d.
func (d Date) Weekday() time.Weekday { return d.time().Weekday() }

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d.y == 0 && d.m == 0 && d.d == 0 }

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date { return NewDate(d.y, d.m, d.d+n) }

// Before reports whether d is before x.
func (d Date) Before(x Date) bool { return d.time().Before(x.time()) }

// After reports whether d is after x.
func (d Date) After(x Date) bool { return d.time().After(x.time()) }

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after x.
func (d Date) Compare(x Date) int { return d.time().Compare(x.time()) }

// StartOfWeek returns the Monday of d's week.
func (d Date) StartOfWeek() Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

// StartOfMonth returns the first day of d's month.
func (d Date) StartOfMonth() Date { return NewDate(d.y, d.m, 1) }

// StartOfYear returns January 1st of d's year.
func (d Date) StartOfYear() Date { return NewDate(d.y, time.January, 1) }

// EndOfMonth returns the last day of d's month.
func (d Date) EndOfMonth() Date { return NewDate(d.y, d.m+1, 0) }

func (d Date) String() string { return d.time().Format(DateFormat) }

// Compact formats d as YYYYMMDD.
func (d Date) Compact() string { return d.time().Format(CompactDateFormat) }

// NullDate is a Date that may be absent.
type NullDate struct {
	Date  Date
	Valid bool
}

// NewNullDate returns a present NullDate.
func NewNullDate(d Date) NullDate { return NullDate{Date: d, Valid: true} }

// Key is the string used to group and order rows by date; absent dates sort last.
func (n NullDate) Key() string {
	if !n.Valid {
		return ""
	}
	return n.Date.String()
}

func (n NullDate) String() string { return n.Key() }

func (n NullDate) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Date.String())
}

func (n *NullDate) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*n = NullDate{}
		return nil
	}
	d, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*n = NewNullDate(d)
	return nil
}

// Scan implements sql.Scanner.
func (n *NullDate) Scan(value any) error {
	var s string
	switch v := value.(type) {
	case nil:
		*n = NullDate{}
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	case time.Time:
		*n = NewNullDate(DateOf(v))
		return nil
	default:
		return fmt.Errorf("scan date: unsupported type %T", value)
	}
	if s == "" {
		*n = NullDate{}
		return nil
	}
	if len(s) > len(DateFormat) {
		s = s[:len(DateFormat)]
	}
	d, err := ParseDate(s)
	if err != nil {
		return err
	}
	*n = NewNullDate(d)
	return nil
}

// Value implements driver.Valuer.
func (n NullDate) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Date.String(), nil
}
