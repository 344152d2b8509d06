package core

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NowFunc is the clock used by services.
var NowFunc = time.Now // mockable

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Getwd tries to find the project root (the directory holding go.mod).
// go-test changes the working directory to the test package being run during tests,
// falls back to the current working directory when no go.mod is found (e.g. deployed binary).
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}

// Date returns midnight UTC of the given day. All calendar dates (due dates, delivery dates,
// period bounds..) are stored this way.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf returns the calendar date of `t` as seen in `loc`.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	return Date(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar date in `loc`.
func Today(loc *time.Location) time.Time {
	return DateOf(NowFunc(), loc)
}

// FirstOfNextMonth returns the first day of the month following `d`.
func FirstOfNextMonth(d time.Time) time.Time {
	return Date(d.Year(), d.Month()+1, 1)
}

// WeekdayIndex maps time.Weekday to a Monday-based index (Monday=0 .. Sunday=6).
func WeekdayIndex(d time.Time) int {
	return (int(d.Weekday()) + 6) % 7
}

// FormatDate formats dates the way they are shown to members.
func FormatDate(d time.Time) string {
	return d.Format("02.01.2006")
}

// FormatMoney formats amounts the way they are shown to members.
func FormatMoney(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1) + " €"
}
