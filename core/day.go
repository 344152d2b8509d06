package core

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

const dayLayout = "2006-01-02"

// Day is a calendar date read from & written to clients as YYYY-MM-DD.
type Day struct {
	time.Time
}

func NewDay(t time.Time) Day {
	if t.IsZero() {
		return Day{}
	}
	return Day{DateOf(t, nil)}
}

func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Day{}, nil
	}
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, errors.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return Day{t}, nil
}

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dayLayout)
}

func (d Day) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Day) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		*d = Day{}
		return nil
	}
	day, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = day
	return nil
}

// UnmarshalParam lets echo bind query & path params into a Day.
func (d *Day) UnmarshalParam(src string) error {
	day, err := ParseDay(src)
	if err != nil {
		return err
	}
	*d = day
	return nil
}
