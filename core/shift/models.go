package shift

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tapir/core"
)

type State int

const (
	StatePending State = iota + 1
	StateDone
	StateCancelled
	StateMissed
	StateMissedExcused
	StateLookingForStandIn
)

var stateNames = map[State]string{
	StatePending:           "pending",
	StateDone:              "done",
	StateCancelled:         "cancelled",
	StateMissed:            "missed",
	StateMissedExcused:     "missed_excused",
	StateLookingForStandIn: "looking_for_stand_in",
}

func (s State) String() string { return stateNames[s] }

func (s State) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// slot kinds & block backgrounds
const (
	SlotEmpty    = "empty"
	SlotSingle   = "single"
	SlotTemplate = "template"

	BackgroundDanger  = "danger"
	BackgroundWarning = "warning"
	BackgroundSuccess = "success"
)

// referenceMonday is the first Monday of week index 1.
var referenceMonday = core.Date(2021, time.January, 4)

var weekdayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// TemplateGroup is a set of shift templates repeated every `number of groups` weeks (e.g. "Week A").
type TemplateGroup struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	WeekIndex int    `json:"week_index"`
}

// Character returns the circled letter of groups named "... A" to "... D".
func (g TemplateGroup) Character() string {
	return GroupCharacter(g.Name)
}

func GroupCharacter(name string) string {
	if name == "" {
		return ""
	}
	switch name[len(name)-1] {
	case 'A':
		return "Ⓐ"
	case 'B':
		return "Ⓑ"
	case 'C':
		return "Ⓒ"
	case 'D':
		return "Ⓓ"
	}
	return ""
}

// WeekIndex returns the 1-based index of the group in charge of the week of `monday`, out of `numGroups`.
func WeekIndex(monday time.Time, numGroups int) int {
	if numGroups <= 0 {
		return 0
	}
	weeks := int(monday.Sub(referenceMonday).Hours()) / (24 * 7)
	idx := weeks % numGroups
	if idx < 0 {
		idx += numGroups
	}
	return idx + 1
}

// Monday returns the Monday of the week of `d`.
func Monday(d time.Time) time.Time {
	return d.AddDate(0, 0, -core.WeekdayIndex(d))
}

type NewGroup struct {
	Name      string `json:"name" validate:"required,max=255"`
	WeekIndex int    `json:"week_index" validate:"required,min=1"`
}

func (ng *NewGroup) Validate(validate *validator.Validate) error {
	ng.Name = core.CleanString(ng.Name)
	return validate.Struct(ng)
}

// Template is a recurring shift; StartTime & EndTime are local "HH:MM" clock times.
type Template struct {
	ID        string `json:"id"`
	GroupID   string `json:"group_id"`
	Name      string `json:"name"`
	Weekday   int    `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	NumSlots  int    `json:"num_slots"`
}

func (t Template) WeekdayName() string { return weekdayNames[t.Weekday] }

// ShiftTimes returns the start & end of the shift of the template in the week of `monday`.
func (t Template) ShiftTimes(monday time.Time, loc *time.Location) (start, end time.Time, err error) {
	day := monday.AddDate(0, 0, t.Weekday)
	if start, err = clockTime(day, t.StartTime, loc); err != nil {
		return start, end, err
	}
	end, err = clockTime(day, t.EndTime, loc)
	return start, end, err
}

func clockTime(day time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	ct, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock time %q", hhmm)
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(day.Year(), day.Month(), day.Day(), ct.Hour(), ct.Minute(), 0, 0, loc).UTC(), nil
}

type SaveTemplate struct {
	GroupID   string `json:"group_id" validate:"required"`
	Name      string `json:"name" validate:"required,max=255"`
	Weekday   int    `json:"weekday" validate:"min=0,max=6"`
	StartTime string `json:"start_time" validate:"required,clock"`
	EndTime   string `json:"end_time" validate:"required,clock"`
	NumSlots  int    `json:"num_slots" validate:"min=0,max=100"`
}

func (st *SaveTemplate) Validate(validate *validator.Validate) error {
	st.Name = core.CleanString(st.Name)
	st.StartTime = core.CleanString(st.StartTime)
	st.EndTime = core.CleanString(st.EndTime)
	if err := validate.Struct(st); err != nil {
		return err
	}
	if st.EndTime <= st.StartTime {
		return core.NewFieldError("end_time", "must be after the start time")
	}
	return nil
}

// AttendanceTemplate registers a member on every shift created from a template.
type AttendanceTemplate struct {
	ID         string `json:"id"`
	TemplateID string `json:"template_id"`
	MemberID   string `json:"member_id"`
}

type Shift struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"template_id"` // "" for a one-off shift
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	NumSlots   int       `json:"num_slots"`
}

type Attendance struct {
	ID            string    `json:"id"`
	ShiftID       string    `json:"shift_id"`
	MemberID      string    `json:"member_id"`
	State         State     `json:"state"`
	ExcusedReason string    `json:"excused_reason"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsValid reports whether the attendance still takes a slot.
func (a Attendance) IsValid() bool { return a.State != StateCancelled }

// ValidAttendances filters the attendances taking a slot, in their original order.
func ValidAttendances(atts []Attendance) []Attendance {
	res := make([]Attendance, 0, len(atts))
	for _, a := range atts {
		if a.IsValid() {
			res = append(res, a)
		}
	}
	return res
}

type UpdateAttendance struct {
	State         State  `json:"state" validate:"required"`
	ExcusedReason string `json:"excused_reason"`
}

func (ua *UpdateAttendance) Validate(validate *validator.Validate) error {
	ua.ExcusedReason = core.CleanString(ua.ExcusedReason)
	if err := validate.Struct(ua); err != nil {
		return err
	}
	if !ua.State.Valid() {
		return core.NewFieldError("state", "unknown state")
	}
	if ua.State == StateMissedExcused && ua.ExcusedReason == "" {
		return core.NewFieldError("excused_reason", "please give a reason")
	}
	return nil
}

type ShiftFilter struct {
	From       time.Time
	To         time.Time // excluded
	TemplateID string
}

func (f *ShiftFilter) Match(s Shift) bool {
	if f == nil {
		return true
	}
	return (f.From.IsZero() || !s.StartTime.Before(f.From)) &&
		(f.To.IsZero() || s.StartTime.Before(f.To)) &&
		(f.TemplateID == "" || s.TemplateID == f.TemplateID)
}

type AttendanceFilter struct {
	ShiftIDs []string // nil matches any shift, an empty slice none
	MemberID string
}

func (f *AttendanceFilter) Match(a Attendance) bool {
	if f == nil {
		return true
	}
	if f.MemberID != "" && a.MemberID != f.MemberID {
		return false
	}
	if f.ShiftIDs == nil {
		return true
	}
	for _, id := range f.ShiftIDs {
		if id == a.ShiftID {
			return true
		}
	}
	return false
}

// Block summarizes the occupation of a shift or shift template.
type Block struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	NumSlots      int        `json:"num_slots"`
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	StartDate     *time.Time `json:"start_date"`
	Weekday       string     `json:"weekday"`
	Attendances   []string   `json:"attendances"`
	TemplateGroup string     `json:"template_group"`
	Background    string     `json:"background"`
	IsTemplate    bool       `json:"is_template"`
}

func background(taken, slots int) string {
	switch {
	case taken == 0:
		return BackgroundDanger
	case taken < slots:
		return BackgroundWarning
	}
	return BackgroundSuccess
}

func slots(n int) []string {
	res := make([]string, n)
	for i := range res {
		res[i] = SlotEmpty
	}
	return res
}

// ShiftBlock summarizes a shift: a slot per attendance, "template" when the attendee holds an attendance
// template of the shift template. `group` is nil for one-off shifts.
func ShiftBlock(s Shift, atts []Attendance, templateMembers map[string]bool, group *TemplateGroup, loc *time.Location) Block {
	valid := ValidAttendances(atts)
	b := Block{
		ID:          s.ID,
		Name:        s.Name,
		NumSlots:    s.NumSlots,
		StartTime:   s.StartTime.In(loc).Format("15:04"),
		EndTime:     s.EndTime.In(loc).Format("15:04"),
		StartDate:   &s.StartTime,
		Attendances: slots(s.NumSlots),
		Background:  background(len(valid), s.NumSlots),
	}
	for i, a := range valid {
		if i >= len(b.Attendances) {
			break
		}
		b.Attendances[i] = SlotSingle
		if s.TemplateID != "" && templateMembers[a.MemberID] {
			b.Attendances[i] = SlotTemplate
		}
	}
	if group != nil {
		b.TemplateGroup = group.Character()
	}
	return b
}

// TemplateBlock summarizes a shift template holding `numAttendanceTemplates` attendance templates.
func TemplateBlock(t Template, numAttendanceTemplates int, group TemplateGroup) Block {
	b := Block{
		ID:            t.ID,
		Name:          t.Name,
		NumSlots:      t.NumSlots,
		StartTime:     t.StartTime,
		EndTime:       t.EndTime,
		Weekday:       t.WeekdayName(),
		Attendances:   slots(t.NumSlots),
		TemplateGroup: group.Character(),
		Background:    background(numAttendanceTemplates, t.NumSlots),
		IsTemplate:    true,
	}
	for i := 0; i < numAttendanceTemplates && i < len(b.Attendances); i++ {
		b.Attendances[i] = SlotTemplate
	}
	return b
}

func isClock(s string) bool {
	if len(s) != 5 || strings.IndexByte(s, ':') != 2 {
		return false
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}
