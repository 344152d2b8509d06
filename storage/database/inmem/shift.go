package inmemdb

import (
	"context"

	"github.com/trezcool/tapir/core/shift"
)

type shiftRepository struct {
	db *DB
}

var _ shift.Repository = (*shiftRepository)(nil)

func NewShiftRepository(db *DB) shift.Repository {
	return &shiftRepository{db: db}
}

// Template Groups

func (repo *shiftRepository) CreateGroup(_ context.Context, g shift.TemplateGroup) (shift.TemplateGroup, error) {
	g.ID = newID()
	repo.db.shiftGroups.insert(g.ID, g)
	return g, nil
}

func (repo *shiftRepository) QueryGroups(context.Context) ([]shift.TemplateGroup, error) {
	groups := repo.db.shiftGroups.filter(nil)
	sortStable(groups, func(a, b shift.TemplateGroup) bool { return a.WeekIndex < b.WeekIndex })
	return groups, nil
}

func (repo *shiftRepository) DeleteGroup(_ context.Context, id string) error {
	if !repo.db.shiftGroups.delete(id) {
		return shift.ErrNotFound
	}
	for _, t := range repo.db.shiftTemplates.filter(func(t shift.Template) bool { return t.GroupID == id }) {
		repo.deleteTemplate(t.ID)
	}
	return nil
}

// Templates

func (repo *shiftRepository) CreateTemplate(_ context.Context, t shift.Template) (shift.Template, error) {
	t.ID = newID()
	repo.db.shiftTemplates.insert(t.ID, t)
	return t, nil
}

func (repo *shiftRepository) UpdateTemplate(_ context.Context, t shift.Template) (shift.Template, error) {
	if !repo.db.shiftTemplates.update(t.ID, t) {
		return shift.Template{}, shift.ErrNotFound
	}
	return t, nil
}

func (repo *shiftRepository) GetTemplate(_ context.Context, id string) (shift.Template, error) {
	if t, ok := repo.db.shiftTemplates.get(id); ok {
		return t, nil
	}
	return shift.Template{}, shift.ErrNotFound
}

func (repo *shiftRepository) QueryTemplates(_ context.Context, groupID string) ([]shift.Template, error) {
	templates := repo.db.shiftTemplates.filter(func(t shift.Template) bool { return groupID == "" || t.GroupID == groupID })
	sortStable(templates, func(a, b shift.Template) bool {
		if a.Weekday != b.Weekday {
			return a.Weekday < b.Weekday
		}
		return a.StartTime < b.StartTime
	})
	return templates, nil
}

func (repo *shiftRepository) deleteTemplate(id string) bool {
	if !repo.db.shiftTemplates.delete(id) {
		return false
	}
	for _, at := range repo.db.attendanceTemplates.filter(func(at shift.AttendanceTemplate) bool { return at.TemplateID == id }) {
		repo.db.attendanceTemplates.delete(at.ID)
	}
	for _, s := range repo.db.shifts.filter(func(s shift.Shift) bool { return s.TemplateID == id }) {
		s.TemplateID = ""
		repo.db.shifts.update(s.ID, s)
	}
	return true
}

func (repo *shiftRepository) DeleteTemplate(_ context.Context, id string) error {
	if !repo.deleteTemplate(id) {
		return shift.ErrNotFound
	}
	return nil
}

// Attendance Templates

func (repo *shiftRepository) CreateAttendanceTemplate(_ context.Context, at shift.AttendanceTemplate) (shift.AttendanceTemplate, error) {
	at.ID = newID()
	repo.db.attendanceTemplates.insert(at.ID, at)
	return at, nil
}

func (repo *shiftRepository) QueryAttendanceTemplates(_ context.Context, templateID string) ([]shift.AttendanceTemplate, error) {
	return repo.db.attendanceTemplates.filter(func(at shift.AttendanceTemplate) bool {
		return templateID == "" || at.TemplateID == templateID
	}), nil
}

func (repo *shiftRepository) DeleteAttendanceTemplate(_ context.Context, id string) error {
	if !repo.db.attendanceTemplates.delete(id) {
		return shift.ErrNotFound
	}
	return nil
}

// Shifts

func (repo *shiftRepository) CreateShift(_ context.Context, s shift.Shift) (shift.Shift, error) {
	s.ID = newID()
	repo.db.shifts.insert(s.ID, s)
	return s, nil
}

func (repo *shiftRepository) GetShift(_ context.Context, id string) (shift.Shift, error) {
	if s, ok := repo.db.shifts.get(id); ok {
		return s, nil
	}
	return shift.Shift{}, shift.ErrNotFound
}

func (repo *shiftRepository) QueryShifts(_ context.Context, filter *shift.ShiftFilter) ([]shift.Shift, error) {
	shifts := repo.db.shifts.filter(filter.Match)
	sortStable(shifts, func(a, b shift.Shift) bool { return a.StartTime.Before(b.StartTime) })
	return shifts, nil
}

// Attendances

func (repo *shiftRepository) CreateAttendance(_ context.Context, a shift.Attendance) (shift.Attendance, error) {
	a.ID = newID()
	repo.db.attendances.insert(a.ID, a)
	return a, nil
}

func (repo *shiftRepository) UpdateAttendance(_ context.Context, a shift.Attendance) (shift.Attendance, error) {
	if !repo.db.attendances.update(a.ID, a) {
		return shift.Attendance{}, shift.ErrNotFound
	}
	return a, nil
}

func (repo *shiftRepository) GetAttendance(_ context.Context, id string) (shift.Attendance, error) {
	if a, ok := repo.db.attendances.get(id); ok {
		return a, nil
	}
	return shift.Attendance{}, shift.ErrNotFound
}

func (repo *shiftRepository) QueryAttendances(_ context.Context, filter *shift.AttendanceFilter) ([]shift.Attendance, error) {
	return repo.db.attendances.filter(filter.Match), nil
}
