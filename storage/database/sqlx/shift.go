package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tapir/core/shift"
)

type shiftGroupRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	WeekIndex int    `db:"week_index"`
}

type shiftTemplateRow struct {
	ID        string `db:"id"`
	GroupID   string `db:"group_id"`
	Name      string `db:"name"`
	Weekday   int    `db:"weekday"`
	StartTime string `db:"start_time"`
	EndTime   string `db:"end_time"`
	NumSlots  int    `db:"num_slots"`
}

func (r shiftTemplateRow) toTemplate() shift.Template {
	return shift.Template(r)
}

type attendanceTemplateRow struct {
	ID         string `db:"id"`
	TemplateID string `db:"shift_template_id"`
	MemberID   string `db:"member_id"`
}

type shiftRow struct {
	ID         string      `db:"id"`
	TemplateID null.String `db:"shift_template_id"`
	Name       string      `db:"name"`
	StartTime  time.Time   `db:"start_time"`
	EndTime    time.Time   `db:"end_time"`
	NumSlots   int         `db:"num_slots"`
}

func (r shiftRow) toShift() shift.Shift {
	return shift.Shift{
		ID:         r.ID,
		TemplateID: r.TemplateID.String,
		Name:       r.Name,
		StartTime:  r.StartTime.UTC(),
		EndTime:    r.EndTime.UTC(),
		NumSlots:   r.NumSlots,
	}
}

type attendanceRow struct {
	ID            string    `db:"id"`
	ShiftID       string    `db:"shift_id"`
	MemberID      string    `db:"member_id"`
	State         int       `db:"state"`
	ExcusedReason string    `db:"excused_reason"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r attendanceRow) toAttendance() shift.Attendance {
	return shift.Attendance{
		ID:            r.ID,
		ShiftID:       r.ShiftID,
		MemberID:      r.MemberID,
		State:         shift.State(r.State),
		ExcusedReason: r.ExcusedReason,
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

type shiftRepository struct {
	repository
}

var _ shift.Repository = (*shiftRepository)(nil)

func NewShiftRepository(db *sqlx.DB) shift.Repository {
	return &shiftRepository{repository{db: db}}
}

// Template Groups

func (repo *shiftRepository) CreateGroup(ctx context.Context, g shift.TemplateGroup) (shift.TemplateGroup, error) {
	g.ID = newID()
	_, err := repo.exec(ctx).ExecContext(ctx,
		"INSERT INTO shift_template_groups (id, name, week_index) VALUES ($1, $2, $3)", g.ID, g.Name, g.WeekIndex)
	if err != nil {
		return shift.TemplateGroup{}, errors.Wrap(err, "inserting shift template group")
	}
	return g, nil
}

func (repo *shiftRepository) QueryGroups(ctx context.Context) ([]shift.TemplateGroup, error) {
	var rows []shiftGroupRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		"SELECT id, name, week_index FROM shift_template_groups ORDER BY week_index"); err != nil {
		return nil, errors.Wrap(err, "querying shift template groups")
	}
	groups := make([]shift.TemplateGroup, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, shift.TemplateGroup(r))
	}
	return groups, nil
}

func (repo *shiftRepository) DeleteGroup(ctx context.Context, id string) error {
	res, err := repo.exec(ctx).ExecContext(ctx, "DELETE FROM shift_template_groups WHERE id = $1", id)
	return affected(res, err, shift.ErrNotFound)
}

// Templates

const shiftTemplateColumns = "id, group_id, name, weekday, start_time, end_time, num_slots"

func (repo *shiftRepository) CreateTemplate(ctx context.Context, t shift.Template) (shift.Template, error) {
	t.ID = newID()
	_, err := sqlx.NamedExecContext(ctx, repo.exec(ctx), `
		INSERT INTO shift_templates (`+shiftTemplateColumns+`)
		VALUES (:id, :group_id, :name, :weekday, :start_time, :end_time, :num_slots)`,
		shiftTemplateRow(t),
	)
	if err != nil {
		return shift.Template{}, errors.Wrap(err, "inserting shift template")
	}
	return t, nil
}

func (repo *shiftRepository) UpdateTemplate(ctx context.Context, t shift.Template) (shift.Template, error) {
	res, err := sqlx.NamedExecContext(ctx, repo.exec(ctx), `
		UPDATE shift_templates SET group_id = :group_id, name = :name, weekday = :weekday, start_time = :start_time,
			end_time = :end_time, num_slots = :num_slots
		WHERE id = :id`,
		shiftTemplateRow(t),
	)
	if err = affected(res, err, shift.ErrNotFound); err != nil {
		return shift.Template{}, err
	}
	return t, nil
}

func (repo *shiftRepository) GetTemplate(ctx context.Context, id string) (shift.Template, error) {
	var row shiftTemplateRow
	if err := sqlx.GetContext(ctx, repo.exec(ctx), &row,
		"SELECT "+shiftTemplateColumns+" FROM shift_templates WHERE id = $1", id); err != nil {
		return shift.Template{}, trapNoRowsErr(err, shift.ErrNotFound)
	}
	return row.toTemplate(), nil
}

func (repo *shiftRepository) QueryTemplates(ctx context.Context, groupID string) ([]shift.Template, error) {
	w := new(where)
	if groupID != "" {
		w.add("group_id = ?", groupID)
	}

	var rows []shiftTemplateRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		w.query("SELECT "+shiftTemplateColumns+" FROM shift_templates", " ORDER BY weekday, start_time"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying shift templates")
	}
	templates := make([]shift.Template, 0, len(rows))
	for _, r := range rows {
		templates = append(templates, r.toTemplate())
	}
	return templates, nil
}

func (repo *shiftRepository) DeleteTemplate(ctx context.Context, id string) error {
	res, err := repo.exec(ctx).ExecContext(ctx, "DELETE FROM shift_templates WHERE id = $1", id)
	return affected(res, err, shift.ErrNotFound)
}

// Attendance Templates

func (repo *shiftRepository) CreateAttendanceTemplate(ctx context.Context, at shift.AttendanceTemplate) (shift.AttendanceTemplate, error) {
	at.ID = newID()
	_, err := repo.exec(ctx).ExecContext(ctx,
		"INSERT INTO shift_attendance_templates (id, shift_template_id, member_id) VALUES ($1, $2, $3)",
		at.ID, at.TemplateID, at.MemberID,
	)
	if err != nil {
		return shift.AttendanceTemplate{}, errors.Wrap(err, "inserting attendance template")
	}
	return at, nil
}

func (repo *shiftRepository) QueryAttendanceTemplates(ctx context.Context, templateID string) ([]shift.AttendanceTemplate, error) {
	w := new(where)
	if templateID != "" {
		w.add("shift_template_id = ?", templateID)
	}

	var rows []attendanceTemplateRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		w.query("SELECT id, shift_template_id, member_id FROM shift_attendance_templates", ""), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying attendance templates")
	}
	ats := make([]shift.AttendanceTemplate, 0, len(rows))
	for _, r := range rows {
		ats = append(ats, shift.AttendanceTemplate(r))
	}
	return ats, nil
}

func (repo *shiftRepository) DeleteAttendanceTemplate(ctx context.Context, id string) error {
	res, err := repo.exec(ctx).ExecContext(ctx, "DELETE FROM shift_attendance_templates WHERE id = $1", id)
	return affected(res, err, shift.ErrNotFound)
}

// Shifts

const shiftColumns = "id, shift_template_id, name, start_time, end_time, num_slots"

func (repo *shiftRepository) CreateShift(ctx context.Context, s shift.Shift) (shift.Shift, error) {
	s.ID = newID()
	_, err := repo.exec(ctx).ExecContext(ctx, `
		INSERT INTO shifts (`+shiftColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, nullString(s.TemplateID), s.Name, s.StartTime.UTC(), s.EndTime.UTC(), s.NumSlots,
	)
	if err != nil {
		return shift.Shift{}, errors.Wrap(err, "inserting shift")
	}
	return s, nil
}

func (repo *shiftRepository) GetShift(ctx context.Context, id string) (shift.Shift, error) {
	var row shiftRow
	if err := sqlx.GetContext(ctx, repo.exec(ctx), &row, "SELECT "+shiftColumns+" FROM shifts WHERE id = $1", id); err != nil {
		return shift.Shift{}, trapNoRowsErr(err, shift.ErrNotFound)
	}
	return row.toShift(), nil
}

func (repo *shiftRepository) QueryShifts(ctx context.Context, filter *shift.ShiftFilter) ([]shift.Shift, error) {
	w := new(where)
	if filter != nil {
		if !filter.From.IsZero() {
			w.add("start_time >= ?", filter.From.UTC())
		}
		if !filter.To.IsZero() {
			w.add("start_time < ?", filter.To.UTC())
		}
		if filter.TemplateID != "" {
			w.add("shift_template_id = ?", filter.TemplateID)
		}
	}

	var rows []shiftRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		w.query("SELECT "+shiftColumns+" FROM shifts", " ORDER BY start_time"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying shifts")
	}
	shifts := make([]shift.Shift, 0, len(rows))
	for _, r := range rows {
		shifts = append(shifts, r.toShift())
	}
	return shifts, nil
}

// Attendances

const attendanceColumns = "id, shift_id, member_id, state, excused_reason, updated_at"

func (repo *shiftRepository) CreateAttendance(ctx context.Context, a shift.Attendance) (shift.Attendance, error) {
	a.ID = newID()
	_, err := repo.exec(ctx).ExecContext(ctx, `
		INSERT INTO shift_attendances (`+attendanceColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.ShiftID, a.MemberID, int(a.State), a.ExcusedReason, a.UpdatedAt.UTC(),
	)
	if err != nil {
		return shift.Attendance{}, errors.Wrap(err, "inserting attendance")
	}
	return a, nil
}

func (repo *shiftRepository) UpdateAttendance(ctx context.Context, a shift.Attendance) (shift.Attendance, error) {
	res, err := repo.exec(ctx).ExecContext(ctx,
		"UPDATE shift_attendances SET state = $2, excused_reason = $3, updated_at = $4 WHERE id = $1",
		a.ID, int(a.State), a.ExcusedReason, a.UpdatedAt.UTC(),
	)
	if err = affected(res, err, shift.ErrNotFound); err != nil {
		return shift.Attendance{}, err
	}
	return a, nil
}

func (repo *shiftRepository) GetAttendance(ctx context.Context, id string) (shift.Attendance, error) {
	var row attendanceRow
	if err := sqlx.GetContext(ctx, repo.exec(ctx), &row,
		"SELECT "+attendanceColumns+" FROM shift_attendances WHERE id = $1", id); err != nil {
		return shift.Attendance{}, trapNoRowsErr(err, shift.ErrNotFound)
	}
	return row.toAttendance(), nil
}

func (repo *shiftRepository) QueryAttendances(ctx context.Context, filter *shift.AttendanceFilter) ([]shift.Attendance, error) {
	w := new(where)
	if filter != nil {
		if filter.ShiftIDs != nil {
			if len(filter.ShiftIDs) == 0 {
				return []shift.Attendance{}, nil
			}
			w.add("shift_id = ANY (?)", stringArray(filter.ShiftIDs))
		}
		if filter.MemberID != "" {
			w.add("member_id = ?", filter.MemberID)
		}
	}

	var rows []attendanceRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		w.query("SELECT "+attendanceColumns+" FROM shift_attendances", " ORDER BY created_at, id"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying attendances")
	}
	atts := make([]shift.Attendance, 0, len(rows))
	for _, r := range rows {
		atts = append(atts, r.toAttendance())
	}
	return atts, nil
}
