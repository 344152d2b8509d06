// Package shift organizes the work shifts members take in the cooperative.
package shift

import (
	"context"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/member"
)

var (
	// errors
	ErrNotFound          = errors.New("not found")
	ErrShiftFull         = errors.New("all the slots of the shift are taken")
	ErrAlreadyRegistered = errors.New("the member is already registered")
	ErrNoGroups          = errors.New("there are no shift template groups")
)

type (
	Repository interface {
		CreateGroup(ctx context.Context, g TemplateGroup) (TemplateGroup, error)
		// QueryGroups returns all groups ordered by week index.
		QueryGroups(ctx context.Context) ([]TemplateGroup, error)
		DeleteGroup(ctx context.Context, id string) error

		CreateTemplate(ctx context.Context, t Template) (Template, error)
		UpdateTemplate(ctx context.Context, t Template) (Template, error)
		GetTemplate(ctx context.Context, id string) (Template, error)
		// QueryTemplates returns the templates of a group (of all groups if `groupID` is empty)
		// ordered by weekday & start time.
		QueryTemplates(ctx context.Context, groupID string) ([]Template, error)
		DeleteTemplate(ctx context.Context, id string) error

		CreateAttendanceTemplate(ctx context.Context, at AttendanceTemplate) (AttendanceTemplate, error)
		// QueryAttendanceTemplates returns the attendance templates of a shift template (of all if empty).
		QueryAttendanceTemplates(ctx context.Context, templateID string) ([]AttendanceTemplate, error)
		DeleteAttendanceTemplate(ctx context.Context, id string) error

		CreateShift(ctx context.Context, s Shift) (Shift, error)
		GetShift(ctx context.Context, id string) (Shift, error)
		// QueryShifts returns the matching shifts ordered by start time.
		QueryShifts(ctx context.Context, filter *ShiftFilter) ([]Shift, error)

		CreateAttendance(ctx context.Context, a Attendance) (Attendance, error)
		UpdateAttendance(ctx context.Context, a Attendance) (Attendance, error)
		GetAttendance(ctx context.Context, id string) (Attendance, error)
		// QueryAttendances returns the matching attendances in creation order.
		QueryAttendances(ctx context.Context, filter *AttendanceFilter) ([]Attendance, error)
	}

	Service struct {
		repo    Repository
		txor    core.Transactor
		members *member.Service
		conf    *core.Config
	}
)

func NewService(repo Repository, txor core.Transactor, members *member.Service, conf *core.Config) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(txor, "txor"),
		vala.IsNotNil(members, "members"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()
	return &Service{repo: repo, txor: txor, members: members, conf: conf}
}

// Template Groups

func (svc *Service) Groups(ctx context.Context) ([]TemplateGroup, error) {
	return svc.repo.QueryGroups(ctx)
}

func (svc *Service) CreateGroup(ctx context.Context, ng NewGroup) (TemplateGroup, error) {
	return svc.repo.CreateGroup(ctx, TemplateGroup{Name: ng.Name, WeekIndex: ng.WeekIndex})
}

func (svc *Service) DeleteGroup(ctx context.Context, id string) error {
	return svc.repo.DeleteGroup(ctx, id)
}

// GroupOfWeek returns the group in charge of the week of `monday`.
func (svc *Service) GroupOfWeek(ctx context.Context, monday time.Time) (TemplateGroup, error) {
	groups, err := svc.repo.QueryGroups(ctx)
	if err != nil {
		return TemplateGroup{}, err
	}
	idx := WeekIndex(monday, len(groups))
	for _, g := range groups {
		if g.WeekIndex == idx {
			return g, nil
		}
	}
	return TemplateGroup{}, ErrNoGroups
}

// Templates

func (svc *Service) Templates(ctx context.Context, groupID string) ([]Template, error) {
	return svc.repo.QueryTemplates(ctx, groupID)
}

func (svc *Service) GetTemplate(ctx context.Context, id string) (Template, error) {
	return svc.repo.GetTemplate(ctx, id)
}

func (svc *Service) CreateTemplate(ctx context.Context, st SaveTemplate) (Template, error) {
	return svc.repo.CreateTemplate(ctx, Template{
		GroupID:   st.GroupID,
		Name:      st.Name,
		Weekday:   st.Weekday,
		StartTime: st.StartTime,
		EndTime:   st.EndTime,
		NumSlots:  st.NumSlots,
	})
}

func (svc *Service) UpdateTemplate(ctx context.Context, t Template, st SaveTemplate) (Template, error) {
	t.GroupID = st.GroupID
	t.Name = st.Name
	t.Weekday = st.Weekday
	t.StartTime = st.StartTime
	t.EndTime = st.EndTime
	t.NumSlots = st.NumSlots
	return svc.repo.UpdateTemplate(ctx, t)
}

func (svc *Service) DeleteTemplate(ctx context.Context, id string) error {
	return svc.repo.DeleteTemplate(ctx, id)
}

// TemplateBlocks summarizes every shift template.
func (svc *Service) TemplateBlocks(ctx context.Context) ([]Block, error) {
	groups, err := svc.repo.QueryGroups(ctx)
	if err != nil {
		return nil, err
	}
	groupByID := make(map[string]TemplateGroup, len(groups))
	for _, g := range groups {
		groupByID[g.ID] = g
	}
	templates, err := svc.repo.QueryTemplates(ctx, "")
	if err != nil {
		return nil, err
	}
	atts, err := svc.repo.QueryAttendanceTemplates(ctx, "")
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, at := range atts {
		counts[at.TemplateID]++
	}

	blocks := make([]Block, 0, len(templates))
	for _, t := range templates {
		blocks = append(blocks, TemplateBlock(t, counts[t.ID], groupByID[t.GroupID]))
	}
	return blocks, nil
}

// AddAttendanceTemplate registers a member on the future shifts of a template, within its slots.
func (svc *Service) AddAttendanceTemplate(ctx context.Context, templateID, memberID string) (AttendanceTemplate, error) {
	var at AttendanceTemplate
	err := svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		t, err := svc.repo.GetTemplate(ctx, templateID)
		if err != nil {
			return err
		}
		if _, err = svc.members.Get(ctx, memberID); err != nil {
			if errors.Cause(err) == member.ErrNotFound {
				return core.NewFieldError("member_id", "unknown member")
			}
			return err
		}
		existing, err := svc.repo.QueryAttendanceTemplates(ctx, templateID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.MemberID == memberID {
				return core.NewValidationError(ErrAlreadyRegistered, core.FieldError{Field: "member_id", Error: ErrAlreadyRegistered.Error()})
			}
		}
		if len(existing) >= t.NumSlots {
			return core.NewValidationError(ErrShiftFull, core.FieldError{Field: "member_id", Error: ErrShiftFull.Error()})
		}
		at, err = svc.repo.CreateAttendanceTemplate(ctx, AttendanceTemplate{TemplateID: templateID, MemberID: memberID})
		return err
	})
	return at, err
}

func (svc *Service) RemoveAttendanceTemplate(ctx context.Context, id string) error {
	return svc.repo.DeleteAttendanceTemplate(ctx, id)
}

// Shifts

func (svc *Service) GetShift(ctx context.Context, id string) (Shift, error) {
	return svc.repo.GetShift(ctx, id)
}

// CreateShiftsForWeek creates the shifts of the group in charge of the week of `monday`, with a pending
// attendance for each attendance template. Existing shifts of the week are kept as they are.
func (svc *Service) CreateShiftsForWeek(ctx context.Context, monday time.Time) ([]Shift, error) {
	monday = Monday(monday)
	created := make([]Shift, 0)
	err := svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		group, err := svc.GroupOfWeek(ctx, monday)
		if err != nil {
			return err
		}
		templates, err := svc.repo.QueryTemplates(ctx, group.ID)
		if err != nil {
			return err
		}
		loc := svc.conf.Location()
		weekStart, _ := clockTime(monday, "00:00", loc)
		weekEnd, _ := clockTime(monday.AddDate(0, 0, 7), "00:00", loc)

		for _, t := range templates {
			existing, err := svc.repo.QueryShifts(ctx, &ShiftFilter{From: weekStart, To: weekEnd, TemplateID: t.ID})
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				continue
			}

			start, end, err := t.ShiftTimes(monday, loc)
			if err != nil {
				return errors.Wrapf(err, "template %s", t.ID)
			}
			s, err := svc.repo.CreateShift(ctx, Shift{TemplateID: t.ID, Name: t.Name, StartTime: start, EndTime: end, NumSlots: t.NumSlots})
			if err != nil {
				return errors.Wrap(err, "creating shift")
			}
			created = append(created, s)

			atts, err := svc.repo.QueryAttendanceTemplates(ctx, t.ID)
			if err != nil {
				return err
			}
			for _, at := range atts {
				_, err = svc.repo.CreateAttendance(ctx, Attendance{
					ShiftID:   s.ID,
					MemberID:  at.MemberID,
					State:     StatePending,
					UpdatedAt: core.NowFunc().UTC(),
				})
				if err != nil {
					return errors.Wrap(err, "creating attendance")
				}
			}
		}
		return nil
	})
	return created, err
}

// GenerateShifts creates the shifts of the `weeks` weeks following the current one.
func (svc *Service) GenerateShifts(ctx context.Context, weeks int) ([]Shift, error) {
	monday := Monday(core.Today(svc.conf.Location()))
	res := make([]Shift, 0)
	for i := 1; i <= weeks; i++ {
		created, err := svc.CreateShiftsForWeek(ctx, monday.AddDate(0, 0, 7*i))
		if err != nil {
			return nil, err
		}
		res = append(res, created...)
	}
	return res, nil
}

// ShiftBlocks summarizes the shifts starting within [from, to).
func (svc *Service) ShiftBlocks(ctx context.Context, from, to time.Time) ([]Block, error) {
	shifts, err := svc.repo.QueryShifts(ctx, &ShiftFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}
	if len(shifts) == 0 {
		return []Block{}, nil
	}
	ids := make([]string, 0, len(shifts))
	for _, s := range shifts {
		ids = append(ids, s.ID)
	}
	atts, err := svc.repo.QueryAttendances(ctx, &AttendanceFilter{ShiftIDs: ids})
	if err != nil {
		return nil, err
	}
	attsByShift := make(map[string][]Attendance)
	for _, a := range atts {
		attsByShift[a.ShiftID] = append(attsByShift[a.ShiftID], a)
	}

	groups, err := svc.repo.QueryGroups(ctx)
	if err != nil {
		return nil, err
	}
	templates, err := svc.repo.QueryTemplates(ctx, "")
	if err != nil {
		return nil, err
	}
	attTemplates, err := svc.repo.QueryAttendanceTemplates(ctx, "")
	if err != nil {
		return nil, err
	}
	groupByID := make(map[string]TemplateGroup, len(groups))
	for _, g := range groups {
		groupByID[g.ID] = g
	}
	groupOfTemplate := make(map[string]TemplateGroup, len(templates))
	for _, t := range templates {
		groupOfTemplate[t.ID] = groupByID[t.GroupID]
	}
	templateMembers := make(map[string]map[string]bool)
	for _, at := range attTemplates {
		if templateMembers[at.TemplateID] == nil {
			templateMembers[at.TemplateID] = make(map[string]bool)
		}
		templateMembers[at.TemplateID][at.MemberID] = true
	}

	blocks := make([]Block, 0, len(shifts))
	for _, s := range shifts {
		var group *TemplateGroup
		if g, ok := groupOfTemplate[s.TemplateID]; ok {
			group = &g
		}
		blocks = append(blocks, ShiftBlock(s, attsByShift[s.ID], templateMembers[s.TemplateID], group, svc.conf.Location()))
	}
	return blocks, nil
}

// Attendances

// RegisterAttendance registers a member on a shift with a free slot.
func (svc *Service) RegisterAttendance(ctx context.Context, shiftID, memberID string) (Attendance, error) {
	var att Attendance
	err := svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		s, err := svc.repo.GetShift(ctx, shiftID)
		if err != nil {
			return err
		}
		if _, err = svc.members.Get(ctx, memberID); err != nil {
			if errors.Cause(err) == member.ErrNotFound {
				return core.NewFieldError("member_id", "unknown member")
			}
			return err
		}
		atts, err := svc.repo.QueryAttendances(ctx, &AttendanceFilter{ShiftIDs: []string{shiftID}})
		if err != nil {
			return err
		}
		valid := ValidAttendances(atts)
		for _, a := range valid {
			if a.MemberID == memberID {
				return core.NewValidationError(ErrAlreadyRegistered, core.FieldError{Field: "member_id", Error: ErrAlreadyRegistered.Error()})
			}
		}
		if len(valid) >= s.NumSlots {
			return core.NewValidationError(ErrShiftFull, core.FieldError{Field: "shift_id", Error: ErrShiftFull.Error()})
		}
		att, err = svc.repo.CreateAttendance(ctx, Attendance{
			ShiftID:   shiftID,
			MemberID:  memberID,
			State:     StatePending,
			UpdatedAt: core.NowFunc().UTC(),
		})
		return err
	})
	return att, err
}

func (svc *Service) GetAttendance(ctx context.Context, id string) (Attendance, error) {
	return svc.repo.GetAttendance(ctx, id)
}

// UpdateAttendanceState changes the state of an attendance; the excused reason is kept for excused misses only.
func (svc *Service) UpdateAttendanceState(ctx context.Context, att Attendance, ua UpdateAttendance) (Attendance, error) {
	att.State = ua.State
	att.ExcusedReason = ""
	if ua.State == StateMissedExcused {
		att.ExcusedReason = ua.ExcusedReason
	}
	att.UpdatedAt = core.NowFunc().UTC()
	return svc.repo.UpdateAttendance(ctx, att)
}

// MemberShifts returns the attendances of a member with their shift, ordered by shift start.
func (svc *Service) MemberShifts(ctx context.Context, memberID string) ([]MemberShift, error) {
	atts, err := svc.repo.QueryAttendances(ctx, &AttendanceFilter{MemberID: memberID})
	if err != nil {
		return nil, err
	}
	res := make([]MemberShift, 0, len(atts))
	for _, a := range atts {
		s, err := svc.repo.GetShift(ctx, a.ShiftID)
		if err != nil {
			return nil, errors.Wrapf(err, "getting shift %s", a.ShiftID)
		}
		res = append(res, MemberShift{Attendance: a, Shift: s})
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Shift.StartTime.Before(res[j].Shift.StartTime) })
	return res, nil
}

type MemberShift struct {
	Attendance Attendance `json:"attendance"`
	Shift      Shift      `json:"shift"`
}
