package inmemdb

import (
	"context"
	"strings"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/member"
)

type memberRepository struct {
	db *DB
}

var _ member.Repository = (*memberRepository)(nil)

func NewMemberRepository(db *DB) member.Repository {
	return &memberRepository{db: db}
}

// Members

func (repo *memberRepository) CheckEmailUniqueness(_ context.Context, email, excludedID string) error {
	_, found := repo.db.members.find(func(m member.Member) bool {
		return m.ID != excludedID && strings.EqualFold(m.Email, email)
	})
	if found {
		return member.ErrEmailExists
	}
	return nil
}

func (repo *memberRepository) CreateMember(_ context.Context, m member.Member) (member.Member, error) {
	repo.db.memberNo.Lock()
	repo.db.memberNo.last++
	m.MemberNo = repo.db.memberNo.last
	repo.db.memberNo.Unlock()

	m.ID = newID()
	repo.db.members.insert(m.ID, m)
	return m, nil
}

func (repo *memberRepository) UpdateMember(_ context.Context, m member.Member) (member.Member, error) {
	if !repo.db.members.update(m.ID, m) {
		return member.Member{}, member.ErrNotFound
	}
	return m, nil
}

func (repo *memberRepository) GetMember(_ context.Context, id string) (member.Member, error) {
	if m, ok := repo.db.members.get(id); ok {
		return m, nil
	}
	return member.Member{}, member.ErrNotFound
}

var memberComparators = map[string]func(a, b member.Member) int{
	"member_no":   func(a, b member.Member) int { return a.MemberNo - b.MemberNo },
	"first_name":  func(a, b member.Member) int { return strings.Compare(a.FirstName, b.FirstName) },
	"last_name":   func(a, b member.Member) int { return strings.Compare(a.LastName, b.LastName) },
	"email":       func(a, b member.Member) int { return strings.Compare(a.Email, b.Email) },
	"date_joined": func(a, b member.Member) int { return a.DateJoined.Compare(b.DateJoined) },
}

func (repo *memberRepository) QueryMembers(_ context.Context, filter *member.QueryFilter, ordering []core.DBOrdering) ([]member.Member, error) {
	members := repo.db.members.filter(filter.Match)
	orderBy(members, ordering, memberComparators)
	return members, nil
}

func (repo *memberRepository) QueryMembersByID(_ context.Context, ids []string) ([]member.Member, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	return repo.db.members.filter(func(m member.Member) bool { return wanted[m.ID] }), nil
}

// Coop Shares

func (repo *memberRepository) CreateShareOwnership(_ context.Context, so member.ShareOwnership) (member.ShareOwnership, error) {
	so.ID = newID()
	repo.db.shareOwnerships.insert(so.ID, so)
	return so, nil
}

func (repo *memberRepository) UpdateShareOwnership(_ context.Context, so member.ShareOwnership) (member.ShareOwnership, error) {
	if !repo.db.shareOwnerships.update(so.ID, so) {
		return member.ShareOwnership{}, member.ErrNotFound
	}
	return so, nil
}

func (repo *memberRepository) DeleteShareOwnership(_ context.Context, id string) error {
	if !repo.db.shareOwnerships.delete(id) {
		return member.ErrNotFound
	}
	return nil
}

func (repo *memberRepository) QueryShareOwnerships(_ context.Context, memberID string) ([]member.ShareOwnership, error) {
	shares := repo.db.shareOwnerships.filter(func(so member.ShareOwnership) bool {
		return memberID == "" || so.MemberID == memberID
	})
	sortStable(shares, func(a, b member.ShareOwnership) bool { return a.EntryDate.Before(b.EntryDate) })
	return shares, nil
}

// Draft Users

func (repo *memberRepository) CreateDraftUser(_ context.Context, du member.DraftUser) (member.DraftUser, error) {
	du.ID = newID()
	repo.db.draftUsers.insert(du.ID, du)
	return du, nil
}

func (repo *memberRepository) UpdateDraftUser(_ context.Context, du member.DraftUser) (member.DraftUser, error) {
	if !repo.db.draftUsers.update(du.ID, du) {
		return member.DraftUser{}, member.ErrDraftNotFound
	}
	return du, nil
}

func (repo *memberRepository) GetDraftUser(_ context.Context, id string) (member.DraftUser, error) {
	if du, ok := repo.db.draftUsers.get(id); ok {
		return du, nil
	}
	return member.DraftUser{}, member.ErrDraftNotFound
}

func (repo *memberRepository) QueryDraftUsers(context.Context) ([]member.DraftUser, error) {
	drafts := repo.db.draftUsers.filter(nil)
	sortStable(drafts, func(a, b member.DraftUser) bool { return a.CreatedAt.Before(b.CreatedAt) })
	return drafts, nil
}

func (repo *memberRepository) DeleteDraftUser(_ context.Context, id string) error {
	if !repo.db.draftUsers.delete(id) {
		return member.ErrDraftNotFound
	}
	return nil
}

// Waiting List

func (repo *memberRepository) CreateWaitingListEntry(_ context.Context, e member.WaitingListEntry) (member.WaitingListEntry, error) {
	e.ID = newID()
	repo.db.waitingList.insert(e.ID, e)
	return e, nil
}

func (repo *memberRepository) QueryWaitingListEntries(context.Context) ([]member.WaitingListEntry, error) {
	entries := repo.db.waitingList.filter(nil)
	sortStable(entries, func(a, b member.WaitingListEntry) bool { return a.CreatedAt.Before(b.CreatedAt) })
	return entries, nil
}

func (repo *memberRepository) DeleteWaitingListEntry(_ context.Context, id string) error {
	if !repo.db.waitingList.delete(id) {
		return member.ErrNotFound
	}
	return nil
}
