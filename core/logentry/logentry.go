// Package logentry keeps an audit trail of the changes staff users make to member data.
package logentry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core"
)

const (
	KindPaymentEdit          = "payment_edit"
	KindShareTransfer        = "share_transfer"
	KindDraftConversion      = "draft_conversion"
	KindTrialCancellation    = "trial_cancellation"
	KindMembershipWithdrawal = "membership_withdrawal"
)

type Values map[string]interface{}

type Entry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	ActorID   string    `json:"actor_id"`
	MemberID  string    `json:"member_id"`
	Comment   string    `json:"comment"`
	OldValues Values    `json:"old_values"`
	NewValues Values    `json:"new_values"`
	CreatedAt time.Time `json:"created_at"`
}

type QueryFilter struct {
	MemberID string `query:"member"`
	Kind     string `query:"kind"`
}

func (qf *QueryFilter) Match(e Entry) bool {
	if qf == nil {
		return true
	}
	return (qf.MemberID == "" || e.MemberID == qf.MemberID) && (qf.Kind == "" || e.Kind == qf.Kind)
}

// Freeze snapshots the JSON representation of `v`. A nil `v` gives empty Values.
func Freeze(v interface{}) (Values, error) {
	vals := make(Values)
	if v == nil {
		return vals, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling log values")
	}
	if err = json.Unmarshal(data, &vals); err != nil {
		return nil, errors.Wrap(err, "unmarshalling log values")
	}
	return vals, nil
}

type (
	Repository interface {
		CreateEntry(ctx context.Context, e Entry) (Entry, error)
		// QueryEntries returns the matching entries, newest first.
		QueryEntries(ctx context.Context, filter *QueryFilter) ([]Entry, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()
	return &Service{repo: repo}
}

// Log stores an entry; `oldModel` & `newModel` are frozen into their JSON values.
func (svc *Service) Log(ctx context.Context, kind, actorID, memberID, comment string, oldModel, newModel interface{}) (Entry, error) {
	oldVals, err := Freeze(oldModel)
	if err != nil {
		return Entry{}, err
	}
	newVals, err := Freeze(newModel)
	if err != nil {
		return Entry{}, err
	}
	return svc.repo.CreateEntry(ctx, Entry{
		Kind:      kind,
		ActorID:   actorID,
		MemberID:  memberID,
		Comment:   comment,
		OldValues: oldVals,
		NewValues: newVals,
		CreatedAt: core.NowFunc().UTC(),
	})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Entry, error) {
	return svc.repo.QueryEntries(ctx, filter)
}
