// Package mandate generates the references linking recurring payments of a member to its SEPA mandate.
package mandate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core"
)

const (
	// MaxLength of a SEPA mandate reference.
	MaxLength = 35

	coopSharesSuffix = "GENO"
)

var ErrNotFound = errors.New("mandate reference not found")

type Ref struct {
	Ref      string    `json:"ref"`
	MemberID string    `json:"member_id"`
	StartTS  time.Time `json:"start_ts"`
}

// NewRef returns a reference "<member number, 6 digits>/<suffix>". The suffix of coop share references is
// GENO, any other gets 12 random upper-case hex chars.
func NewRef(memberNo int, forCoopShares bool) string {
	suffix := coopSharesSuffix
	if !forCoopShares {
		buf := make([]byte, 6)
		_, _ = rand.Read(buf) // crypto/rand never fails on supported platforms
		suffix = strings.ToUpper(hex.EncodeToString(buf))
	}
	ref := fmt.Sprintf("%06d/%s", memberNo, suffix)
	if len(ref) > MaxLength {
		ref = ref[:MaxLength]
	}
	return ref
}

func IsForCoopShares(ref string) bool {
	return strings.HasSuffix(ref, "/"+coopSharesSuffix)
}

type (
	Repository interface {
		// CreateRef stores the ref; coop share refs are unique per member, storing one twice is a no-op.
		CreateRef(ctx context.Context, ref Ref) (Ref, error)
		GetRef(ctx context.Context, ref string) (Ref, error)
		QueryRefs(ctx context.Context, memberID string) ([]Ref, error)
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

// Create stores a new mandate reference for the member. Coop share references are reused.
func (svc *Service) Create(ctx context.Context, memberID string, memberNo int, forCoopShares bool) (Ref, error) {
	ref := NewRef(memberNo, forCoopShares)
	if forCoopShares {
		if existing, err := svc.repo.GetRef(ctx, ref); err == nil {
			return existing, nil
		} else if errors.Cause(err) != ErrNotFound {
			return Ref{}, err
		}
	}
	return svc.repo.CreateRef(ctx, Ref{Ref: ref, MemberID: memberID, StartTS: core.NowFunc().UTC()})
}

func (svc *Service) Get(ctx context.Context, ref string) (Ref, error) {
	return svc.repo.GetRef(ctx, ref)
}

func (svc *Service) MemberRefs(ctx context.Context, memberID string) ([]Ref, error) {
	return svc.repo.QueryRefs(ctx, memberID)
}
