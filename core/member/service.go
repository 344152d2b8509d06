package member

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/logentry"
	"github.com/trezcool/tapir/core/mandate"
	"github.com/trezcool/tapir/core/parameter"
)

var (
	// errors
	ErrNotFound      = errors.New("member not found")
	ErrDraftNotFound = errors.New("draft user not found")
	ErrEmailExists   = errors.New("a member with this email already exists")
	ErrNotSigned     = errors.New("the membership agreement has not been signed")
	ErrNoShares      = errors.New("the member owns no coop shares")
)

type (
	Repository interface {
		// CheckEmailUniqueness returns ErrEmailExists when a member other than `excludedID` uses the email.
		CheckEmailUniqueness(ctx context.Context, email, excludedID string) error
		// CreateMember assigns both ID & MemberNo.
		CreateMember(ctx context.Context, m Member) (Member, error)
		UpdateMember(ctx context.Context, m Member) (Member, error)
		GetMember(ctx context.Context, id string) (Member, error)
		QueryMembers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Member, error)
		QueryMembersByID(ctx context.Context, ids []string) ([]Member, error)

		CreateShareOwnership(ctx context.Context, so ShareOwnership) (ShareOwnership, error)
		UpdateShareOwnership(ctx context.Context, so ShareOwnership) (ShareOwnership, error)
		DeleteShareOwnership(ctx context.Context, id string) error
		// QueryShareOwnerships returns the ownerships of a member (of all members if `memberID` is empty)
		// ordered by entry date.
		QueryShareOwnerships(ctx context.Context, memberID string) ([]ShareOwnership, error)

		CreateDraftUser(ctx context.Context, du DraftUser) (DraftUser, error)
		UpdateDraftUser(ctx context.Context, du DraftUser) (DraftUser, error)
		GetDraftUser(ctx context.Context, id string) (DraftUser, error)
		QueryDraftUsers(ctx context.Context) ([]DraftUser, error)
		DeleteDraftUser(ctx context.Context, id string) error

		CreateWaitingListEntry(ctx context.Context, e WaitingListEntry) (WaitingListEntry, error)
		QueryWaitingListEntries(ctx context.Context) ([]WaitingListEntry, error)
		DeleteWaitingListEntry(ctx context.Context, id string) error
	}

	// PaymentScheduler plans & cancels the one-off payments of coop shares.
	PaymentScheduler interface {
		ScheduleOneOff(ctx context.Context, mandateRef string, amount decimal.Decimal) error
		CancelFuture(ctx context.Context, mandateRef string, after time.Time) error
	}

	// Documents renders the membership PDFs. A nil draft user gives a blank agreement.
	Documents interface {
		MembershipAgreement(du *DraftUser, siteName string, sharePrice decimal.Decimal) ([]byte, error)
		MembershipConfirmation(m Member, shares []ShareOwnership, siteName string) ([]byte, error)
	}

	Service struct {
		repo     Repository
		txor     core.Transactor
		mandates *mandate.Service
		params   *parameter.Service
		logs     *logentry.Service
		payments PaymentScheduler
		docs     Documents
		mailSvc  core.EmailService
		conf     *core.Config
	}
)

func NewService(
	repo Repository,
	txor core.Transactor,
	mandates *mandate.Service,
	params *parameter.Service,
	logs *logentry.Service,
	payments PaymentScheduler,
	docs Documents,
	mailSvc core.EmailService,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(txor, "txor"),
		vala.IsNotNil(mandates, "mandates"),
		vala.IsNotNil(params, "params"),
		vala.IsNotNil(logs, "logs"),
		vala.IsNotNil(payments, "payments"),
		vala.IsNotNil(docs, "docs"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:     repo,
		txor:     txor,
		mandates: mandates,
		params:   params,
		logs:     logs,
		payments: payments,
		docs:     docs,
		mailSvc:  mailSvc,
		conf:     conf,
	}
}

func (svc *Service) today() time.Time {
	return core.Today(svc.conf.Location())
}

func (svc *Service) checkEmailUniqueness(email, excludedID string) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email, excludedID); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return errors.Wrap(err, "checking email uniqueness")
	}
	return nil
}

// Members

func (svc *Service) Create(ctx context.Context, pd PersonalData) (Member, error) {
	return svc.repo.CreateMember(ctx, Member{
		FirstName:        pd.FirstName,
		LastName:         pd.LastName,
		Email:            pd.Email,
		PhoneNumber:      pd.PhoneNumber,
		Street:           pd.Street,
		Street2:          pd.Street2,
		Postcode:         pd.Postcode,
		City:             pd.City,
		Country:          pd.Country,
		Birthdate:        pd.Birthdate.Time,
		IBAN:             pd.IBAN,
		AccountOwner:     pd.AccountOwner,
		PickupLocationID: pd.PickupLocationID,
		DateJoined:       core.NowFunc().UTC(),
	})
}

func (svc *Service) Update(ctx context.Context, m Member, pd PersonalData) (Member, error) {
	m.FirstName = pd.FirstName
	m.LastName = pd.LastName
	m.Email = pd.Email
	m.PhoneNumber = pd.PhoneNumber
	m.Street = pd.Street
	m.Street2 = pd.Street2
	m.Postcode = pd.Postcode
	m.City = pd.City
	m.Country = pd.Country
	m.Birthdate = pd.Birthdate.Time
	m.IBAN = pd.IBAN
	m.AccountOwner = pd.AccountOwner
	m.PickupLocationID = pd.PickupLocationID
	return svc.repo.UpdateMember(ctx, m)
}

func (svc *Service) Get(ctx context.Context, id string) (Member, error) {
	return svc.repo.GetMember(ctx, id)
}

func (svc *Service) GetMany(ctx context.Context, ids []string) (map[string]Member, error) {
	members, err := svc.repo.QueryMembersByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	res := make(map[string]Member, len(members))
	for _, m := range members {
		res[m.ID] = m
	}
	return res, nil
}

// Query returns the matching members ordered by date joined unless another ordering is given.
func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Member, error) {
	ordering = core.FilterOrderings(ordering, map[string]string{
		"member_no": "member_no", "first_name": "first_name", "last_name": "last_name",
		"email": "email", "date_joined": "date_joined",
	})
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "date_joined", Ascending: true}}
	}
	return svc.repo.QueryMembers(ctx, filter, ordering)
}

// Coop Shares

func (svc *Service) Shares(ctx context.Context, memberID string) ([]ShareOwnership, error) {
	return svc.repo.QueryShareOwnerships(ctx, memberID)
}

func (svc *Service) sharePrice(ctx context.Context) (decimal.Decimal, error) {
	return svc.params.Decimal(ctx, parameter.CoopSharePrice)
}

// AddShares creates a share ownership at the current share price and schedules its one-off payment.
func (svc *Service) AddShares(ctx context.Context, m Member, ns NewShares) (ShareOwnership, error) {
	var so ShareOwnership
	err := svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		price, err := svc.sharePrice(ctx)
		if err != nil {
			return err
		}
		ref, err := svc.mandates.Create(ctx, m.ID, m.MemberNo, true /* forCoopShares */)
		if err != nil {
			return errors.Wrap(err, "creating mandate ref")
		}

		entryDate := ns.EntryDate.Time
		if entryDate.IsZero() {
			entryDate = svc.today()
		}
		so, err = svc.repo.CreateShareOwnership(ctx, ShareOwnership{
			MemberID:   m.ID,
			Quantity:   ns.Quantity,
			SharePrice: price,
			EntryDate:  entryDate,
			MandateRef: ref.Ref,
		})
		if err != nil {
			return errors.Wrap(err, "creating share ownership")
		}
		return svc.payments.ScheduleOneOff(ctx, ref.Ref, so.TotalPrice())
	})
	return so, err
}

// TransferShares moves `ts.Quantity` shares from the newest ownerships of `origin` to the receiver,
// at the share price of the transferred ownerships.
func (svc *Service) TransferShares(ctx context.Context, actorID string, origin Member, ts TransferShares) (ShareOwnership, error) {
	var transferred ShareOwnership
	err := svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		shares, err := svc.repo.QueryShareOwnerships(ctx, origin.ID)
		if err != nil {
			return err
		}
		var owned int
		for _, so := range shares {
			owned += so.Quantity
		}
		if owned == 0 {
			return core.NewValidationError(ErrNoShares, core.FieldError{Field: "quantity", Error: ErrNoShares.Error()})
		}
		if err = ts.check(origin.ID, owned); err != nil {
			return err
		}
		receiver, err := svc.repo.GetMember(ctx, ts.ReceiverID)
		if err != nil {
			if errors.Cause(err) == ErrNotFound {
				return core.NewFieldError("receiver_id", "unknown member")
			}
			return err
		}

		sort.SliceStable(shares, func(i, j int) bool { return shares[i].EntryDate.After(shares[j].EntryDate) })
		remaining := ts.Quantity
		sharePrice := shares[0].SharePrice
		for _, so := range shares {
			if remaining == 0 {
				break
			}
			take := so.Quantity
			if take > remaining {
				take = remaining
			}
			remaining -= take
			sharePrice = so.SharePrice

			if take == so.Quantity {
				err = svc.repo.DeleteShareOwnership(ctx, so.ID)
			} else {
				so.Quantity -= take
				_, err = svc.repo.UpdateShareOwnership(ctx, so)
			}
			if err != nil {
				return errors.Wrap(err, "updating share ownership")
			}
		}

		ref, err := svc.mandates.Create(ctx, receiver.ID, receiver.MemberNo, true /* forCoopShares */)
		if err != nil {
			return errors.Wrap(err, "creating mandate ref")
		}
		transferred, err = svc.repo.CreateShareOwnership(ctx, ShareOwnership{
			MemberID:   receiver.ID,
			Quantity:   ts.Quantity,
			SharePrice: sharePrice,
			EntryDate:  svc.today(),
			MandateRef: ref.Ref,
		})
		if err != nil {
			return errors.Wrap(err, "creating share ownership")
		}

		_, err = svc.logs.Log(ctx, logentry.KindShareTransfer, actorID, origin.ID,
			fmt.Sprintf("%d shares transferred to %s", ts.Quantity, receiver.DisplayName()),
			map[string]interface{}{"quantity": owned},
			map[string]interface{}{"quantity": owned - ts.Quantity, "receiver_id": receiver.ID, "transferred": ts.Quantity},
		)
		return err
	})
	return transferred, err
}

// ActiveShareOwners returns the members owning shares active at `d`.
func (svc *Service) ActiveShareOwners(ctx context.Context, d time.Time) ([]Member, error) {
	shares, err := svc.repo.QueryShareOwnerships(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, so := range shares {
		if so.ActiveAt(d) && !seen[so.MemberID] {
			seen[so.MemberID] = true
			ids = append(ids, so.MemberID)
		}
	}
	if len(ids) == 0 {
		return []Member{}, nil
	}
	members, err := svc.repo.QueryMembersByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(members, func(i, j int) bool { return members[i].MemberNo < members[j].MemberNo })
	return members, nil
}

// IsNewMember reports whether the single share ownership of the member starts after `d`.
func (svc *Service) IsNewMember(ctx context.Context, memberID string, d time.Time) (bool, error) {
	shares, err := svc.repo.QueryShareOwnerships(ctx, memberID)
	if err != nil {
		return false, err
	}
	return len(shares) == 1 && shares[0].EntryDate.After(d), nil
}

// WithdrawMembership deletes the share ownership of a new member together with its future payment.
func (svc *Service) WithdrawMembership(ctx context.Context, actorID, memberID string, after time.Time) error {
	return svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		isNew, err := svc.IsNewMember(ctx, memberID, after)
		if err != nil || !isNew {
			return err
		}
		shares, err := svc.repo.QueryShareOwnerships(ctx, memberID)
		if err != nil {
			return err
		}
		so := shares[0]
		if err = svc.payments.CancelFuture(ctx, so.MandateRef, core.NowFunc().UTC()); err != nil {
			return errors.Wrap(err, "cancelling share payment")
		}
		if err = svc.repo.DeleteShareOwnership(ctx, so.ID); err != nil {
			return errors.Wrap(err, "deleting share ownership")
		}
		_, err = svc.logs.Log(ctx, logentry.KindMembershipWithdrawal, actorID, memberID, "membership application withdrawn", so, nil)
		return err
	})
}

// Draft Users

func (svc *Service) Drafts(ctx context.Context) ([]DraftUser, error) {
	return svc.repo.QueryDraftUsers(ctx)
}

func (svc *Service) GetDraft(ctx context.Context, id string) (DraftUser, error) {
	return svc.repo.GetDraftUser(ctx, id)
}

func (svc *Service) CreateDraft(ctx context.Context, sdu SaveDraftUser) (DraftUser, error) {
	du := DraftUser{CreatedAt: core.NowFunc().UTC()}
	applyDraftData(&du, sdu)
	return svc.repo.CreateDraftUser(ctx, du)
}

func (svc *Service) UpdateDraft(ctx context.Context, du DraftUser, sdu SaveDraftUser) (DraftUser, error) {
	applyDraftData(&du, sdu)
	return svc.repo.UpdateDraftUser(ctx, du)
}

func applyDraftData(du *DraftUser, sdu SaveDraftUser) {
	du.FirstName = sdu.FirstName
	du.LastName = sdu.LastName
	du.Email = sdu.Email
	du.PhoneNumber = sdu.PhoneNumber
	du.Street = sdu.Street
	du.Street2 = sdu.Street2
	du.Postcode = sdu.Postcode
	du.City = sdu.City
	du.Country = sdu.Country
	du.Birthdate = sdu.Birthdate.Time
	du.NumShares = sdu.NumShares
}

func (svc *Service) DeleteDraft(ctx context.Context, id string) error {
	return svc.repo.DeleteDraftUser(ctx, id)
}

func (svc *Service) MarkAgreementSigned(ctx context.Context, du DraftUser) (DraftUser, error) {
	du.SignedMembershipAgreement = true
	return svc.repo.UpdateDraftUser(ctx, du)
}

func (svc *Service) MarkWelcomeSessionAttended(ctx context.Context, du DraftUser) (DraftUser, error) {
	du.AttendedWelcomeSession = true
	return svc.repo.UpdateDraftUser(ctx, du)
}

// RegisterPayment records that the draft user paid its initial amount in cash or by bank transfer.
func (svc *Service) RegisterPayment(ctx context.Context, du DraftUser, rp RegisterPayment) (DraftUser, error) {
	now := core.NowFunc().UTC()
	du.PaymentMethod = rp.Method
	du.PaidAt = &now
	return svc.repo.UpdateDraftUser(ctx, du)
}

func (svc *Service) DraftInitialAmount(ctx context.Context, du DraftUser) (decimal.Decimal, error) {
	price, err := svc.sharePrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return du.InitialAmount(price), nil
}

// ConvertDraft atomically creates a member (and its shares) from a draft user with a signed
// membership agreement, then deletes the draft.
func (svc *Service) ConvertDraft(ctx context.Context, actorID string, du DraftUser) (Member, error) {
	if !du.SignedMembershipAgreement {
		return Member{}, core.NewValidationError(ErrNotSigned, core.FieldError{Field: "signed_membership_agreement", Error: ErrNotSigned.Error()})
	}

	var m Member
	err := svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.repo.CheckEmailUniqueness(ctx, du.Email, ""); err != nil {
			if err == ErrEmailExists {
				return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
			}
			return err
		}

		var err error
		m, err = svc.repo.CreateMember(ctx, Member{
			FirstName:   du.FirstName,
			LastName:    du.LastName,
			Email:       du.Email,
			PhoneNumber: du.PhoneNumber,
			Street:      du.Street,
			Street2:     du.Street2,
			Postcode:    du.Postcode,
			City:        du.City,
			Country:     du.Country,
			Birthdate:   du.Birthdate,
			DateJoined:  core.NowFunc().UTC(),
		})
		if err != nil {
			return errors.Wrap(err, "creating member")
		}

		if du.NumShares > 0 {
			if _, err = svc.AddShares(ctx, m, NewShares{Quantity: du.NumShares}); err != nil {
				return errors.Wrap(err, "adding shares")
			}
		}
		if err = svc.repo.DeleteDraftUser(ctx, du.ID); err != nil {
			return errors.Wrap(err, "deleting draft user")
		}
		_, err = svc.logs.Log(ctx, logentry.KindDraftConversion, actorID, m.ID, "member created from draft user", du, m)
		return err
	})
	return m, err
}

// Documents

func (svc *Service) MembershipAgreementPDF(ctx context.Context, du *DraftUser) ([]byte, error) {
	siteName, err := svc.params.String(ctx, parameter.SiteName)
	if err != nil {
		return nil, err
	}
	price, err := svc.sharePrice(ctx)
	if err != nil {
		return nil, err
	}
	return svc.docs.MembershipAgreement(du, siteName, price)
}

func (svc *Service) MembershipConfirmationPDF(ctx context.Context, m Member) ([]byte, error) {
	siteName, err := svc.params.String(ctx, parameter.SiteName)
	if err != nil {
		return nil, err
	}
	shares, err := svc.repo.QueryShareOwnerships(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if len(shares) == 0 {
		return nil, ErrNoShares
	}
	return svc.docs.MembershipConfirmation(m, shares, siteName)
}

// SendWelcomeEmail mails the membership confirmation to a share owner.
func (svc *Service) SendWelcomeEmail(ctx context.Context, m Member) error {
	doc, err := svc.MembershipConfirmationPDF(ctx, m)
	if err != nil {
		return err
	}
	shares, err := svc.repo.QueryShareOwnerships(ctx, m.ID)
	if err != nil {
		return err
	}
	siteName, err := svc.params.String(ctx, parameter.SiteName)
	if err != nil {
		return err
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: m.DisplayName(), Address: m.Email}},
		Subject:      fmt.Sprintf("Willkommen bei %s!", siteName),
		TemplateName: "membership_confirmation",
		TemplateData: map[string]interface{}{
			"FirstName": m.FirstName,
			"MemberNo":  m.MemberNo,
			"Shares":    SharesSummary(shares),
		},
	}
	if err = msg.AttachBytes(doc, fmt.Sprintf("Mitgliedschaftsbestätigung %s.pdf", m.DisplayName()), "application/pdf"); err != nil {
		return err
	}
	svc.mailSvc.SendMessages(msg)
	return nil
}

// Waiting List

func (svc *Service) JoinWaitingList(ctx context.Context, nwe NewWaitingListEntry) (WaitingListEntry, error) {
	now := core.NowFunc().UTC()
	return svc.repo.CreateWaitingListEntry(ctx, WaitingListEntry{
		FirstName:      nwe.FirstName,
		LastName:       nwe.LastName,
		Email:          nwe.Email,
		PrivacyConsent: now,
		CreatedAt:      now,
	})
}

func (svc *Service) WaitingList(ctx context.Context) ([]WaitingListEntry, error) {
	return svc.repo.QueryWaitingListEntries(ctx)
}

func (svc *Service) DeleteWaitingListEntry(ctx context.Context, id string) error {
	return svc.repo.DeleteWaitingListEntry(ctx, id)
}
