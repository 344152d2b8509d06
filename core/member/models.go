package member

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tapir/core"
)

const (
	PaymentCash = "cash"
	PaymentBank = "bank"

	minAge = 18
	maxAge = 120
)

type Member struct {
	ID               string    `json:"id"`
	MemberNo         int       `json:"member_no"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Email            string    `json:"email"`
	PhoneNumber      string    `json:"phone_number"`
	Street           string    `json:"street"`
	Street2          string    `json:"street_2"`
	Postcode         string    `json:"postcode"`
	City             string    `json:"city"`
	Country          string    `json:"country"`
	Birthdate        time.Time `json:"birthdate"`
	IBAN             string    `json:"iban"`
	AccountOwner     string    `json:"account_owner"`
	PickupLocationID string    `json:"pickup_location_id"`
	DateJoined       time.Time `json:"date_joined"` // UTC
}

func (m Member) DisplayName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// PersonalData holds the editable data of a member.
type PersonalData struct {
	FirstName        string   `json:"first_name" validate:"required,max=150"`
	LastName         string   `json:"last_name" validate:"required,max=150"`
	Email            string   `json:"email" validate:"required,email,max=255"`
	PhoneNumber      string   `json:"phone_number" validate:"required,phone"`
	Street           string   `json:"street" validate:"required,max=150"`
	Street2          string   `json:"street_2" validate:"max=150"`
	Postcode         string   `json:"postcode" validate:"required,max=32"`
	City             string   `json:"city" validate:"required,max=50"`
	Country          string   `json:"country" validate:"required,len=2"`
	Birthdate        core.Day `json:"birthdate"`
	IBAN             string   `json:"iban" validate:"omitempty,iban"`
	AccountOwner     string   `json:"account_owner" validate:"max=150"`
	PickupLocationID string   `json:"pickup_location_id"`
}

func (pd *PersonalData) clean() {
	pd.FirstName = core.CleanString(pd.FirstName)
	pd.LastName = core.CleanString(pd.LastName)
	pd.Email = core.CleanString(pd.Email, true /* lower */)
	pd.PhoneNumber = core.CleanString(pd.PhoneNumber)
	pd.Street = core.CleanString(pd.Street)
	pd.Street2 = core.CleanString(pd.Street2)
	pd.Postcode = core.CleanString(pd.Postcode)
	pd.City = core.CleanString(pd.City)
	pd.Country = strings.ToUpper(core.CleanString(pd.Country))
	pd.IBAN = core.CleanIBAN(pd.IBAN)
	pd.AccountOwner = core.CleanString(pd.AccountOwner)
}

// Validate checks the personal data of a new (`orig` nil) or existing member. Name & birthdate of an existing
// member are kept as they are unless `canEditNameAndBirthdate`.
func (pd *PersonalData) Validate(validate *validator.Validate, svc *Service, today time.Time, orig *Member, canEditNameAndBirthdate bool) error {
	pd.clean()
	if orig != nil && !canEditNameAndBirthdate {
		pd.FirstName = orig.FirstName
		pd.LastName = orig.LastName
		pd.Birthdate = core.NewDay(orig.Birthdate)
	}

	if err := validate.Struct(pd); err != nil {
		return err
	}
	if err := ValidateBirthdate(pd.Birthdate.Time, today); err != nil {
		return err
	}

	var excludedID string
	if orig != nil {
		excludedID = orig.ID
	}
	return svc.checkEmailUniqueness(pd.Email, excludedID)
}

// ValidateBirthdate requires a date that is not in the future nor more than 120 years back,
// of a person at least 18 years old.
func ValidateBirthdate(birthdate, today time.Time) error {
	if birthdate.IsZero() {
		return core.NewFieldError("birthdate", "this field is required")
	}
	if birthdate.After(today) || birthdate.Before(today.AddDate(-maxAge, 0, 0)) {
		return core.NewFieldError("birthdate", "please choose a valid date")
	}
	if birthdate.After(today.AddDate(-minAge, 0, 0)) {
		return core.NewFieldError("birthdate", fmt.Sprintf("you must be at least %d years old to join the cooperative", minAge))
	}
	return nil
}

type QueryFilter struct {
	FirstName string `query:"first_name"`
	LastName  string `query:"last_name"`
	Email     string `query:"email"`
}

func (qf *QueryFilter) Clean() {
	qf.FirstName = core.CleanString(qf.FirstName)
	qf.LastName = core.CleanString(qf.LastName)
	qf.Email = core.CleanString(qf.Email)
}

// Match does a case-insensitive contains on every non-empty field.
func (qf *QueryFilter) Match(m Member) bool {
	if qf == nil {
		return true
	}
	contains := func(s, sub string) bool {
		return sub == "" || strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	}
	return contains(m.FirstName, qf.FirstName) && contains(m.LastName, qf.LastName) && contains(m.Email, qf.Email)
}

type ShareOwnership struct {
	ID         string          `json:"id"`
	MemberID   string          `json:"member_id"`
	Quantity   int             `json:"quantity"`
	SharePrice decimal.Decimal `json:"share_price"`
	EntryDate  time.Time       `json:"entry_date"`
	EndDate    *time.Time      `json:"end_date"`
	MandateRef string          `json:"mandate_ref"`
}

func (so ShareOwnership) TotalPrice() decimal.Decimal {
	return so.SharePrice.Mul(decimal.NewFromInt(int64(so.Quantity)))
}

func (so ShareOwnership) ActiveAt(d time.Time) bool {
	return !so.EntryDate.After(d) && (so.EndDate == nil || !so.EndDate.Before(d))
}

// SharesSummary formats the coop shares of a member as "<quantity> × <share price>", "" without shares.
func SharesSummary(shares []ShareOwnership) string {
	if len(shares) == 0 {
		return ""
	}
	var quantity int
	for _, so := range shares {
		quantity += so.Quantity
	}
	return fmt.Sprintf("%d × %s", quantity, core.FormatMoney(shares[0].SharePrice))
}

type NewShares struct {
	Quantity  int      `json:"quantity" validate:"required,min=1"`
	EntryDate core.Day `json:"entry_date"`
}

func (ns NewShares) Validate(validate *validator.Validate) error { return validate.Struct(ns) }

type TransferShares struct {
	ReceiverID    string `json:"receiver_id" validate:"required"`
	Quantity      int    `json:"quantity" validate:"required,min=1"`
	SecurityCheck bool   `json:"security_check" validate:"required"`
}

// Validate checks the transfer of shares from the `origin` member who owns `owned` shares.
func (ts TransferShares) Validate(validate *validator.Validate, originID string, owned int) error {
	if err := validate.Struct(ts); err != nil {
		return err
	}
	return ts.check(originID, owned)
}

func (ts TransferShares) check(originID string, owned int) error {
	if ts.Quantity < 1 {
		return core.NewFieldError("quantity", "must be at least 1")
	}
	if ts.ReceiverID == originID {
		return core.NewFieldError("receiver_id", "the receiver must be another member")
	}
	if ts.Quantity > owned {
		return core.NewFieldError("quantity", fmt.Sprintf("must be at most %d", owned))
	}
	return nil
}

// DraftUser is a prospective member, not yet confirmed by the cooperative.
type DraftUser struct {
	ID                        string     `json:"id"`
	FirstName                 string     `json:"first_name"`
	LastName                  string     `json:"last_name"`
	Email                     string     `json:"email"`
	PhoneNumber               string     `json:"phone_number"`
	Street                    string     `json:"street"`
	Street2                   string     `json:"street_2"`
	Postcode                  string     `json:"postcode"`
	City                      string     `json:"city"`
	Country                   string     `json:"country"`
	Birthdate                 time.Time  `json:"birthdate"`
	NumShares                 int        `json:"num_shares"`
	SignedMembershipAgreement bool       `json:"signed_membership_agreement"`
	AttendedWelcomeSession    bool       `json:"attended_welcome_session"`
	PaymentMethod             string     `json:"payment_method"`
	PaidAt                    *time.Time `json:"paid_at"`
	CreatedAt                 time.Time  `json:"created_at"`
}

func (du DraftUser) DisplayName() string {
	return strings.TrimSpace(du.FirstName + " " + du.LastName)
}

// InitialAmount is what the draft user owes for its coop shares.
func (du DraftUser) InitialAmount(sharePrice decimal.Decimal) decimal.Decimal {
	return sharePrice.Mul(decimal.NewFromInt(int64(du.NumShares)))
}

func (du DraftUser) IsPaid() bool { return du.PaidAt != nil }

type SaveDraftUser struct {
	FirstName   string   `json:"first_name" validate:"required,max=150"`
	LastName    string   `json:"last_name" validate:"required,max=150"`
	Email       string   `json:"email" validate:"required,email,max=255"`
	PhoneNumber string   `json:"phone_number" validate:"omitempty,phone"`
	Street      string   `json:"street" validate:"max=150"`
	Street2     string   `json:"street_2" validate:"max=150"`
	Postcode    string   `json:"postcode" validate:"max=32"`
	City        string   `json:"city" validate:"max=50"`
	Country     string   `json:"country" validate:"omitempty,len=2"`
	Birthdate   core.Day `json:"birthdate"`
	NumShares   int      `json:"num_shares" validate:"min=0"`
}

func (sdu *SaveDraftUser) Validate(validate *validator.Validate, today time.Time) error {
	sdu.FirstName = core.CleanString(sdu.FirstName)
	sdu.LastName = core.CleanString(sdu.LastName)
	sdu.Email = core.CleanString(sdu.Email, true /* lower */)
	sdu.PhoneNumber = core.CleanString(sdu.PhoneNumber)
	sdu.Street = core.CleanString(sdu.Street)
	sdu.Street2 = core.CleanString(sdu.Street2)
	sdu.Postcode = core.CleanString(sdu.Postcode)
	sdu.City = core.CleanString(sdu.City)
	sdu.Country = strings.ToUpper(core.CleanString(sdu.Country))
	if sdu.Country == "" {
		sdu.Country = "DE"
	}

	if err := validate.Struct(sdu); err != nil {
		return err
	}
	if !sdu.Birthdate.IsZero() {
		return ValidateBirthdate(sdu.Birthdate.Time, today)
	}
	return nil
}

type RegisterPayment struct {
	Method string `json:"method" validate:"required,oneof=cash bank"`
}

func (rp RegisterPayment) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type WaitingListEntry struct {
	ID             string    `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	PrivacyConsent time.Time `json:"privacy_consent"`
	CreatedAt      time.Time `json:"created_at"`
}

type NewWaitingListEntry struct {
	FirstName      string `json:"first_name" validate:"required,max=150"`
	LastName       string `json:"last_name" validate:"required,max=150"`
	Email          string `json:"email" validate:"required,email,max=255"`
	PrivacyConsent bool   `json:"privacy_consent" validate:"required"`
}

func (nwe *NewWaitingListEntry) Validate(validate *validator.Validate) error {
	nwe.FirstName = core.CleanString(nwe.FirstName)
	nwe.LastName = core.CleanString(nwe.LastName)
	nwe.Email = core.CleanString(nwe.Email, true /* lower */)
	return validate.Struct(nwe)
}
