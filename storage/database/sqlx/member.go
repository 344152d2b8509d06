package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/member"
)

const memberColumns = "id, member_no, first_name, last_name, email, phone_number, street, street_2, postcode, city, " +
	"country, birthdate, iban, account_owner, pickup_location_id, date_joined"

type memberRow struct {
	ID               string      `db:"id"`
	MemberNo         int         `db:"member_no"`
	FirstName        string      `db:"first_name"`
	LastName         string      `db:"last_name"`
	Email            string      `db:"email"`
	PhoneNumber      string      `db:"phone_number"`
	Street           string      `db:"street"`
	Street2          string      `db:"street_2"`
	Postcode         string      `db:"postcode"`
	City             string      `db:"city"`
	Country          string      `db:"country"`
	Birthdate        null.Time   `db:"birthdate"`
	IBAN             string      `db:"iban"`
	AccountOwner     string      `db:"account_owner"`
	PickupLocationID null.String `db:"pickup_location_id"`
	DateJoined       time.Time   `db:"date_joined"`
}

func toMemberRow(m member.Member) memberRow {
	return memberRow{
		ID:               m.ID,
		MemberNo:         m.MemberNo,
		FirstName:        m.FirstName,
		LastName:         m.LastName,
		Email:            m.Email,
		PhoneNumber:      m.PhoneNumber,
		Street:           m.Street,
		Street2:          m.Street2,
		Postcode:         m.Postcode,
		City:             m.City,
		Country:          m.Country,
		Birthdate:        nullTime(m.Birthdate),
		IBAN:             m.IBAN,
		AccountOwner:     m.AccountOwner,
		PickupLocationID: nullString(m.PickupLocationID),
		DateJoined:       m.DateJoined.UTC(),
	}
}

func (r memberRow) toMember() member.Member {
	return member.Member{
		ID:               r.ID,
		MemberNo:         r.MemberNo,
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		Email:            r.Email,
		PhoneNumber:      r.PhoneNumber,
		Street:           r.Street,
		Street2:          r.Street2,
		Postcode:         r.Postcode,
		City:             r.City,
		Country:          r.Country,
		Birthdate:        utc(r.Birthdate),
		IBAN:             r.IBAN,
		AccountOwner:     r.AccountOwner,
		PickupLocationID: r.PickupLocationID.String,
		DateJoined:       r.DateJoined.UTC(),
	}
}

type shareOwnershipRow struct {
	ID         string          `db:"id"`
	MemberID   string          `db:"member_id"`
	Quantity   int             `db:"quantity"`
	SharePrice decimal.Decimal `db:"share_price"`
	EntryDate  time.Time       `db:"entry_date"`
	EndDate    null.Time       `db:"end_date"`
	MandateRef string          `db:"mandate_ref"`
}

func toShareOwnershipRow(so member.ShareOwnership) shareOwnershipRow {
	return shareOwnershipRow{
		ID:         so.ID,
		MemberID:   so.MemberID,
		Quantity:   so.Quantity,
		SharePrice: so.SharePrice,
		EntryDate:  so.EntryDate.UTC(),
		EndDate:    nullTimeFromPtr(so.EndDate),
		MandateRef: so.MandateRef,
	}
}

func (r shareOwnershipRow) toShareOwnership() member.ShareOwnership {
	return member.ShareOwnership{
		ID:         r.ID,
		MemberID:   r.MemberID,
		Quantity:   r.Quantity,
		SharePrice: r.SharePrice,
		EntryDate:  r.EntryDate.UTC(),
		EndDate:    timePtr(r.EndDate),
		MandateRef: r.MandateRef,
	}
}

const draftUserColumns = "id, first_name, last_name, email, phone_number, street, street_2, postcode, city, country, " +
	"birthdate, num_shares, signed_membership_agreement, attended_welcome_session, payment_method, paid_at, created_at"

type draftUserRow struct {
	ID                        string      `db:"id"`
	FirstName                 string      `db:"first_name"`
	LastName                  string      `db:"last_name"`
	Email                     string      `db:"email"`
	PhoneNumber               string      `db:"phone_number"`
	Street                    string      `db:"street"`
	Street2                   string      `db:"street_2"`
	Postcode                  string      `db:"postcode"`
	City                      string      `db:"city"`
	Country                   string      `db:"country"`
	Birthdate                 null.Time   `db:"birthdate"`
	NumShares                 int         `db:"num_shares"`
	SignedMembershipAgreement bool        `db:"signed_membership_agreement"`
	AttendedWelcomeSession    bool        `db:"attended_welcome_session"`
	PaymentMethod             null.String `db:"payment_method"`
	PaidAt                    null.Time   `db:"paid_at"`
	CreatedAt                 time.Time   `db:"created_at"`
}

func toDraftUserRow(du member.DraftUser) draftUserRow {
	return draftUserRow{
		ID:                        du.ID,
		FirstName:                 du.FirstName,
		LastName:                  du.LastName,
		Email:                     du.Email,
		PhoneNumber:               du.PhoneNumber,
		Street:                    du.Street,
		Street2:                   du.Street2,
		Postcode:                  du.Postcode,
		City:                      du.City,
		Country:                   du.Country,
		Birthdate:                 nullTime(du.Birthdate),
		NumShares:                 du.NumShares,
		SignedMembershipAgreement: du.SignedMembershipAgreement,
		AttendedWelcomeSession:    du.AttendedWelcomeSession,
		PaymentMethod:             nullString(du.PaymentMethod),
		PaidAt:                    nullTimeFromPtr(du.PaidAt),
		CreatedAt:                 du.CreatedAt.UTC(),
	}
}

func (r draftUserRow) toDraftUser() member.DraftUser {
	return member.DraftUser{
		ID:                        r.ID,
		FirstName:                 r.FirstName,
		LastName:                  r.LastName,
		Email:                     r.Email,
		PhoneNumber:               r.PhoneNumber,
		Street:                    r.Street,
		Street2:                   r.Street2,
		Postcode:                  r.Postcode,
		City:                      r.City,
		Country:                   r.Country,
		Birthdate:                 utc(r.Birthdate),
		NumShares:                 r.NumShares,
		SignedMembershipAgreement: r.SignedMembershipAgreement,
		AttendedWelcomeSession:    r.AttendedWelcomeSession,
		PaymentMethod:             r.PaymentMethod.String,
		PaidAt:                    timePtr(r.PaidAt),
		CreatedAt:                 r.CreatedAt.UTC(),
	}
}

type waitingListEntryRow struct {
	ID             string    `db:"id"`
	FirstName      string    `db:"first_name"`
	LastName       string    `db:"last_name"`
	Email          string    `db:"email"`
	PrivacyConsent time.Time `db:"privacy_consent"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r waitingListEntryRow) toEntry() member.WaitingListEntry {
	return member.WaitingListEntry{
		ID:             r.ID,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		Email:          r.Email,
		PrivacyConsent: r.PrivacyConsent.UTC(),
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

type memberRepository struct {
	repository
}

var _ member.Repository = (*memberRepository)(nil)

func NewMemberRepository(db *sqlx.DB) member.Repository {
	return &memberRepository{repository{db: db}}
}

// Members

func (repo *memberRepository) CheckEmailUniqueness(ctx context.Context, email, excludedID string) error {
	w := new(where)
	w.add("lower(email) = lower(?)", email)
	if excludedID != "" {
		w.add("id <> ?", excludedID)
	}

	var found bool
	if err := sqlx.GetContext(ctx, repo.exec(ctx), &found, w.query("SELECT EXISTS (SELECT 1 FROM members", ")"), w.args...); err != nil {
		return errors.Wrap(err, "checking member email")
	}
	if found {
		return member.ErrEmailExists
	}
	return nil
}

func (repo *memberRepository) CreateMember(ctx context.Context, m member.Member) (member.Member, error) {
	m.ID = newID()
	row := toMemberRow(m)
	stmt, err := sqlx.NamedQueryContext(ctx, repo.exec(ctx), `
		INSERT INTO members (id, first_name, last_name, email, phone_number, street, street_2, postcode, city, country,
			birthdate, iban, account_owner, pickup_location_id, date_joined)
		VALUES (:id, :first_name, :last_name, :email, :phone_number, :street, :street_2, :postcode, :city, :country,
			:birthdate, :iban, :account_owner, :pickup_location_id, :date_joined)
		RETURNING member_no`,
		row,
	)
	if err != nil {
		return member.Member{}, errors.Wrap(err, "inserting member")
	}
	defer func() { _ = stmt.Close() }()
	if stmt.Next() {
		if err = stmt.Scan(&row.MemberNo); err != nil {
			return member.Member{}, errors.Wrap(err, "scanning member number")
		}
	}
	if err = stmt.Err(); err != nil {
		return member.Member{}, errors.Wrap(err, "inserting member")
	}
	return row.toMember(), nil
}

func (repo *memberRepository) UpdateMember(ctx context.Context, m member.Member) (member.Member, error) {
	row := toMemberRow(m)
	res, err := sqlx.NamedExecContext(ctx, repo.exec(ctx), `
		UPDATE members SET first_name = :first_name, last_name = :last_name, email = :email,
			phone_number = :phone_number, street = :street, street_2 = :street_2, postcode = :postcode, city = :city,
			country = :country, birthdate = :birthdate, iban = :iban, account_owner = :account_owner,
			pickup_location_id = :pickup_location_id
		WHERE id = :id`,
		row,
	)
	if err = affected(res, err, member.ErrNotFound); err != nil {
		return member.Member{}, err
	}
	return row.toMember(), nil
}

func (repo *memberRepository) GetMember(ctx context.Context, id string) (member.Member, error) {
	var row memberRow
	if err := sqlx.GetContext(ctx, repo.exec(ctx), &row, "SELECT "+memberColumns+" FROM members WHERE id = $1", id); err != nil {
		return member.Member{}, trapNoRowsErr(err, member.ErrNotFound)
	}
	return row.toMember(), nil
}

func (repo *memberRepository) selectMembers(ctx context.Context, w *where, suffix string) ([]member.Member, error) {
	var rows []memberRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows, w.query("SELECT "+memberColumns+" FROM members", suffix), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying members")
	}
	members := make([]member.Member, 0, len(rows))
	for _, r := range rows {
		members = append(members, r.toMember())
	}
	return members, nil
}

func (repo *memberRepository) QueryMembers(ctx context.Context, filter *member.QueryFilter, ordering []core.DBOrdering) ([]member.Member, error) {
	w := new(where)
	if filter != nil {
		if filter.FirstName != "" {
			w.add("first_name ILIKE ?", likeContains(filter.FirstName))
		}
		if filter.LastName != "" {
			w.add("last_name ILIKE ?", likeContains(filter.LastName))
		}
		if filter.Email != "" {
			w.add("email ILIKE ?", likeContains(filter.Email))
		}
	}
	return repo.selectMembers(ctx, w, orderClause(ordering))
}

func (repo *memberRepository) QueryMembersByID(ctx context.Context, ids []string) ([]member.Member, error) {
	if len(ids) == 0 {
		return []member.Member{}, nil
	}
	w := new(where)
	w.add("id = ANY (?)", stringArray(ids))
	return repo.selectMembers(ctx, w, " ORDER BY member_no")
}

// Coop Shares

func (repo *memberRepository) CreateShareOwnership(ctx context.Context, so member.ShareOwnership) (member.ShareOwnership, error) {
	so.ID = newID()
	row := toShareOwnershipRow(so)
	_, err := sqlx.NamedExecContext(ctx, repo.exec(ctx), `
		INSERT INTO share_ownerships (id, member_id, quantity, share_price, entry_date, end_date, mandate_ref)
		VALUES (:id, :member_id, :quantity, :share_price, :entry_date, :end_date, :mandate_ref)`,
		row,
	)
	if err != nil {
		return member.ShareOwnership{}, errors.Wrap(err, "inserting share ownership")
	}
	return row.toShareOwnership(), nil
}

func (repo *memberRepository) UpdateShareOwnership(ctx context.Context, so member.ShareOwnership) (member.ShareOwnership, error) {
	row := toShareOwnershipRow(so)
	res, err := sqlx.NamedExecContext(ctx, repo.exec(ctx), `
		UPDATE share_ownerships SET member_id = :member_id, quantity = :quantity, share_price = :share_price,
			entry_date = :entry_date, end_date = :end_date, mandate_ref = :mandate_ref
		WHERE id = :id`,
		row,
	)
	if err = affected(res, err, member.ErrNotFound); err != nil {
		return member.ShareOwnership{}, err
	}
	return row.toShareOwnership(), nil
}

func (repo *memberRepository) DeleteShareOwnership(ctx context.Context, id string) error {
	res, err := repo.exec(ctx).ExecContext(ctx, "DELETE FROM share_ownerships WHERE id = $1", id)
	return affected(res, err, member.ErrNotFound)
}

func (repo *memberRepository) QueryShareOwnerships(ctx context.Context, memberID string) ([]member.ShareOwnership, error) {
	w := new(where)
	if memberID != "" {
		w.add("member_id = ?", memberID)
	}

	var rows []shareOwnershipRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows, w.query(`
		SELECT id, member_id, quantity, share_price, entry_date, end_date, mandate_ref FROM share_ownerships`,
		" ORDER BY entry_date"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying share ownerships")
	}
	shares := make([]member.ShareOwnership, 0, len(rows))
	for _, r := range rows {
		shares = append(shares, r.toShareOwnership())
	}
	return shares, nil
}

// Draft Users

func (repo *memberRepository) CreateDraftUser(ctx context.Context, du member.DraftUser) (member.DraftUser, error) {
	du.ID = newID()
	row := toDraftUserRow(du)
	_, err := sqlx.NamedExecContext(ctx, repo.exec(ctx), `
		INSERT INTO draft_users (`+draftUserColumns+`)
		VALUES (:id, :first_name, :last_name, :email, :phone_number, :street, :street_2, :postcode, :city, :country,
			:birthdate, :num_shares, :signed_membership_agreement, :attended_welcome_session, :payment_method,
			:paid_at, :created_at)`,
		row,
	)
	if err != nil {
		return member.DraftUser{}, errors.Wrap(err, "inserting draft user")
	}
	return row.toDraftUser(), nil
}

func (repo *memberRepository) UpdateDraftUser(ctx context.Context, du member.DraftUser) (member.DraftUser, error) {
	row := toDraftUserRow(du)
	res, err := sqlx.NamedExecContext(ctx, repo.exec(ctx), `
		UPDATE draft_users SET first_name = :first_name, last_name = :last_name, email = :email,
			phone_number = :phone_number, street = :street, street_2 = :street_2, postcode = :postcode, city = :city,
			country = :country, birthdate = :birthdate, num_shares = :num_shares,
			signed_membership_agreement = :signed_membership_agreement,
			attended_welcome_session = :attended_welcome_session, payment_method = :payment_method, paid_at = :paid_at
		WHERE id = :id`,
		row,
	)
	if err = affected(res, err, member.ErrDraftNotFound); err != nil {
		return member.DraftUser{}, err
	}
	return row.toDraftUser(), nil
}

func (repo *memberRepository) GetDraftUser(ctx context.Context, id string) (member.DraftUser, error) {
	var row draftUserRow
	if err := sqlx.GetContext(ctx, repo.exec(ctx), &row, "SELECT "+draftUserColumns+" FROM draft_users WHERE id = $1", id); err != nil {
		return member.DraftUser{}, trapNoRowsErr(err, member.ErrDraftNotFound)
	}
	return row.toDraftUser(), nil
}

func (repo *memberRepository) QueryDraftUsers(ctx context.Context) ([]member.DraftUser, error) {
	var rows []draftUserRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		"SELECT "+draftUserColumns+" FROM draft_users ORDER BY created_at"); err != nil {
		return nil, errors.Wrap(err, "querying draft users")
	}
	drafts := make([]member.DraftUser, 0, len(rows))
	for _, r := range rows {
		drafts = append(drafts, r.toDraftUser())
	}
	return drafts, nil
}

func (repo *memberRepository) DeleteDraftUser(ctx context.Context, id string) error {
	res, err := repo.exec(ctx).ExecContext(ctx, "DELETE FROM draft_users WHERE id = $1", id)
	return affected(res, err, member.ErrDraftNotFound)
}

// Waiting List

func (repo *memberRepository) CreateWaitingListEntry(ctx context.Context, e member.WaitingListEntry) (member.WaitingListEntry, error) {
	e.ID = newID()
	_, err := repo.exec(ctx).ExecContext(ctx, `
		INSERT INTO waiting_list_entries (id, first_name, last_name, email, privacy_consent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.FirstName, e.LastName, e.Email, e.PrivacyConsent.UTC(), e.CreatedAt.UTC(),
	)
	if err != nil {
		return member.WaitingListEntry{}, errors.Wrap(err, "inserting waiting list entry")
	}
	return e, nil
}

func (repo *memberRepository) QueryWaitingListEntries(ctx context.Context) ([]member.WaitingListEntry, error) {
	var rows []waitingListEntryRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows, `
		SELECT id, first_name, last_name, email, privacy_consent, created_at FROM waiting_list_entries
		ORDER BY created_at`); err != nil {
		return nil, errors.Wrap(err, "querying waiting list")
	}
	entries := make([]member.WaitingListEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toEntry())
	}
	return entries, nil
}

func (repo *memberRepository) DeleteWaitingListEntry(ctx context.Context, id string) error {
	res, err := repo.exec(ctx).ExecContext(ctx, "DELETE FROM waiting_list_entries WHERE id = $1", id)
	return affected(res, err, member.ErrNotFound)
}
