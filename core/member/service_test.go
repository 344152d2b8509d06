package member_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/logentry"
	"github.com/trezcool/tapir/core/member"
	"github.com/trezcool/tapir/core/payment"
	testutil "github.com/trezcool/tapir/tests"
)

var now = time.Date(2023, time.March, 6, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPersonalData_Validate(t *testing.T) {
	testutil.FreezeTime(t, now)
	app := testutil.NewApp(t)
	existing := app.CreateMember(t, "Ada", "Lovelace", "ada@example.com")
	today := core.DateOf(now, nil)

	valid := member.PersonalData{
		FirstName:   " Grace ",
		LastName:    "Hopper",
		Email:       "GRACE@example.com",
		PhoneNumber: "+49 151 1234567",
		Street:      "Ringstraße 2",
		Postcode:    "04109",
		City:        "Leipzig",
		Country:     "de",
		Birthdate:   core.NewDay(core.Date(1990, time.January, 1)),
		IBAN:        "de89 3704 0044 0532 0130 00",
	}

	pd := valid
	require.NoError(t, pd.Validate(app.Validate, app.Members, today, nil, false))
	assert.Equal(t, "Grace", pd.FirstName)
	assert.Equal(t, "grace@example.com", pd.Email)
	assert.Equal(t, "DE", pd.Country)
	assert.Equal(t, "DE89370400440532013000", pd.IBAN)

	pd = valid
	pd.Email = "ada@example.com"
	err := pd.Validate(app.Validate, app.Members, today, nil, false)
	assert.Equal(t, member.ErrEmailExists, testutil.ValidationErr(err))

	// the member keeps its own email
	pd = valid
	pd.Email = "ada@example.com"
	assert.NoError(t, pd.Validate(app.Validate, app.Members, today, &existing, false))

	// name & birthdate are kept unless editable
	pd = valid
	require.NoError(t, pd.Validate(app.Validate, app.Members, today, &existing, false))
	assert.Equal(t, "Ada", pd.FirstName)
	assert.Equal(t, existing.Birthdate, pd.Birthdate.Time)

	pd = valid
	pd.Birthdate = core.NewDay(core.Date(2010, time.January, 1))
	assert.Error(t, pd.Validate(app.Validate, app.Members, today, nil, false))

	pd = valid
	pd.IBAN = "DE00370400440532013000"
	assert.Error(t, pd.Validate(app.Validate, app.Members, today, nil, false))
}

func TestValidateBirthdate(t *testing.T) {
	today := core.Date(2023, time.March, 6)
	tests := []struct {
		name      string
		birthdate time.Time
		wantErr   bool
	}{
		{name: "missing", wantErr: true},
		{name: "future", birthdate: today.AddDate(0, 0, 1), wantErr: true},
		{name: "too old", birthdate: today.AddDate(-121, 0, 0), wantErr: true},
		{name: "minor", birthdate: today.AddDate(-18, 0, 1), wantErr: true},
		{name: "just 18", birthdate: today.AddDate(-18, 0, 0)},
		{name: "adult", birthdate: core.Date(1970, time.July, 14)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := member.ValidateBirthdate(tt.birthdate, today)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_CreateAndQuery(t *testing.T) {
	testutil.FreezeTime(t, now)
	app := testutil.NewApp(t)
	ctx := context.Background()

	ada := app.CreateMember(t, "Ada", "Lovelace", "ada@example.com")
	grace := app.CreateMember(t, "Grace", "Hopper", "grace@example.com")
	assert.Equal(t, 1, ada.MemberNo)
	assert.Equal(t, 2, grace.MemberNo)
	assert.Equal(t, now, ada.DateJoined)

	members, err := app.Members.Query(ctx, &member.QueryFilter{LastName: "hop"}, nil)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, grace.ID, members[0].ID)

	members, err = app.Members.Query(ctx, nil, []core.DBOrdering{{Field: "first_name", Ascending: false}})
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, grace.ID, members[0].ID)

	many, err := app.Members.GetMany(ctx, []string{ada.ID})
	require.NoError(t, err)
	assert.Equal(t, map[string]member.Member{ada.ID: ada}, many)

	_, err = app.Members.Get(ctx, "unknown")
	assert.Equal(t, member.ErrNotFound, err)
}

func TestService_AddShares(t *testing.T) {
	testutil.FreezeTime(t, now)
	app := testutil.NewApp(t)
	ctx := context.Background()
	m := app.CreateMember(t, "Ada", "Lovelace", "ada@example.com")

	so, err := app.Members.AddShares(ctx, m, member.NewShares{Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, "000001/GENO", so.MandateRef)
	assert.Equal(t, core.Date(2023, time.March, 6), so.EntryDate)
	assert.True(t, dec("50").Equal(so.SharePrice))

	_, err = app.Members.AddShares(ctx, m, member.NewShares{Quantity: 1})
	require.NoError(t, err)

	payments, err := app.Payments.Query(ctx, &payment.QueryFilter{MandateRefs: []string{"000001/GENO"}})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, core.Date(2023, time.March, 15), payments[0].DueDate)
	assert.True(t, dec("200").Equal(payments[0].Amount))
	assert.Equal(t, payment.StatusDue, payments[0].Status)

	shares, err := app.Members.Shares(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, shares, 2)
	assert.Equal(t, "4 × 50,00 €", member.SharesSummary(shares))
}

func TestService_TransferShares(t *testing.T) {
	testutil.FreezeTime(t, now)
	app := testutil.NewApp(t)
	ctx := context.Background()
	origin := app.CreateMember(t, "Ada", "Lovelace", "ada@example.com")
	receiver := app.CreateMember(t, "Grace", "Hopper", "grace@example.com")

	_, err := app.Members.AddShares(ctx, origin, member.NewShares{Quantity: 2, EntryDate: core.NewDay(core.Date(2022, time.January, 1))})
	require.NoError(t, err)
	_, err = app.Members.AddShares(ctx, origin, member.NewShares{Quantity: 3})
	require.NoError(t, err)

	tests := []struct {
		name string
		ts   member.TransferShares
	}{
		{name: "to self", ts: member.TransferShares{ReceiverID: origin.ID, Quantity: 1, SecurityCheck: true}},
		{name: "too many", ts: member.TransferShares{ReceiverID: receiver.ID, Quantity: 6, SecurityCheck: true}},
		{name: "unknown receiver", ts: member.TransferShares{ReceiverID: "unknown", Quantity: 1, SecurityCheck: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := app.Members.TransferShares(ctx, "staff", origin, tt.ts)
			assert.True(t, core.IsValidationError(err), err)
		})
	}

	transferred, err := app.Members.TransferShares(ctx, "staff", origin, member.TransferShares{ReceiverID: receiver.ID, Quantity: 4, SecurityCheck: true})
	require.NoError(t, err)
	assert.Equal(t, receiver.ID, transferred.MemberID)
	assert.Equal(t, 4, transferred.Quantity)
	assert.Equal(t, "000002/GENO", transferred.MandateRef)

	shares, err := app.Members.Shares(ctx, origin.ID)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, 1, shares[0].Quantity)
	assert.Equal(t, core.Date(2022, time.January, 1), shares[0].EntryDate)

	entries, err := app.Logs.Query(ctx, &logentry.QueryFilter{MemberID: origin.ID, Kind: logentry.KindShareTransfer})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "staff", entries[0].ActorID)
	assert.EqualValues(t, 5, entries[0].OldValues["quantity"])
	assert.EqualValues(t, 1, entries[0].NewValues["quantity"])
}

func TestService_WithdrawMembership(t *testing.T) {
	testutil.FreezeTime(t, now)
	app := testutil.NewApp(t)
	ctx := context.Background()
	m := app.CreateMember(t, "Ada", "Lovelace", "ada@example.com")

	_, err := app.Members.AddShares(ctx, m, member.NewShares{Quantity: 2, EntryDate: core.NewDay(core.Date(2023, time.May, 1))})
	require.NoError(t, err)

	isNew, err := app.Members.IsNewMember(ctx, m.ID, core.Date(2023, time.April, 2))
	require.NoError(t, err)
	assert.True(t, isNew)

	require.NoError(t, app.Members.WithdrawMembership(ctx, "staff", m.ID, core.Date(2023, time.April, 2)))

	shares, err := app.Members.Shares(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, shares)
	payments, err := app.Payments.Query(ctx, &payment.QueryFilter{MandateRefs: []string{"000001/GENO"}})
	require.NoError(t, err)
	assert.Empty(t, payments)

	entries, err := app.Logs.Query(ctx, &logentry.QueryFilter{Kind: logentry.KindMembershipWithdrawal})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestService_ConvertDraft(t *testing.T) {
	testutil.FreezeTime(t, now)
	app := testutil.NewApp(t)
	ctx := context.Background()

	sdu := member.SaveDraftUser{
		FirstName: "Jürgen",
		LastName:  "Weiß",
		Email:     " JW@example.com",
		Birthdate: core.NewDay(core.Date(1980, time.May, 1)),
		NumShares: 2,
	}
	require.NoError(t, sdu.Validate(app.Validate, core.DateOf(now, nil)))
	assert.Equal(t, "DE", sdu.Country)
	du, err := app.Members.CreateDraft(ctx, sdu)
	require.NoError(t, err)

	amount, err := app.Members.DraftInitialAmount(ctx, du)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(amount))

	_, err = app.Members.ConvertDraft(ctx, "staff", du)
	assert.Equal(t, member.ErrNotSigned, testutil.ValidationErr(err))

	du, err = app.Members.MarkAgreementSigned(ctx, du)
	require.NoError(t, err)
	du, err = app.Members.RegisterPayment(ctx, du, member.RegisterPayment{Method: member.PaymentCash})
	require.NoError(t, err)
	assert.True(t, du.IsPaid())

	m, err := app.Members.ConvertDraft(ctx, "staff", du)
	require.NoError(t, err)
	assert.Equal(t, "jw@example.com", m.Email)
	assert.Equal(t, 1, m.MemberNo)

	_, err = app.Members.GetDraft(ctx, du.ID)
	assert.Equal(t, member.ErrDraftNotFound, err)

	shares, err := app.Members.Shares(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, 2, shares[0].Quantity)

	entries, err := app.Logs.Query(ctx, &logentry.QueryFilter{MemberID: m.ID, Kind: logentry.KindDraftConversion})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// a second draft with the same email cannot be converted
	du2, err := app.Members.CreateDraft(ctx, member.SaveDraftUser{FirstName: "J", LastName: "W", Email: "jw@example.com"})
	require.NoError(t, err)
	du2, err = app.Members.MarkAgreementSigned(ctx, du2)
	require.NoError(t, err)
	_, err = app.Members.ConvertDraft(ctx, "staff", du2)
	assert.Equal(t, member.ErrEmailExists, testutil.ValidationErr(err))
}

func TestService_Documents(t *testing.T) {
	testutil.FreezeTime(t, now)
	app := testutil.NewApp(t)
	ctx := context.Background()
	m := app.CreateMember(t, "Ada", "Lovelace", "ada@example.com")

	doc, err := app.Members.MembershipAgreementPDF(ctx, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, doc)

	_, err = app.Members.MembershipConfirmationPDF(ctx, m)
	assert.Equal(t, member.ErrNoShares, err)
	assert.Equal(t, member.ErrNoShares, app.Members.SendWelcomeEmail(ctx, m))

	_, err = app.Members.AddShares(ctx, m, member.NewShares{Quantity: 2})
	require.NoError(t, err)
	require.NoError(t, app.Members.SendWelcomeEmail(ctx, m))

	sent := app.Mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ada@example.com", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Mitgliedsnummer: 1")
	assert.Contains(t, sent[0].TextContent, "2 × 50,00 €")
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, "application/pdf", sent[0].Attachments[0].ContentType)
}

func TestService_WaitingList(t *testing.T) {
	testutil.FreezeTime(t, now)
	app := testutil.NewApp(t)
	ctx := context.Background()

	nwe := member.NewWaitingListEntry{FirstName: "Ada", LastName: "Lovelace", Email: "ADA@example.com"}
	assert.Error(t, nwe.Validate(app.Validate))
	nwe.PrivacyConsent = true
	require.NoError(t, nwe.Validate(app.Validate))

	e, err := app.Members.JoinWaitingList(ctx, nwe)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", e.Email)
	assert.Equal(t, now, e.PrivacyConsent)

	entries, err := app.Members.WaitingList(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, app.Members.DeleteWaitingListEntry(ctx, e.ID))
	entries, err = app.Members.WaitingList(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
