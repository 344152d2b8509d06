package echoapi_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/tapir/apps/api/echo"
	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/logentry"
	"github.com/trezcool/tapir/core/member"
	"github.com/trezcool/tapir/core/parameter"
	"github.com/trezcool/tapir/core/user"
	testutil "github.com/trezcool/tapir/tests"
)

func personalData(firstName, lastName, email string) member.PersonalData {
	return member.PersonalData{
		FirstName:   firstName,
		LastName:    lastName,
		Email:       email,
		PhoneNumber: "+4915112345678",
		Street:      "Hauptstraße 1",
		Postcode:    "10115",
		City:        "Berlin",
		Country:     "de",
		Birthdate:   core.NewDay(core.Date(1985, time.June, 1)),
		IBAN:        "DE89 3704 0044 0532 0130 00",
	}
}

func Test_memberApi_members(t *testing.T) {
	app, srv := setup(t)
	testutil.FreezeTime(t, core.Date(2023, time.March, 6))
	manager := staffToken(t, app, "manager", user.RoleAccountsManage)
	viewer := staffToken(t, app, "viewer", user.RoleAccountsView)

	rec := do(srv, http.MethodPost, "/v1/members", viewer, marshallObj(t, personalData("Ada", "Lovelace", "ada@tapir.test")))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(srv, http.MethodPost, "/v1/members", manager, marshallObj(t, personalData("Ada", "Lovelace", "ADA@tapir.test")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ada member.Member
	unmarshall(t, rec, &ada)
	assert.Equal(t, "ada@tapir.test", ada.Email)
	assert.Equal(t, "DE", ada.Country)
	assert.Equal(t, "DE89370400440532013000", ada.IBAN)

	bob := app.CreateMember(t, "Bob", "Builder", "bob@tapir.test")

	young := personalData("Cyd", "Young", "cyd@tapir.test")
	young.Birthdate = core.NewDay(core.Date(2010, time.January, 1))

	runHTTPTests(t, srv, []httpTest{
		{
			name: "duplicate email", method: http.MethodPost, path: "/v1/members", token: manager,
			body:     marshallObj(t, personalData("Ada", "Byron", "ada@tapir.test")),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"email": member.ErrEmailExists.Error()}),
		},
		{
			name: "too young", method: http.MethodPost, path: "/v1/members", token: manager, body: marshallObj(t, young),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"birthdate": "you must be at least 18 years old to join the cooperative"}),
		},
		{name: "list", path: "/v1/members", token: viewer, wantData: marshallList(t, ada, bob)},
		{name: "filter", path: "/v1/members?last_name=build", token: viewer, wantData: marshallList(t, bob)},
		{name: "ordering", path: "/v1/members?ordering=-first_name", token: viewer, wantData: marshallList(t, bob, ada)},
		{name: "retrieve", path: "/v1/members/" + ada.ID, token: viewer, wantData: marshallObj(t, ada)},
		{name: "unknown", path: "/v1/members/nope", token: viewer, wantCode: http.StatusNotFound},
	})

	// account managers cannot rename members
	pd := personalData("Augusta", "King", "ada@tapir.test")
	pd.City = "London"
	rec = do(srv, http.MethodPut, "/v1/members/"+ada.ID, manager, marshallObj(t, pd))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshall(t, rec, &ada)
	assert.Equal(t, "Ada", ada.FirstName)
	assert.Equal(t, "London", ada.City)

	rec = do(srv, http.MethodPut, "/v1/members/"+ada.ID, staffToken(t, app, "admin", user.RoleSuperuser), marshallObj(t, pd))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshall(t, rec, &ada)
	assert.Equal(t, "Augusta", ada.FirstName)
}

func Test_memberApi_shares(t *testing.T) {
	app, srv := setup(t)
	testutil.FreezeTime(t, core.Date(2023, time.March, 6))
	manager := staffToken(t, app, "manager", user.RoleAccountsManage)
	ada := app.CreateMember(t, "Ada", "Lovelace", "ada@tapir.test")
	bob := app.CreateMember(t, "Bob", "Builder", "bob@tapir.test")

	// no shares yet
	rec := do(srv, http.MethodGet, "/v1/members/"+ada.ID+"/confirmation.pdf", manager)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(srv, http.MethodPost, "/v1/members/"+ada.ID+"/shares", manager, marshallObj(t, member.NewShares{Quantity: 3}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var so member.ShareOwnership
	unmarshall(t, rec, &so)
	assert.Equal(t, 3, so.Quantity)
	assert.Equal(t, core.Date(2023, time.March, 6), so.EntryDate)

	rec = do(srv, http.MethodPost, "/v1/members/"+ada.ID+"/shares/transfer", manager, marshallObj(t, member.TransferShares{
		ReceiverID: bob.ID, Quantity: 4, SecurityCheck: true,
	}))
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"quantity": "must be at most 3"})}, rec)

	rec = do(srv, http.MethodPost, "/v1/members/"+ada.ID+"/shares/transfer", manager, marshallObj(t, member.TransferShares{
		ReceiverID: bob.ID, Quantity: 1, SecurityCheck: true,
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(srv, http.MethodGet, "/v1/members/"+bob.ID+"/shares", manager)
	var bobShares []member.ShareOwnership
	unmarshall(t, rec, &bobShares)
	if assert.Len(t, bobShares, 1) {
		assert.Equal(t, 1, bobShares[0].Quantity)
	}

	rec = do(srv, http.MethodGet, "/v1/members/"+ada.ID+"/confirmation.pdf", manager)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Ada Lovelace.pdf")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))

	app.Mail.Reset()
	rec = do(srv, http.MethodPost, "/v1/members/"+ada.ID+"/welcome-email", manager)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, app.Mail.Sent(), 1)

	rec = do(srv, http.MethodGet, "/v1/members/"+ada.ID+"/logs", manager)
	var entries []logentry.Entry
	unmarshall(t, rec, &entries)
	if assert.Len(t, entries, 1) {
		assert.Equal(t, logentry.KindShareTransfer, entries[0].Kind)
	}
}

func Test_memberApi_waitingList(t *testing.T) {
	app, srv := setup(t)
	manager := staffToken(t, app, "manager", user.RoleAccountsManage)

	nwe := member.NewWaitingListEntry{FirstName: "Ada", LastName: "Lovelace", Email: "ada@tapir.test"}
	rec := do(srv, http.MethodPost, "/v1/waiting-list", "", marshallObj(t, nwe))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "privacy consent is required")

	nwe.PrivacyConsent = true
	rec = do(srv, http.MethodPost, "/v1/waiting-list", "", marshallObj(t, nwe))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var entry member.WaitingListEntry
	unmarshall(t, rec, &entry)

	runHTTPTests(t, srv, []httpTest{
		{name: "list requires auth", path: "/v1/waiting-list", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "list", path: "/v1/waiting-list", token: manager, wantData: marshallList(t, entry)},
		{name: "delete", method: http.MethodDelete, path: "/v1/waiting-list/" + entry.ID, token: manager, wantCode: http.StatusNoContent},
		{name: "empty", path: "/v1/waiting-list", token: manager, wantData: marshallList(t)},
	})
}

func Test_draftApi(t *testing.T) {
	app, srv := setup(t)
	testutil.FreezeTime(t, core.Date(2023, time.March, 6))
	manager := staffToken(t, app, "manager", user.RoleAccountsManage)

	rec := do(srv, http.MethodPost, "/v1/drafts", manager, marshallObj(t, member.SaveDraftUser{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@tapir.test", NumShares: 2,
		Birthdate: core.NewDay(core.Date(1985, time.June, 1)),
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var du member.DraftUser
	unmarshall(t, rec, &du)
	assert.Equal(t, "DE", du.Country)
	path := "/v1/drafts/" + du.ID

	rec = do(srv, http.MethodGet, path+"/amount", manager)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var amount echoapi.AmountResponse
	unmarshall(t, rec, &amount)
	sharePrice, err := app.Params.Decimal(ctx(), parameter.CoopSharePrice)
	require.NoError(t, err)
	assert.True(t, amount.Amount.Equal(sharePrice.Mul(decimal.NewFromInt(2))), amount.Amount.String())

	rec = do(srv, http.MethodGet, "/v1/drafts/agreement.pdf", manager)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(srv, http.MethodGet, path+"/agreement.pdf", manager)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Ada Lovelace.pdf")

	// the agreement must be signed first
	rec = do(srv, http.MethodPost, path+"/convert", manager)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marshallObj(t, map[string]string{"signed_membership_agreement": member.ErrNotSigned.Error()}),
	}, rec)

	rec = do(srv, http.MethodPost, path+"/agreement-signed", manager)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(srv, http.MethodPost, path+"/welcome-session", manager)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(srv, http.MethodPost, path+"/payment", manager, marshallObj(t, member.RegisterPayment{Method: "crypto"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(srv, http.MethodPost, path+"/payment", manager, marshallObj(t, member.RegisterPayment{Method: member.PaymentCash}))
	require.Equal(t, http.StatusOK, rec.Code)
	unmarshall(t, rec, &du)
	assert.True(t, du.SignedMembershipAgreement)
	assert.True(t, du.AttendedWelcomeSession)
	assert.True(t, du.IsPaid())

	rec = do(srv, http.MethodPost, path+"/convert", manager)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m member.Member
	unmarshall(t, rec, &m)
	assert.Equal(t, "Ada Lovelace", m.DisplayName())

	shares, err := app.Members.Shares(ctx(), m.ID)
	require.NoError(t, err)
	if assert.Len(t, shares, 1) {
		assert.Equal(t, 2, shares[0].Quantity)
	}

	rec = do(srv, http.MethodGet, path, manager)
	assert.Equal(t, http.StatusNotFound, rec.Code, "the draft is deleted once converted")
}
