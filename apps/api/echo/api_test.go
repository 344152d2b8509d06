package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/tapir/apps/api/echo"
	"github.com/trezcool/tapir/core/user"
	inmemdb "github.com/trezcool/tapir/storage/database/inmem"
	testutil "github.com/trezcool/tapir/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func setup(t *testing.T) (*testutil.App, *echoapi.Server) {
	t.Helper()
	app := testutil.NewApp(t)
	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           app.Conf,
		Logger:         app.Logger,
		Validate:       app.Validate,
		Translator:     app.Translator,
		DisableReqLogs: true,
		Users:          app.Users,
		Params:         app.Params,
		Products:       app.Products,
		Members:        app.Members,
		Subscriptions:  app.Subscriptions,
		Payments:       app.Payments,
		Deliveries:     app.Deliveries,
		Shifts:         app.Shifts,
		Exports:        app.Exports,
		Logs:           app.Logs,
	})
	return app, srv
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	if method == "" {
		method = http.MethodGet
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func do(srv *echoapi.Server, method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	srv.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, app *testutil.App, usr user.User) string {
	t.Helper()
	issuer := echoapi.NewTokenIssuer(app.Conf)
	token, err := issuer.Token(issuer.Claims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// staffToken creates an active user holding `roles` and returns its token.
func staffToken(t *testing.T, app *testutil.App, uname string, roles ...string) string {
	t.Helper()
	return getToken(t, app, createUser(t, app, uname, "", roles...))
}

func createUser(t *testing.T, app *testutil.App, uname, pwd string, roles ...string) user.User {
	t.Helper()
	return testutil.CreateUser(t, inmemdb.NewUserRepository(app.DB), uname, uname, uname+"@tapir.test", pwd, roles, true)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func marshallList(t *testing.T, objs ...interface{}) []byte {
	t.Helper()
	if objs == nil {
		objs = []interface{}{}
	}
	return marshallObj(t, objs)
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshall() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, srv *echoapi.Server, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestServer_home(t *testing.T) {
	_, srv := setup(t)
	req, rec := newRequest(http.MethodGet, "/")
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Tapir API!", rec.Body.String())
}

func ctx() context.Context { return context.Background() }
