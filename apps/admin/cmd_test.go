package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tapir/core/export"
	"github.com/trezcool/tapir/core/parameter"
	"github.com/trezcool/tapir/core/shift"
	"github.com/trezcool/tapir/core/user"
	inmemdb "github.com/trezcool/tapir/storage/database/inmem"
	testutil "github.com/trezcool/tapir/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.App, *bytes.Buffer) {
	app := testutil.NewApp(t)
	out := new(bytes.Buffer)
	return &commandLine{
		users:   app.Users,
		params:  app.Params,
		shifts:  app.Shifts,
		exports: app.Exports,
		out:     out,
	}, app, out
}

func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, _, out := setup(t)

	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	})
	assert.Contains(t, out.String(), "Usage:")
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	var ran []string
	orig := migrateFunc
	migrateFunc = func(db *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}
	t.Cleanup(func() { migrateFunc = orig })

	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
	})
	assert.Equal(t, []string{"up", "up-to", "down-to", "status"}, ran)
}

func Test_commandLine_addUser(t *testing.T) {
	cli, app, _ := setup(t)

	t.Run("no password", func(t *testing.T) {
		mockPassword(t, "")
		assert.Equal(t, errHelp, cli.run([]string{"admin", "adduser", "-username", "root"}))
	})

	mockPassword(t, "s3cret-Pa55")
	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "create", args: []string{"adduser", "-username", "Root", "-email", "root@tapir.test"}},
		{name: "update", args: []string{"adduser", "-username", "root"}},
	})

	usrs, err := app.Users.Query(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, usrs, 1)
	usr := usrs[0]
	assert.Equal(t, "root", usr.Username)
	assert.Equal(t, "root@tapir.test", usr.Email)
	assert.True(t, usr.IsSuperuser())
	assert.NoError(t, usr.CheckPassword("s3cret-Pa55"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, app, _ := setup(t)
	repo := inmemdb.NewUserRepository(app.DB)
	usr := testutil.CreateUser(t, repo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	t.Run("no password", func(t *testing.T) {
		mockPassword(t, "")
		assert.Equal(t, errHelp, cli.run([]string{"admin", "resetpassword", "-username", usr.Username}))
	})

	for _, tt := range []struct {
		name    string
		uname   string
		pwd     string
		wantErr error
	}{
		{name: "user not found", uname: "lol", pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", uname: usr.Username, pwd: "lol"},
		{name: "reset with email", uname: usr.Email, pwd: "lmao"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			err := cli.run([]string{"admin", "resetpassword", "-username", tt.uname})
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			refreshed, err := app.Users.GetByID(context.Background(), usr.ID)
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(tt.pwd))
		})
	}
}

func Test_commandLine_export(t *testing.T) {
	cli, _, out := setup(t)
	testutil.FreezeTime(t, time.Date(2023, time.April, 3, 6, 0, 0, 0, time.UTC))
	dir := t.TempDir()

	runCLITests(t, cli, []cliTest{
		{name: "no job", args: []string{"export"}, wantErr: errHelp},
		{name: "unknown job", args: []string{"export", "-job", "nope", "-out", dir}, wantErr: export.ErrUnknownJob},
		{name: "supplier list", args: []string{"export", "-job", export.JobSupplierList, "-out", dir}},
	})

	path := filepath.Join(dir, "supplier_list_2023-04-05.csv")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "delivery_date;product_type;product;quantity\n", string(content))
	assert.Contains(t, out.String(), "exported "+path)
}

func Test_commandLine_generateShifts(t *testing.T) {
	cli, app, out := setup(t)
	testutil.FreezeTime(t, time.Date(2023, time.March, 6, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	runCLITests(t, cli, []cliTest{
		{name: "no groups", args: []string{"generateshifts"}, wantErr: shift.ErrNoGroups},
		{name: "no weeks", args: []string{"generateshifts", "-weeks", "0"}, wantErr: errHelp},
	})

	grp, err := app.Shifts.CreateGroup(ctx, shift.NewGroup{Name: "Every week", WeekIndex: 1})
	require.NoError(t, err)
	_, err = app.Shifts.CreateTemplate(ctx, shift.SaveTemplate{
		GroupID: grp.ID, Name: "Harvest", Weekday: 2, StartTime: "08:00", EndTime: "11:00", NumSlots: 2,
	})
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "generateshifts", "-weeks", "2"}))
	assert.Equal(t, "2 shifts created\n", out.String())
}

func Test_commandLine_setParam(t *testing.T) {
	cli, app, out := setup(t)

	runCLITests(t, cli, []cliTest{
		{name: "no key", args: []string{"setparam"}, wantErr: errHelp},
		{name: "unknown key", args: []string{"setparam", "-key", "nope", "-value", "1"}, wantErrStr: "nope: " + parameter.ErrUnknownKey.Error()},
		{name: "set", args: []string{"setparam", "-key", parameter.PaymentDueDay, "-value", "20"}},
	})

	assert.Contains(t, out.String(), parameter.PaymentDueDay+" = 20")
	due, err := app.Params.Int(context.Background(), parameter.PaymentDueDay)
	require.NoError(t, err)
	assert.Equal(t, 20, due)
}
