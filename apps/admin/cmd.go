package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/tapir/core/export"
	"github.com/trezcool/tapir/core/parameter"
	"github.com/trezcool/tapir/core/shift"
	"github.com/trezcool/tapir/core/user"
	"github.com/trezcool/tapir/storage/database"
)

var (
	// mockable
	readPasswordFunc = term.ReadPassword
	migrateFunc      = database.Migrate

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sqlx.DB
	users   *user.Service
	params  *parameter.Service
	shifts  *shift.Service
	exports *export.Service
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                     - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL    - create or update a superuser")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL     - reset user's password")
	fmt.Fprintln(cli.out, "  export -job JOB [-out DIR]                 - run an export job ("+strings.Join(export.Jobs(), ", ")+")")
	fmt.Fprintln(cli.out, "  generateshifts [-weeks N]                  - create the shifts of the next weeks from the templates")
	fmt.Fprintln(cli.out, "  setparam -key KEY -value VALUE             - set a configuration parameter")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserUname := addUserCmd.String("username", "", "The superuser's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The superuser's email.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	exportJob := exportCmd.String("job", "", "The export job to run.")
	exportOut := exportCmd.String("out", ".", "The directory to write the exported file to.")

	generateShiftsCmd := flag.NewFlagSet("generateshifts", flag.ExitOnError)
	generateShiftsWeeks := generateShiftsCmd.Int("weeks", 4, "The number of weeks to create shifts for.")

	setParamCmd := flag.NewFlagSet("setparam", flag.ExitOnError)
	setParamKey := setParamCmd.String("key", "", "The parameter key.")
	setParamValue := setParamCmd.String("value", "", "The parameter value.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return migrateFunc(cli.db, args[2], args[3:]...)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" && *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		usr, err := cli.users.UpsertAdmin(ctx, *addUserUname, *addUserEmail, pwd)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "superuser %q saved\n", usr.Username)
		return nil

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.users.ChangePassword(ctx, *resetPasswordUname, pwd)

	case "export":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *exportJob == "" {
			exportCmd.Usage()
			return errHelp
		}
		return cli.export(ctx, *exportJob, *exportOut)

	case "generateshifts":
		if err := generateShiftsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *generateShiftsWeeks < 1 {
			generateShiftsCmd.Usage()
			return errHelp
		}
		shifts, err := cli.shifts.GenerateShifts(ctx, *generateShiftsWeeks)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%d shifts created\n", len(shifts))
		return nil

	case "setparam":
		if err := setParamCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *setParamKey == "" {
			setParamCmd.Usage()
			return errHelp
		}
		p, err := cli.params.Set(ctx, *setParamKey, *setParamValue)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%s = %s\n", p.Key, p.Value)
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) export(ctx context.Context, job, dir string) error {
	f, err := cli.exports.Run(ctx, job)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, f.Filename())
	if err = os.WriteFile(path, f.Content, 0o644); err != nil {
		return errors.Wrap(err, "writing exported file")
	}
	fmt.Fprintf(cli.out, "exported %s\n", path)
	return nil
}
