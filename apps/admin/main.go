package main

import (
	"log"
	"os"

	"github.com/trezcool/tapir/apps/shared"
	"github.com/trezcool/tapir/core"
	logsvc "github.com/trezcool/tapir/services/logger"
	"github.com/trezcool/tapir/storage/database"
)

var logger *logsvc.RollbarLogger

func main() {
	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(false)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)

	// start CLI
	svcs := shared.NewServices(db, conf, logger)
	cli := commandLine{
		db:      db,
		users:   svcs.Users,
		params:  svcs.Params,
		shifts:  svcs.Shifts,
		exports: svcs.Exports,
		out:     os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
