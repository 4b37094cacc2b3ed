package main

import (
	"fmt"
	"log"
	"os"

	"github.com/iradukundapaci/communiserver-sub002/core"
	logsvc "github.com/iradukundapaci/communiserver-sub002/services/logger"
	"github.com/iradukundapaci/communiserver-sub002/storage/database"
	sqlxrepos "github.com/iradukundapaci/communiserver-sub002/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger, err := logsvc.NewRollbarLogger(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger.Enable(false) // operators read the errors on the terminal

	// set up DB
	if err = database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: sqlxrepos.NewUserRepository(db),
		now:     core.UTCNow,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		_ = logger.Sync()
		os.Exit(1)
	}
}
