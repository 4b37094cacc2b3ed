package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	echoapi "github.com/iradukundapaci/communiserver-sub002/apps/api/echo"
	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/activity"
	"github.com/iradukundapaci/communiserver-sub002/core/analytics"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
	"github.com/iradukundapaci/communiserver-sub002/core/setting"
	"github.com/iradukundapaci/communiserver-sub002/core/user"
	cachesvc "github.com/iradukundapaci/communiserver-sub002/services/cache"
	emailsvc "github.com/iradukundapaci/communiserver-sub002/services/email"
	logsvc "github.com/iradukundapaci/communiserver-sub002/services/logger"
	pdfsvc "github.com/iradukundapaci/communiserver-sub002/services/pdf"
	spreadsheetsvc "github.com/iradukundapaci/communiserver-sub002/services/spreadsheet"
	storagesvc "github.com/iradukundapaci/communiserver-sub002/services/storage"
	"github.com/iradukundapaci/communiserver-sub002/storage/database"
	sqlxrepos "github.com/iradukundapaci/communiserver-sub002/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger, err := logsvc.NewRollbarLogger(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger.Enable(!conf.Debug)
	defer func() { _ = logger.Sync() }()

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error(fmt.Sprintf("closing database: %v", err), err)
		}
	}()

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// revoked tokens must be seen by every replica, memory is only good for a single one
	var denylist core.TokenDenylist
	if conf.Redis.Addr != "" {
		rdb := cachesvc.NewRedisClient(conf.Redis)
		defer rdb.Close()
		denylist = cachesvc.NewRedisDenylist(rdb)
	} else {
		logger.Warn("redis is not configured: revoked tokens are kept in memory")
		denylist = cachesvc.NewMemoryDenylist()
	}

	var storage core.FileStorage
	if conf.Storage.AccessKey != "" {
		if storage, err = storagesvc.NewMinioStorage(context.Background(), conf.Storage); err != nil {
			logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
		}
	} else {
		logger.Warn("file storage is not configured: evidence uploads are disabled")
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	permission.InitValidators(validate, translator)
	location.InitValidators(validate, translator)
	activity.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	tx := database.NewTransactor(db)
	usrSvc := user.NewService(tx, sqlxrepos.NewUserRepository(db), mailSvc, conf)
	locSvc := location.NewService(tx, sqlxrepos.NewLocationRepository(db), usrSvc, validate)
	actSvc := activity.NewService(tx, sqlxrepos.NewActivityRepository(db), locSvc, validate)
	settingSvc := setting.NewService(sqlxrepos.NewSettingRepository(db), validate)
	analyticsSvc := analytics.NewService(sqlxrepos.NewAnalyticsStore(db))

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Scheduler

	scheduler := cron.New()
	if _, err = scheduler.AddFunc("@hourly", func() {
		n, err := usrSvc.PurgeExpiredVerifications(context.Background())
		if err != nil {
			logger.Error(fmt.Sprintf("purging expired verifications: %v", err), err)
			return
		}
		logger.Debug(fmt.Sprintf("purged %d expired verifications", n))
	}); err != nil {
		logger.Fatal(fmt.Sprintf("scheduling verification purge: %v", err), err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:         conf,
		Logger:       logger,
		Validate:     validate,
		Translator:   translator,
		UserSvc:      usrSvc,
		LocationSvc:  locSvc,
		ActivitySvc:  actSvc,
		AnalyticsSvc: analyticsSvc,
		SettingSvc:   settingSvc,
		Denylist:     denylist,
		Storage:      storage,
		PDF:          pdfsvc.NewRenderer(),
		XLSX:         spreadsheetsvc.NewRenderer(),
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
