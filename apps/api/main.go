package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	echoapi "github.com/trezcool/tapir/apps/api/echo"
	"github.com/trezcool/tapir/apps/shared"
	"github.com/trezcool/tapir/core"
	logsvc "github.com/trezcool/tapir/services/logger"
	schedulersvc "github.com/trezcool/tapir/services/scheduler"
)

func main() {
	if err := start(); err != nil {
		log.Println("error:", err)
		os.Exit(1)
	}
}

func start() error {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	db, err := shared.SetUpDB(conf)
	if err != nil {
		return errors.Wrap(err, "setting up database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	svcs := shared.NewServices(db, conf, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		Validate:      svcs.Validate,
		Translator:    svcs.Translator,
		Users:         svcs.Users,
		Params:        svcs.Params,
		Products:      svcs.Products,
		Members:       svcs.Members,
		Subscriptions: svcs.Subscriptions,
		Payments:      svcs.Payments,
		Deliveries:    svcs.Deliveries,
		Shifts:        svcs.Shifts,
		Exports:       svcs.Exports,
		Logs:          svcs.Logs,
	})

	var g run.Group
	g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

	// a request handler hit an integrity issue
	shutdownCtx, cancelShutdown := context.WithCancel(context.Background())
	g.Add(func() error {
		select {
		case sig := <-server.ShutdownSignal():
			return errors.Errorf("shutdown requested: %v", sig)
		case <-shutdownCtx.Done():
			return nil
		}
	}, func(error) {
		cancelShutdown()
	})

	// =========================================================================
	// API Service

	g.Add(func() error {
		logger.Info(fmt.Sprintf("API listening on %s", conf.Server.Address))
		return server.Start()
	}, func(error) {
		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	})

	// =========================================================================
	// Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus metrics.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", promhttp.Handler())

	debugSrv := &http.Server{Addr: conf.Server.DebugHost, Handler: http.DefaultServeMux}
	g.Add(func() error {
		if err := debugSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "debug server")
		}
		return nil
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		_ = debugSrv.Shutdown(ctx)
	})

	// =========================================================================
	// Export jobs

	if conf.Scheduler.Enabled {
		sched, err := schedulersvc.NewScheduler(svcs.Exports, conf, logger, schedulersvc.NewMetrics(prometheus.DefaultRegisterer))
		if err != nil {
			return errors.Wrap(err, "setting up scheduler")
		}
		stop := make(chan struct{})
		g.Add(func() error {
			sched.Start()
			<-stop
			return nil
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()
			if err := sched.Stop(ctx); err != nil {
				logger.Warn(fmt.Sprintf("export jobs still running: %v", err))
			}
			close(stop)
		})
	}

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		logger.Info(fmt.Sprintf("%v: shutdown complete", sigErr.Signal))
		return nil
	}
	return err
}
