package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	xhttp "StockAction/pkg/http"
	applogger "StockAction/pkg/logger"
)

// Job is a background task started with the HTTP server and stopped after it.
type Job interface {
	Start() error
	Stop(ctx context.Context) error
}

// App encapsulates the serve-mode lifecycle: HTTP API plus background jobs.
type App struct {
	httpServer      *xhttp.Server
	jobs            []Job
	l               *applogger.Logger
	shutdownTimeout time.Duration
}

// New creates a new App. Jobs start in order and stop in reverse.
func New(httpServer *xhttp.Server, l *applogger.Logger, shutdownTimeout time.Duration, jobs ...Job) *App {
	if l == nil {
		l = applogger.Nop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &App{httpServer: httpServer, jobs: jobs, l: l, shutdownTimeout: shutdownTimeout}
}

// Run starts the application and blocks until ctx is done or a shutdown signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, j := range a.jobs {
		if err := j.Start(); err != nil {
			return err
		}
	}
	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.l.Error("http server start error", applogger.Error(err))
			return errors.Join(err, a.stopJobs(context.Background()))
		}
	}
	a.l.Info("application started", applogger.Int("jobs", len(a.jobs)))

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown gracefully stops the HTTP server first, then the jobs.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if err := a.stopJobs(ctx); err != nil {
		errs = append(errs, err)
	}
	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) stopJobs(ctx context.Context) error {
	var errs []error
	for i := len(a.jobs) - 1; i >= 0; i-- {
		if err := a.jobs[i].Stop(ctx); err != nil {
			a.l.Warn("job stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
