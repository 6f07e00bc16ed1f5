package main

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/hexametals/finsync/internal/finsync"
	"github.com/hexametals/finsync/internal/journal"
	"github.com/hexametals/finsync/internal/report"
	"github.com/hexametals/finsync/internal/store"
)

type application struct {
	config     config
	store      *store.Storage
	log        *logrus.Logger
	reports    *report.Builder
	reconciler *finsync.Reconciler
	deriver    *journal.Deriver
}

type config struct {
	addr          string
	sessionSecret string
	db            dbConfig
}

type dbConfig struct {
	addr         string
	maxOpenConns int
	maxIdleConns int
	maxIdleTime  string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	// Set a timeout value on the request context (ctx), that will signal
	// through ctx.Done() that the request has timed out and further
	// processing should be stopped.
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", app.healthCheckHandler)

		r.Group(func(r chi.Router) {
			r.Use(app.requireSession)
			r.Get("/financial/reports/ots-journal-entries", app.handleGetJournalEntries)
			r.Get("/operations-control", app.handleGetOperationsControl)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/history", app.handleGetSyncHistory)
			r.Post("/run", app.handleTriggerSync)
		})
	})

	return r
}

func (app *application) run(mux http.Handler) error {

	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 120,
		ReadTimeout:  time.Second * 40,
		IdleTimeout:  time.Minute,
	}

	log.Printf("Server started on %s", app.config.addr)
	return srv.ListenAndServe()
}
