package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/config"
	"github.com/aegisid/aegisid/pkg/policy"
	"github.com/aegisid/aegisid/pkg/review"
	"github.com/aegisid/aegisid/pkg/server/middleware"
	"github.com/aegisid/aegisid/pkg/server/store"
	gormstore "github.com/aegisid/aegisid/pkg/server/store/gorm"
)

// Server holds the state for the AegisID API server
type Server struct {
	Config *config.AegisConfig
	Router *mux.Router
	DB     *gorm.DB

	Identities store.IdentityStore
	Runs       store.RunStore
	Findings   store.FindingStore
	Operators  store.OperatorStore
	Health     store.HealthStore
	Policies   policy.Store
	Chain      *audit.Chain
	Engine     *review.Engine
	Scheduler  *review.Scheduler

	TokenAuth *middleware.TokenAuthenticator

	srv *http.Server
}

// NewServer wires the API server onto an open database connection: stores,
// audit chain, review engine, scheduler, and the HTTP router with request
// logging and response-time metrics.
func NewServer(db *gorm.DB, cfg *config.AegisConfig, tokenKey []byte, host string, port string) (*Server, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	identities := gormstore.NewIdentityStore(db)
	runs := gormstore.NewRunStore(db)
	findings := gormstore.NewFindingStore(db)
	chain := audit.NewChain(sqlDB)
	policies := policy.NewGormStore(db)

	engine := review.NewEngine(review.EngineParams{
		Identities:        identities,
		Runs:              runs,
		Findings:          findings,
		Chain:             chain,
		Policies:          policies,
		MaxConcurrentRuns: cfg.MaxConcurrentRuns,
	})

	router := mux.NewRouter()
	router.UseEncodedPath()
	router.Use(middleware.ResponseTime)
	srv := &http.Server{
		Handler: handlers.LoggingHandler(os.Stdout, router),
		Addr:    host + ":" + port,
		// Good practice: enforce timeouts for servers you create!
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	return &Server{
		Config:     cfg,
		Router:     router,
		DB:         db,
		Identities: identities,
		Runs:       runs,
		Findings:   findings,
		Operators:  gormstore.NewOperatorStore(db),
		Health:     gormstore.NewHealthStore(db),
		Policies:   policies,
		Chain:      chain,
		Engine:     engine,
		Scheduler:  review.NewScheduler(engine),
		TokenAuth:  middleware.NewTokenAuthenticator(tokenKey),
		srv:        srv,
	}, nil
}

// ActivatePolicy installs the most recently loaded policy version on the
// engine and syncs the scheduler to its schedule. With no stored version
// the engine keeps the built-in default policy and nothing is scheduled.
func (s *Server) ActivatePolicy() error {
	p, pv, err := policy.LoadCurrent(s.Policies)
	if err != nil {
		if errors.Is(err, policy.ErrVersionNotFound) {
			return nil
		}
		return err
	}
	s.Engine.SetPolicy(p, &pv.Version)
	return s.Scheduler.Reload(p.Schedule)
}

// Start starts the scheduler and the HTTP server
func (s *Server) Start() error {
	s.Scheduler.Start()
	return s.srv.ListenAndServe()
}

// Shutdown stops the scheduler, drains in-flight HTTP requests, and waits
// for background review runs to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Scheduler.Stop()
	err := s.srv.Shutdown(ctx)
	s.Engine.Wait()
	return err
}
