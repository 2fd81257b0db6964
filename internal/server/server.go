package server

import (
	"fmt"
	"net/http"
	"time"

	"sunspecbridge/internal/config"
	"sunspecbridge/pkg/sunspec"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

type Server struct {
	port        uint
	httpLog     bool
	config      config.Config
	rootContext *actor.RootContext
	masterActor *actor.PID
	store       *sunspec.Store
	staleAfter  time.Duration
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, store *sunspec.Store) *http.Server {
	NewServer := &Server{
		port:        cfg.Port,
		config:      cfg,
		rootContext: rootContext,
		masterActor: masterActor,
		store:       store,
		staleAfter:  time.Duration(cfg.Device.StaleAfterMillis) * time.Millisecond,
		httpLog:     cfg.HttpLog,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
