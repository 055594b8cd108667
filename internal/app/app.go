// Package app provides application initialization and dependency wiring.
//
// App is the container that holds the shared components: the database pool,
// the Genkit embedder, the storage layers and the retrieval service. Setup
// builds everything in dependency order; Close releases resources in reverse.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarryhq/quarry/internal/config"
	"github.com/quarryhq/quarry/internal/log"
	"github.com/quarryhq/quarry/internal/rag"
	"github.com/quarryhq/quarry/internal/store"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Chunks  *store.Chunks
	Vectors *store.Vectors
	Service *rag.Service

	otelCleanup func()
	dbCleanup   func()
}

// Close releases all resources held by the application.
// Safe to call on a partially initialized App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}
