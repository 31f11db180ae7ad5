package handlers

import (
	"media-catalog/internal/database"
	"media-catalog/internal/filetypes"
	"media-catalog/internal/indexer"
	"media-catalog/internal/jobs"
	"media-catalog/internal/operations"
	"media-catalog/internal/storage"
)

// Deps are the components the handlers serve.
type Deps struct {
	DB        *database.Database
	Indexer   *indexer.Indexer
	Runner    *operations.Runner
	Queue     *jobs.Queue
	Scheduler *jobs.Scheduler
	Blobs     storage.Store
	Resolver  *filetypes.Resolver
}

type Handlers struct {
	db        *database.Database
	indexer   *indexer.Indexer
	runner    *operations.Runner
	queue     *jobs.Queue
	scheduler *jobs.Scheduler
	blobs     storage.Store
	resolver  *filetypes.Resolver
}

func New(d Deps) *Handlers {
	return &Handlers{
		db:        d.DB,
		indexer:   d.Indexer,
		runner:    d.Runner,
		queue:     d.Queue,
		scheduler: d.Scheduler,
		blobs:     d.Blobs,
		resolver:  d.Resolver,
	}
}
