package core

import "github.com/google/uuid"

// Backend is the capability interface both store variants (legacy,
// optimized) implement. Callers hold a Backend, never a concrete variant —
// the format dispatcher is the only place that knows which one it built.
type Backend interface {
	Exists() bool
	CreateIndex(cfg CreateIndexConfig) error
	GetItem(id uuid.UUID) (*Item, error)
	InsertItem(item Item) error
	InsertItems(items []Item) error
	UpdateItem(item Item) error
	DeleteItem(id uuid.UUID) error
	ListItems(opts *ListOptions) ([]Item, error)
	QueryItems(q Query) ([]QueryResult, error)

	BeginTransaction() error
	CommitTransaction() error
	RollbackTransaction() error

	DeleteIndex() error
	GetStats() (IndexStats, error)
	Flush() error
}
