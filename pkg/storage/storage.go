package storage

import (
	"github.com/pkg/errors"

	"github.com/stateflow/stateflow/pkg/models"
)

// ErrNotFound is returned when a queried transition record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations for workflow transition history
// and pending scheduled transitions. All queries are scoped by
// (entityType, entityID, field) unless noted. Implementations back onto
// PostgreSQL in production and memory in tests.
type Store interface {
	// Transaction handling. Begin returns a Store bound to a transaction;
	// Commit/Rollback only work on such a Store.
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// SaveExecuted appends an executed transition to the history and
	// returns its assigned id.
	SaveExecuted(t models.Transition) (int64, error)

	// SaveScheduled stores a pending scheduled transition, replacing any
	// existing scheduled transition for the same (entity, field) pair.
	SaveScheduled(t models.Transition) error

	// LatestExecuted returns the most recent executed transition, or
	// ErrNotFound when the entity has no history.
	LatestExecuted(entityType, entityID, field string) (models.Transition, error)

	// PreviousExecuted returns the most recent executed transition whose id
	// is not excludeID. Used while an update is in flight to read the state
	// the entity had before the record currently being processed.
	PreviousExecuted(entityType, entityID, field string, excludeID int64) (models.Transition, error)

	// ListExecuted returns the full executed history, most recent first.
	ListExecuted(entityType, entityID, field string) ([]models.Transition, error)

	// ScheduledFor returns the pending scheduled transition for the pair,
	// or ErrNotFound.
	ScheduledFor(entityType, entityID, field string) (models.Transition, error)

	// DueScheduled returns scheduled transitions with due timestamp in the
	// half-open window (start, end], ordered by due time ascending.
	DueScheduled(start, end int64) ([]models.Transition, error)

	// DeleteScheduled removes the pending scheduled transition for the
	// pair, if any. Used when a schedule goes stale.
	DeleteScheduled(entityType, entityID, field string) error

	// DeleteForEntity removes both executed history and pending scheduled
	// records for the pair. Used on entity deletion and field removal.
	DeleteForEntity(entityType, entityID, field string) error
}
