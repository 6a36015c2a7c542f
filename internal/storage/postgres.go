package storage

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/stateflow/stateflow/pkg/models"
	"github.com/stateflow/stateflow/pkg/storage"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// PostgresStore persists transition history and scheduled transitions in
// PostgreSQL. The same type serves as both the connection-scoped store and
// the transaction-scoped store returned by Begin.
type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// SaveExecuted appends an executed transition to the history table and
// returns its assigned id.
func (s *PostgresStore) SaveExecuted(t models.Transition) (int64, error) {
	var id int64
	err := s.db.QueryRowx(`
		INSERT INTO workflow_history
			(workflow_type, from_state, to_state, entity_type, entity_id, revision_id, field_name, actor_id, transition_ts, comment, forced)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		t.WorkflowType, t.FromState, t.ToState, t.EntityType, t.EntityID, t.RevisionID, t.Field, t.ActorID, t.Timestamp, t.Comment, t.Forced).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save executed transition: %w", err)
	}
	return id, nil
}

// SaveScheduled upserts the pending scheduled transition for the
// (entity, field) pair; a new schedule supersedes the old one.
func (s *PostgresStore) SaveScheduled(t models.Transition) error {
	_, err := s.db.Exec(`
		INSERT INTO workflow_scheduled
			(workflow_type, from_state, to_state, entity_type, entity_id, revision_id, field_name, actor_id, transition_ts, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (entity_type, entity_id, field_name) DO UPDATE SET
			workflow_type = EXCLUDED.workflow_type,
			from_state = EXCLUDED.from_state,
			to_state = EXCLUDED.to_state,
			revision_id = EXCLUDED.revision_id,
			actor_id = EXCLUDED.actor_id,
			transition_ts = EXCLUDED.transition_ts,
			comment = EXCLUDED.comment`,
		t.WorkflowType, t.FromState, t.ToState, t.EntityType, t.EntityID, t.RevisionID, t.Field, t.ActorID, t.Timestamp, t.Comment)
	if err != nil {
		return fmt.Errorf("save scheduled transition: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestExecuted(entityType, entityID, field string) (models.Transition, error) {
	return s.PreviousExecuted(entityType, entityID, field, 0)
}

func (s *PostgresStore) PreviousExecuted(entityType, entityID, field string, excludeID int64) (models.Transition, error) {
	var t models.Transition
	err := s.db.Get(&t, `
		SELECT * FROM workflow_history
		WHERE entity_type = $1 AND entity_id = $2 AND field_name = $3 AND id != $4
		ORDER BY transition_ts DESC, id DESC LIMIT 1`,
		entityType, entityID, field, excludeID)
	if err == sql.ErrNoRows {
		return models.Transition{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Transition{}, err
	}
	t.Executed = true
	return t, nil
}

func (s *PostgresStore) ListExecuted(entityType, entityID, field string) ([]models.Transition, error) {
	var out []models.Transition
	err := s.db.Select(&out, `
		SELECT * FROM workflow_history
		WHERE entity_type = $1 AND entity_id = $2 AND field_name = $3
		ORDER BY transition_ts DESC, id DESC`,
		entityType, entityID, field)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Executed = true
	}
	return out, nil
}

func (s *PostgresStore) ScheduledFor(entityType, entityID, field string) (models.Transition, error) {
	var t models.Transition
	err := s.db.Get(&t, `
		SELECT * FROM workflow_scheduled
		WHERE entity_type = $1 AND entity_id = $2 AND field_name = $3`,
		entityType, entityID, field)
	if err == sql.ErrNoRows {
		return models.Transition{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Transition{}, err
	}
	t.Scheduled = true
	return t, nil
}

func (s *PostgresStore) DueScheduled(start, end int64) ([]models.Transition, error) {
	var out []models.Transition
	err := s.db.Select(&out, `
		SELECT * FROM workflow_scheduled
		WHERE transition_ts > $1 AND transition_ts <= $2
		ORDER BY transition_ts ASC, id ASC`,
		start, end)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Scheduled = true
	}
	return out, nil
}

func (s *PostgresStore) DeleteScheduled(entityType, entityID, field string) error {
	_, err := s.db.Exec(`
		DELETE FROM workflow_scheduled
		WHERE entity_type = $1 AND entity_id = $2 AND field_name = $3`,
		entityType, entityID, field)
	return err
}

func (s *PostgresStore) DeleteForEntity(entityType, entityID, field string) error {
	_, err := s.db.Exec(`
		DELETE FROM workflow_history
		WHERE entity_type = $1 AND entity_id = $2 AND field_name = $3`,
		entityType, entityID, field)
	if err != nil {
		return err
	}
	return s.DeleteScheduled(entityType, entityID, field)
}
