package persistence

import (
	"encoding/json"
	"errors"

	"bumpin-grid-bot-go/internal/models"

	"github.com/dgraph-io/badger/v3"
)

// badgerRepository is the BadgerDB implementation of the StateRepository.
// Several engines may share one database; each symbol/market pair gets
// its own key.
type badgerRepository struct {
	db       *badger.DB
	stateKey []byte
	ownsDB   bool
}

// NewBadgerRepository opens (or creates) a BadgerDB database at dbPath
// and returns a repository scoped to the given symbol/market pair.
func NewBadgerRepository(dbPath, symbol string, marketIndex int) (StateRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is disabled to keep the app's logs clean;
	// errors still surface from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerRepository{
		db:       db,
		stateKey: []byte(StateKey(symbol, marketIndex)),
		ownsDB:   true,
	}, nil
}

// NewBadgerRepositoryWithDB wraps an already-open database. Close
// becomes a no-op so the shared handle stays usable by other engines.
func NewBadgerRepositoryWithDB(db *badger.DB, symbol string, marketIndex int) StateRepository {
	return &badgerRepository{
		db:       db,
		stateKey: []byte(StateKey(symbol, marketIndex)),
	}
}

// SaveState atomically saves the entire engine state under the
// repository's key.
func (r *badgerRepository) SaveState(state *models.EngineState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(r.stateKey, data)
	})
}

// LoadState loads the engine state from storage. A missing key or an
// unparseable value is reported as (nil, nil).
func (r *badgerRepository) LoadState() (*models.EngineState, error) {
	var state models.EngineState
	var parseFailed bool

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(r.stateKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 || json.Unmarshal(val, &state) != nil {
				parseFailed = true
			}
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if parseFailed {
		return nil, nil
	}
	return &state, nil
}

// Close gracefully closes the connection to the database when this
// repository owns it.
func (r *badgerRepository) Close() error {
	if !r.ownsDB {
		return nil
	}
	return r.db.Close()
}
