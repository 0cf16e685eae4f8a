package persistence

import (
	"fmt"

	"bumpin-grid-bot-go/internal/models"
)

// StateRepository defines the interface for engine state persistence.
// It abstracts the underlying storage mechanism (JSON file, BadgerDB)
// from the rest of the application.
type StateRepository interface {
	// SaveState saves the entire engine state.
	SaveState(state *models.EngineState) error

	// LoadState loads the engine state from storage.
	// If no state is found or the stored data cannot be parsed, it
	// returns (nil, nil): a missing or corrupt snapshot is never fatal,
	// the engine simply starts cold.
	LoadState() (*models.EngineState, error)

	// Close gracefully closes the underlying storage.
	Close() error
}

// StateKey derives the storage key (or file stem) for a symbol/market
// pair. Distinct pairs never collide.
func StateKey(symbol string, marketIndex int) string {
	return fmt.Sprintf("grid-state-%s-%d", symbol, marketIndex)
}
