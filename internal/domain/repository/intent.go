package repository

import (
	"context"
	"errors"

	"github.com/zots0127/fileshare/internal/domain/entities"
)

// IntentJournal is a write-ahead log of mutating lifecycle workflows
type IntentJournal interface {
	// Begin persists a new intent
	Begin(ctx context.Context, intent *entities.Intent) error

	// Advance records the last completed state of an intent
	Advance(ctx context.Context, id string, state entities.LifecycleState) error

	// Fail records the failure that left an intent pending
	Fail(ctx context.Context, id string, state entities.LifecycleState, cause error) error

	// Complete removes an intent whose workflow finished
	Complete(ctx context.Context, id string) error

	// Pending returns the intents that did not complete, oldest first
	Pending(ctx context.Context) ([]*entities.Intent, error)
}

// ErrIntentNotFound is returned when an intent id is unknown
var ErrIntentNotFound = errors.New("intent not found")
