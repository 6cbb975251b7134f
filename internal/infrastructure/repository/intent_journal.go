package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/domain/repository"
)

const intentKeyPrefix = "intent:"

// JournalConfig configures the badger intent journal
type JournalConfig struct {
	Path     string
	InMemory bool
}

// BadgerIntentJournal implements repository.IntentJournal on BadgerDB
type BadgerIntentJournal struct {
	db *badger.DB
}

var _ repository.IntentJournal = (*BadgerIntentJournal)(nil)

// NewBadgerIntentJournal opens the journal database
func NewBadgerIntentJournal(cfg JournalConfig) (*BadgerIntentJournal, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("journal path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	// intents are tiny JSON documents
	opts = opts.WithLoggingLevel(badger.WARNING).
		WithCompression(options.None).
		WithSyncWrites(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open intent journal at %s: %w", cfg.Path, err)
	}
	return &BadgerIntentJournal{db: db}, nil
}

// Close closes the journal database
func (j *BadgerIntentJournal) Close() error {
	return j.db.Close()
}

// Begin persists a new intent
func (j *BadgerIntentJournal) Begin(ctx context.Context, intent *entities.Intent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if intent.ID == "" {
		return errors.New("intent id is required")
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}
	if intent.UpdatedAt.IsZero() {
		intent.UpdatedAt = intent.CreatedAt
	}

	return j.db.Update(func(txn *badger.Txn) error {
		return putIntent(txn, intent)
	})
}

// Advance records the last completed state of an intent
func (j *BadgerIntentJournal) Advance(ctx context.Context, id string, state entities.LifecycleState) error {
	return j.modify(ctx, id, func(intent *entities.Intent) {
		intent.State = state
	})
}

// Fail records the failure that left an intent pending
func (j *BadgerIntentJournal) Fail(ctx context.Context, id string, state entities.LifecycleState, cause error) error {
	return j.modify(ctx, id, func(intent *entities.Intent) {
		intent.State = state
		if cause != nil {
			intent.Error = cause.Error()
		}
	})
}

// Complete removes an intent whose workflow finished
func (j *BadgerIntentJournal) Complete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(intentKey(id))
	})
}

// Pending returns the intents that did not complete, oldest first
func (j *BadgerIntentJournal) Pending(ctx context.Context) ([]*entities.Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var intents []*entities.Intent
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(intentKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var intent entities.Intent
				if err := json.Unmarshal(val, &intent); err != nil {
					return fmt.Errorf("decode intent %s: %w", item.Key(), err)
				}
				intents = append(intents, &intent)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(intents, func(a, b int) bool {
		return intents[a].CreatedAt.Before(intents[b].CreatedAt)
	})
	return intents, nil
}

func (j *BadgerIntentJournal) modify(ctx context.Context, id string, fn func(*entities.Intent)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(intentKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return repository.ErrIntentNotFound
		}
		if err != nil {
			return err
		}

		var intent entities.Intent
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &intent)
		}); err != nil {
			return fmt.Errorf("decode intent %s: %w", id, err)
		}

		fn(&intent)
		intent.UpdatedAt = time.Now().UTC()
		return putIntent(txn, &intent)
	})
}

func putIntent(txn *badger.Txn, intent *entities.Intent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode intent %s: %w", intent.ID, err)
	}
	return txn.Set(intentKey(intent.ID), data)
}

func intentKey(id string) []byte {
	return []byte(intentKeyPrefix + id)
}
