package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/domain/repository"
	"github.com/zots0127/fileshare/pkg/metrics"
)

// ReconcileUseCase repairs divergence left by intents that never completed.
// It only runs when invoked explicitly.
type ReconcileUseCase struct {
	catalog repository.Catalog
	store   repository.ObjectStore
	journal repository.IntentJournal
	logger  *zap.Logger
}

// NewReconcileUseCase creates a new reconcile use case
func NewReconcileUseCase(catalog repository.Catalog, store repository.ObjectStore, journal repository.IntentJournal, logger *zap.Logger) *ReconcileUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileUseCase{
		catalog: catalog,
		store:   store,
		journal: journal,
		logger:  logger,
	}
}

// Reconcile inspects every pending intent, repairs what it can and completes
// the intent. Intents that fail to reconcile stay pending.
func (r *ReconcileUseCase) Reconcile(ctx context.Context) ([]entities.ReconcileResult, error) {
	pending, err := r.journal.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("read pending intents: %w", err)
	}

	results := make([]entities.ReconcileResult, 0, len(pending))
	remaining := 0
	for _, intent := range pending {
		res := entities.ReconcileResult{Intent: *intent}

		action, err := r.reconcile(ctx, intent)
		switch {
		case err != nil:
			res.Outcome = entities.OutcomeFailed
			res.Error = err.Error()
			remaining++
		case action == "":
			res.Outcome = entities.OutcomeConsistent
		default:
			res.Outcome = entities.OutcomeRepaired
			res.Action = action
		}

		if err == nil {
			if cerr := r.journal.Complete(ctx, intent.ID); cerr != nil {
				r.logger.Warn("failed to complete reconciled intent", zap.String("intent", intent.ID), zap.Error(cerr))
			}
		}

		metrics.RecordReconcile(string(intent.Operation), string(res.Outcome))
		r.logger.Info("intent reconciled",
			zap.String("intent", intent.ID),
			zap.String("operation", string(intent.Operation)),
			zap.String("file", intent.FileName),
			zap.String("last_state", string(intent.State)),
			zap.String("outcome", string(res.Outcome)),
			zap.String("action", res.Action),
			zap.String("error", res.Error),
		)
		results = append(results, res)
	}

	metrics.SetPendingIntents(remaining)
	return results, nil
}

func (r *ReconcileUseCase) reconcile(ctx context.Context, intent *entities.Intent) (string, error) {
	switch intent.Operation {
	case entities.OperationUpload:
		return r.reconcileUpload(ctx, intent)
	case entities.OperationRename:
		return r.reconcileRename(ctx, intent)
	case entities.OperationDelete:
		return r.reconcileDelete(ctx, intent)
	default:
		return "", fmt.Errorf("unknown intent operation %q", intent.Operation)
	}
}

// reconcileUpload removes objects the catalog never learned about and restores
// the uploader's access when permission writes were cut short
func (r *ReconcileUseCase) reconcileUpload(ctx context.Context, intent *entities.Intent) (string, error) {
	name := intent.FileName
	file, err := r.catalogFile(ctx, name)
	if err != nil {
		return "", err
	}
	inStore, err := r.store.Exists(ctx, name)
	if err != nil {
		return "", err
	}

	switch {
	case file == nil && inStore:
		if err := r.store.Remove(ctx, name); err != nil {
			return "", err
		}
		return "removed object missing from catalog", nil
	case file == nil:
		return "", nil
	case !inStore:
		if err := r.catalog.DeleteFile(ctx, name); err != nil {
			return "", err
		}
		return "removed catalog record without object", nil
	}

	record, err := r.catalog.GetPermission(ctx, name, file.UploadedBy)
	if err != nil && !errors.Is(err, repository.ErrPermissionNotFound) {
		return "", err
	}
	if record != nil && record.PermissionFlags == entities.FullAccess {
		return "", nil
	}
	if err := r.catalog.UpsertPermissions(ctx, name, file.UploadedBy, entities.FullAccess.Patch()); err != nil {
		return "", err
	}
	return "granted uploader full access", nil
}

// reconcileRename rolls a rename forward once the object reached its new name
func (r *ReconcileUseCase) reconcileRename(ctx context.Context, intent *entities.Intent) (string, error) {
	oldName, newName := intent.FileName, intent.TargetName
	if newName == "" {
		return "", errors.New("rename intent has no target name")
	}

	oldFile, err := r.catalogFile(ctx, oldName)
	if err != nil {
		return "", err
	}
	newFile, err := r.catalogFile(ctx, newName)
	if err != nil {
		return "", err
	}
	oldInStore, err := r.store.Exists(ctx, oldName)
	if err != nil {
		return "", err
	}
	newInStore, err := r.store.Exists(ctx, newName)
	if err != nil {
		return "", err
	}

	switch {
	case oldFile != nil && newFile == nil && newInStore:
		var action string
		if oldInStore {
			// copy finished but the source delete did not
			if err := r.store.Remove(ctx, oldName); err != nil {
				return "", err
			}
			action = "removed source object and "
		}
		if err := r.catalog.RenameFile(ctx, oldName, newName); err != nil {
			return "", err
		}
		return action + "renamed catalog record", nil
	case oldFile != nil && oldInStore && !newInStore:
		return "", nil
	case newFile != nil && newInStore:
		if oldFile == nil && oldInStore {
			if err := r.store.Remove(ctx, oldName); err != nil {
				return "", err
			}
			return "removed source object", nil
		}
		return "", nil
	default:
		return "", fmt.Errorf("cannot reconcile rename %s -> %s: catalog(old=%t new=%t) store(old=%t new=%t)",
			oldName, newName, oldFile != nil, newFile != nil, oldInStore, newInStore)
	}
}

// reconcileDelete finishes deletes whose object outlived the catalog record
func (r *ReconcileUseCase) reconcileDelete(ctx context.Context, intent *entities.Intent) (string, error) {
	name := intent.FileName
	file, err := r.catalogFile(ctx, name)
	if err != nil {
		return "", err
	}
	if file != nil {
		return "", nil
	}

	inStore, err := r.store.Exists(ctx, name)
	if err != nil {
		return "", err
	}
	if !inStore {
		return "", nil
	}
	if err := r.store.Remove(ctx, name); err != nil {
		return "", err
	}
	return "removed orphaned object", nil
}

// catalogFile returns nil without error when the file is not registered
func (r *ReconcileUseCase) catalogFile(ctx context.Context, name string) (*entities.FileObject, error) {
	file, err := r.catalog.GetFile(ctx, name)
	if errors.Is(err, repository.ErrFileNotFound) {
		return nil, nil
	}
	return file, err
}
