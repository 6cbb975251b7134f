package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/domain/repository"
	"github.com/zots0127/fileshare/pkg/metrics"
)

// StagedFile is an upload already written to local staging disk
type StagedFile interface {
	// Path is the local path of the staged bytes
	Path() string

	// Name is the file name requested by the uploader
	Name() string

	// ContentType is the detected MIME type
	ContentType() string

	// Size is the staged size in bytes
	Size() int64

	// Remove deletes the staged copy
	Remove() error
}

// UploadResult describes a completed upload
type UploadResult struct {
	File        *entities.FileObject
	Permissions map[string]entities.PermissionFlags
}

// RenameResult describes a completed rename
type RenameResult struct {
	OldName string
	NewName string
}

// DeleteResult describes a completed delete
type DeleteResult struct {
	FileName string
}

// FileUseCase orchestrates the object store and the catalog through the
// upload, rename and delete state machines
type FileUseCase struct {
	catalog repository.Catalog
	store   repository.ObjectStore
	journal repository.IntentJournal
	locks   *nameLocker
	logger  *zap.Logger
}

var validate = validator.New()

// NewFileUseCase creates a new file use case. A nil journal disables intent
// journaling and a nil logger discards logs.
func NewFileUseCase(catalog repository.Catalog, store repository.ObjectStore, journal repository.IntentJournal, logger *zap.Logger) *FileUseCase {
	if journal == nil {
		journal = nopJournal{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileUseCase{
		catalog: catalog,
		store:   store,
		journal: journal,
		locks:   newNameLocker(),
		logger:  logger,
	}
}

// Upload moves a staged file into the object store, registers it and grants
// permissions. The uploader always ends with full access.
func (u *FileUseCase) Upload(ctx context.Context, actor string, staged StagedFile, req entities.PermissionRequest) (result *UploadResult, err error) {
	start := time.Now()
	defer func() { u.record(entities.OperationUpload, start, err) }()

	actor = entities.NormalizeEmail(actor)
	name := staged.Name()
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if err := entities.ValidateFileName(name); err != nil {
		return nil, err
	}
	if err := validateRequest(name, req); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	unlock := u.locks.Lock(name)
	defer unlock()

	log := u.logger.With(zap.String("operation", string(entities.OperationUpload)), zap.String("file", name), zap.String("actor", actor))
	state := entities.StateStaged

	if err := u.ensureAbsent(ctx, name, state); err != nil {
		return nil, err
	}
	state = entities.StateDuplicateChecked

	intent, err := u.begin(ctx, entities.OperationUpload, name, "", actor)
	if err != nil {
		return nil, err
	}

	if err := u.store.Put(ctx, staged.Path(), name); err != nil {
		u.fail(ctx, log, intent, state, err)
		return nil, storeFailure(name, state, err)
	}
	state = u.advance(ctx, log, intent, entities.StateStoreWritten)

	now := time.Now().UTC()
	file := &entities.FileObject{
		Name:        name,
		UploadedBy:  actor,
		ContentType: staged.ContentType(),
		SizeBytes:   staged.Size(),
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	if err := u.catalog.RegisterFile(ctx, file); err != nil {
		return nil, u.inconsistent(ctx, log, intent, entities.KindPartialUpload, name, state, err)
	}
	state = u.advance(ctx, log, intent, entities.StateCatalogRegistered)

	granted := ResolvePermissions(req.Without(actor), ResolveInitial, nil)
	if err := u.catalog.UpsertPermissions(ctx, name, actor, entities.FullAccess.Patch()); err != nil {
		return nil, u.inconsistent(ctx, log, intent, entities.KindPartialUpload, name, state, err)
	}
	for _, user := range sortedUsers(granted) {
		if err := u.catalog.UpsertPermissions(ctx, name, user, granted[user].Patch()); err != nil {
			return nil, u.inconsistent(ctx, log, intent, entities.KindPartialUpload, name, state, err)
		}
	}
	granted[actor] = entities.FullAccess
	u.advance(ctx, log, intent, entities.StatePermissionsResolved)

	if err := staged.Remove(); err != nil {
		log.Warn("failed to remove staged copy", zap.String("path", staged.Path()), zap.Error(err))
	}
	u.complete(ctx, log, intent)
	metrics.RecordUploadBytes(file.SizeBytes)

	log.Info("file uploaded", zap.Int64("size", file.SizeBytes), zap.Int("grants", len(granted)))
	return &UploadResult{File: file, Permissions: granted}, nil
}

// Rename moves a file to a new name in the object store and then in the catalog.
// The actor must own the file or hold edit access.
func (u *FileUseCase) Rename(ctx context.Context, actor, oldName, newName string) (result *RenameResult, err error) {
	start := time.Now()
	defer func() { u.record(entities.OperationRename, start, err) }()

	actor = entities.NormalizeEmail(actor)
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if err := entities.ValidateFileName(oldName); err != nil {
		return nil, err
	}
	if err := entities.ValidateFileName(newName); err != nil {
		return nil, err
	}
	if oldName == newName {
		return nil, entities.ValidationError(oldName, "new name must differ from the current name")
	}

	ctx = context.WithoutCancel(ctx)
	unlock := u.locks.Lock(oldName, newName)
	defer unlock()

	log := u.logger.With(zap.String("operation", string(entities.OperationRename)), zap.String("file", oldName), zap.String("target", newName), zap.String("actor", actor))
	var state entities.LifecycleState

	file, err := u.lookup(ctx, oldName, state)
	if err != nil {
		return nil, err
	}
	if err := u.authorize(ctx, file, actor, func(p entities.PermissionFlags) bool { return p.CanEdit }); err != nil {
		return nil, err
	}

	exists, err := u.store.Exists(ctx, oldName)
	if err != nil {
		return nil, storeFailure(oldName, state, err)
	}
	if !exists {
		return nil, entities.NewLifecycleError(entities.KindNotFound, oldName, state, repository.ErrObjectNotFound)
	}
	state = entities.StateExistenceChecked

	if err := u.ensureAbsent(ctx, newName, state); err != nil {
		return nil, err
	}
	state = entities.StateTargetNameChecked

	intent, err := u.begin(ctx, entities.OperationRename, oldName, newName, actor)
	if err != nil {
		return nil, err
	}

	if err := u.store.Rename(ctx, oldName, newName); err != nil {
		if errors.Is(err, repository.ErrRenameIncomplete) {
			return nil, u.inconsistent(ctx, log, intent, entities.KindPartialRename, oldName, entities.StateStoreRenamed, err)
		}
		u.fail(ctx, log, intent, state, err)
		return nil, storeFailure(oldName, state, err)
	}
	state = u.advance(ctx, log, intent, entities.StateStoreRenamed)

	if err := u.catalog.RenameFile(ctx, oldName, newName); err != nil {
		return nil, u.inconsistent(ctx, log, intent, entities.KindPartialRename, oldName, state, err)
	}
	u.advance(ctx, log, intent, entities.StateCatalogRenamed)
	u.complete(ctx, log, intent)

	log.Info("file renamed")
	return &RenameResult{OldName: oldName, NewName: newName}, nil
}

// Delete removes a file from the catalog and then from the object store.
// Only the uploader may delete a file.
func (u *FileUseCase) Delete(ctx context.Context, actor, name string) (result *DeleteResult, err error) {
	start := time.Now()
	defer func() { u.record(entities.OperationDelete, start, err) }()

	actor = entities.NormalizeEmail(actor)
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if err := entities.ValidateFileName(name); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	unlock := u.locks.Lock(name)
	defer unlock()

	log := u.logger.With(zap.String("operation", string(entities.OperationDelete)), zap.String("file", name), zap.String("actor", actor))
	var state entities.LifecycleState

	if _, err := u.lookup(ctx, name, state); err != nil {
		return nil, err
	}

	owned, err := u.catalog.ListFilesOwnedBy(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("list files owned by %s: %w", actor, err)
	}
	if !containsFile(owned, name) {
		return nil, entities.NewLifecycleError(entities.KindPermissionDenied, name, state, errors.New("only the uploader may delete a file"))
	}

	intent, err := u.begin(ctx, entities.OperationDelete, name, "", actor)
	if err != nil {
		return nil, err
	}

	if err := u.catalog.DeleteFile(ctx, name); err != nil {
		// the transaction rolled back so neither system changed
		u.complete(ctx, log, intent)
		if errors.Is(err, repository.ErrFileNotFound) {
			return nil, entities.NewLifecycleError(entities.KindNotFound, name, state, err)
		}
		return nil, fmt.Errorf("delete %s from catalog: %w", name, err)
	}
	state = u.advance(ctx, log, intent, entities.StateCatalogDeleted)

	if err := u.store.Remove(ctx, name); err != nil {
		return nil, u.inconsistent(ctx, log, intent, entities.KindOrphanedObject, name, state, err)
	}
	u.advance(ctx, log, intent, entities.StateStoreRemoved)
	u.complete(ctx, log, intent)

	log.Info("file deleted")
	return &DeleteResult{FileName: name}, nil
}

// ListForUser returns the files a user can access with live size and
// modification time. Files whose store metadata cannot be read are omitted.
func (u *FileUseCase) ListForUser(ctx context.Context, userEmail string) (listing []entities.FileListing, err error) {
	start := time.Now()
	defer func() { u.record(entities.OperationList, start, err) }()

	userEmail = entities.NormalizeEmail(userEmail)
	if err := validateActor(userEmail); err != nil {
		return nil, err
	}

	records, err := u.catalog.ListPermissionsForUser(ctx, userEmail)
	if err != nil {
		return nil, fmt.Errorf("list permissions for %s: %w", userEmail, err)
	}
	owned, err := u.catalog.ListFilesOwnedBy(ctx, userEmail)
	if err != nil {
		return nil, fmt.Errorf("list files owned by %s: %w", userEmail, err)
	}

	access := make(map[string]entities.PermissionFlags, len(records)+len(owned))
	files := make(map[string]*entities.FileObject, len(owned))
	for _, r := range records {
		if r.CanRead || r.CanEdit || r.CanDownload {
			access[r.FileName] = r.PermissionFlags
		}
	}
	for _, f := range owned {
		access[f.Name] = entities.FullAccess
		files[f.Name] = f
	}

	listing = make([]entities.FileListing, 0, len(access))
	for _, name := range sortedUsers(access) {
		file, ok := files[name]
		if !ok {
			file, err = u.catalog.GetFile(ctx, name)
			if errors.Is(err, repository.ErrFileNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("get file %s: %w", name, err)
			}
		}

		info, err := u.store.Stat(ctx, name)
		if err != nil {
			u.logger.Debug("omitting file without store metadata", zap.String("file", name), zap.Error(err))
			continue
		}

		listing = append(listing, entities.FileListing{
			FileName:    name,
			Type:        file.ContentType,
			Size:        info.SizeBytes,
			Modified:    info.ModifiedAt,
			Owner:       file.UploadedBy,
			Permissions: access[name],
		})
	}

	return listing, nil
}

// UpdatePermissions replaces the permission matrix of a file. Users holding a
// permission who are absent from every list are revoked; the uploader never is.
func (u *FileUseCase) UpdatePermissions(ctx context.Context, actor, name string, req entities.PermissionRequest) (err error) {
	start := time.Now()
	defer func() { u.record(entities.OperationUpdatePermissions, start, err) }()

	actor = entities.NormalizeEmail(actor)
	if err := validateActor(actor); err != nil {
		return err
	}
	if err := entities.ValidateFileName(name); err != nil {
		return err
	}
	if err := validateRequest(name, req); err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	unlock := u.locks.Lock(name)
	defer unlock()

	file, err := u.lookup(ctx, name, "")
	if err != nil {
		return err
	}
	if err := u.authorize(ctx, file, actor, func(p entities.PermissionFlags) bool { return p.CanEdit }); err != nil {
		return err
	}

	existing, err := u.catalog.ListPermissionsForFile(ctx, name)
	if err != nil {
		return fmt.Errorf("list permissions for %s: %w", name, err)
	}

	owner := entities.NormalizeEmail(file.UploadedBy)
	current := make(map[string]entities.PermissionFlags, len(existing))
	previous := make([]string, 0, len(existing))
	for _, r := range existing {
		current[r.UserEmail] = r.PermissionFlags
		if r.UserEmail != owner {
			previous = append(previous, r.UserEmail)
		}
	}

	resolved := ResolvePermissions(req.Without(owner), ResolveUpdate, previous)
	resolved[owner] = entities.FullAccess

	changed := 0
	for _, user := range sortedUsers(resolved) {
		flags := resolved[user]
		if prev, ok := current[user]; ok && prev == flags {
			continue
		}
		if err := u.catalog.UpsertPermissions(ctx, name, user, flags.Patch()); err != nil {
			return fmt.Errorf("update permission of %s on %s: %w", user, name, err)
		}
		changed++
	}

	u.logger.Info("permissions updated",
		zap.String("file", name),
		zap.String("actor", actor),
		zap.Int("users", len(resolved)),
		zap.Int("changed", changed),
	)
	return nil
}

// Download opens a file for streaming. The actor must own the file or hold
// download access. The caller closes the reader.
func (u *FileUseCase) Download(ctx context.Context, actor, name string) (rc io.ReadCloser, file *entities.FileObject, err error) {
	start := time.Now()
	defer func() { u.record(entities.OperationDownload, start, err) }()

	actor = entities.NormalizeEmail(actor)
	if err := validateActor(actor); err != nil {
		return nil, nil, err
	}
	if err := entities.ValidateFileName(name); err != nil {
		return nil, nil, err
	}

	file, err = u.lookup(ctx, name, "")
	if err != nil {
		return nil, nil, err
	}
	if err := u.authorize(ctx, file, actor, func(p entities.PermissionFlags) bool { return p.CanDownload }); err != nil {
		return nil, nil, err
	}

	rc, err = u.store.Get(ctx, name)
	if errors.Is(err, repository.ErrObjectNotFound) {
		return nil, nil, entities.NewLifecycleError(entities.KindNotFound, name, "", err)
	}
	if err != nil {
		return nil, nil, storeFailure(name, "", err)
	}
	return rc, file, nil
}

// ensureAbsent fails with a conflict when name exists in the store or the catalog
func (u *FileUseCase) ensureAbsent(ctx context.Context, name string, state entities.LifecycleState) error {
	exists, err := u.store.Exists(ctx, name)
	if err != nil {
		return storeFailure(name, state, err)
	}
	if exists {
		return entities.NewLifecycleError(entities.KindConflict, name, state, errors.New("name already exists in object store"))
	}

	_, err = u.catalog.GetFile(ctx, name)
	switch {
	case err == nil:
		return entities.NewLifecycleError(entities.KindConflict, name, state, repository.ErrFileExists)
	case errors.Is(err, repository.ErrFileNotFound):
		return nil
	default:
		return fmt.Errorf("check catalog for %s: %w", name, err)
	}
}

// lookup returns the catalog record or a NotFound lifecycle error
func (u *FileUseCase) lookup(ctx context.Context, name string, state entities.LifecycleState) (*entities.FileObject, error) {
	file, err := u.catalog.GetFile(ctx, name)
	if errors.Is(err, repository.ErrFileNotFound) {
		return nil, entities.NewLifecycleError(entities.KindNotFound, name, state, err)
	}
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", name, err)
	}
	return file, nil
}

// authorize passes the owner, or a user whose flags satisfy allowed
func (u *FileUseCase) authorize(ctx context.Context, file *entities.FileObject, actor string, allowed func(entities.PermissionFlags) bool) error {
	if file.IsOwnedBy(actor) {
		return nil
	}

	record, err := u.catalog.GetPermission(ctx, file.Name, actor)
	if errors.Is(err, repository.ErrPermissionNotFound) {
		return entities.NewLifecycleError(entities.KindPermissionDenied, file.Name, "", fmt.Errorf("%s has no access", actor))
	}
	if err != nil {
		return fmt.Errorf("get permission of %s on %s: %w", actor, file.Name, err)
	}
	if !allowed(record.PermissionFlags) {
		return entities.NewLifecycleError(entities.KindPermissionDenied, file.Name, "", fmt.Errorf("%s lacks the required permission", actor))
	}
	return nil
}

func (u *FileUseCase) begin(ctx context.Context, op entities.Operation, name, target, actor string) (*entities.Intent, error) {
	now := time.Now().UTC()
	intent := &entities.Intent{
		ID:         uuid.NewString(),
		Operation:  op,
		FileName:   name,
		TargetName: target,
		Actor:      actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := u.journal.Begin(ctx, intent); err != nil {
		return nil, fmt.Errorf("journal %s intent for %s: %w", op, name, err)
	}
	return intent, nil
}

func (u *FileUseCase) advance(ctx context.Context, log *zap.Logger, intent *entities.Intent, state entities.LifecycleState) entities.LifecycleState {
	intent.State = state
	if err := u.journal.Advance(ctx, intent.ID, state); err != nil {
		log.Warn("failed to advance intent", zap.String("intent", intent.ID), zap.String("state", string(state)), zap.Error(err))
	}
	return state
}

func (u *FileUseCase) fail(ctx context.Context, log *zap.Logger, intent *entities.Intent, state entities.LifecycleState, cause error) {
	if err := u.journal.Fail(ctx, intent.ID, state, cause); err != nil {
		log.Warn("failed to record intent failure", zap.String("intent", intent.ID), zap.Error(err))
	}
}

func (u *FileUseCase) complete(ctx context.Context, log *zap.Logger, intent *entities.Intent) {
	if err := u.journal.Complete(ctx, intent.ID); err != nil {
		log.Warn("failed to complete intent", zap.String("intent", intent.ID), zap.Error(err))
	}
}

// inconsistent records a divergence between the store and the catalog and
// leaves the intent pending for reconciliation
func (u *FileUseCase) inconsistent(ctx context.Context, log *zap.Logger, intent *entities.Intent, kind entities.ErrorKind, name string, state entities.LifecycleState, cause error) error {
	u.fail(ctx, log, intent, state, cause)
	metrics.RecordInconsistency(kind.String())
	log.Error("object store and catalog diverged",
		zap.String("kind", kind.String()),
		zap.String("last_state", string(state)),
		zap.String("intent", intent.ID),
		zap.Error(cause),
	)
	return entities.NewLifecycleError(kind, name, state, cause)
}

func (u *FileUseCase) record(op entities.Operation, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
		if kind, ok := entities.KindOf(err); ok {
			result = kind.String()
		}
	}
	metrics.RecordLifecycle(string(op), result, time.Since(start))
}

// storeFailure maps a gateway error to the timeout or write kind
func storeFailure(name string, state entities.LifecycleState, err error) error {
	if errors.Is(err, repository.ErrStoreTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return entities.NewLifecycleError(entities.KindStoreTimeout, name, state, err)
	}
	return entities.NewLifecycleError(entities.KindStoreWrite, name, state, err)
}

func validateActor(actor string) error {
	if actor == "" {
		return entities.ValidationError("", "actor email is required")
	}
	if err := validate.Var(actor, "email"); err != nil {
		return entities.ValidationError("", "actor %q is not a valid email", actor)
	}
	return nil
}

func validateRequest(name string, req entities.PermissionRequest) error {
	for _, user := range req.Users() {
		user = entities.NormalizeEmail(user)
		if user == "" {
			continue
		}
		if err := validate.Var(user, "email"); err != nil {
			return entities.ValidationError(name, "%q is not a valid email", user)
		}
	}
	return nil
}

func containsFile(files []*entities.FileObject, name string) bool {
	for _, f := range files {
		if f.Name == name {
			return true
		}
	}
	return false
}

func sortedUsers(m map[string]entities.PermissionFlags) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// nopJournal is used when journaling is disabled
type nopJournal struct{}

func (nopJournal) Begin(context.Context, *entities.Intent) error                      { return nil }
func (nopJournal) Advance(context.Context, string, entities.LifecycleState) error     { return nil }
func (nopJournal) Fail(context.Context, string, entities.LifecycleState, error) error { return nil }
func (nopJournal) Complete(context.Context, string) error                             { return nil }
func (nopJournal) Pending(context.Context) ([]*entities.Intent, error)                { return nil, nil }
