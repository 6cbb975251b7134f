package entities

import (
	"strings"
	"time"
	"unicode/utf8"
)

// LifecycleState is a step of an upload, rename or delete workflow
type LifecycleState string

const (
	StateStaged              LifecycleState = "staged"
	StateDuplicateChecked    LifecycleState = "duplicate_checked"
	StateStoreWritten        LifecycleState = "store_written"
	StateCatalogRegistered   LifecycleState = "catalog_registered"
	StatePermissionsResolved LifecycleState = "permissions_resolved"

	StateExistenceChecked  LifecycleState = "existence_checked"
	StateTargetNameChecked LifecycleState = "target_name_checked"
	StateStoreRenamed      LifecycleState = "store_renamed"
	StateCatalogRenamed    LifecycleState = "catalog_renamed"

	StateCatalogDeleted LifecycleState = "catalog_deleted"
	StateStoreRemoved   LifecycleState = "store_removed"

	StateComplete LifecycleState = "complete"
)

// Operation names a lifecycle workflow
type Operation string

const (
	OperationUpload            Operation = "upload"
	OperationRename            Operation = "rename"
	OperationDelete            Operation = "delete"
	OperationList              Operation = "list"
	OperationUpdatePermissions Operation = "update_permissions"
	OperationDownload          Operation = "download"
)

// Intent records a mutating workflow before it touches either backing system.
// Intents that survive their workflow are the input of reconciliation.
type Intent struct {
	ID         string         `json:"id"`
	Operation  Operation      `json:"operation"`
	FileName   string         `json:"file_name"`
	TargetName string         `json:"target_name,omitempty"`
	Actor      string         `json:"actor"`
	State      LifecycleState `json:"state"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ReconcileOutcome describes what a reconciliation pass did with one intent
type ReconcileOutcome string

const (
	OutcomeRepaired   ReconcileOutcome = "repaired"
	OutcomeConsistent ReconcileOutcome = "consistent"
	OutcomeFailed     ReconcileOutcome = "failed"
)

// ReconcileResult is the per-intent report of a reconciliation pass
type ReconcileResult struct {
	Intent  Intent           `json:"intent"`
	Outcome ReconcileOutcome `json:"outcome"`
	Action  string           `json:"action,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// MaxFileNameLength bounds file names accepted by the engine
const MaxFileNameLength = 255

// ReservedNamePrefix marks in-flight transport files. Object listings skip
// names carrying it, so it is never accepted as a file name.
const ReservedNamePrefix = ".partial-"

// ValidateFileName rejects names the object store namespace cannot address
func ValidateFileName(name string) error {
	switch {
	case name == "":
		return ValidationError(name, "file name is required")
	case name == "." || name == "..":
		return ValidationError(name, "file name %q is reserved", name)
	case len(name) > MaxFileNameLength:
		return ValidationError(name, "file name exceeds %d bytes", MaxFileNameLength)
	case !utf8.ValidString(name):
		return ValidationError(name, "file name is not valid UTF-8")
	case strings.HasPrefix(name, ReservedNamePrefix):
		return ValidationError(name, "file name must not start with %q", ReservedNamePrefix)
	case strings.ContainsAny(name, "/\\"):
		return ValidationError(name, "file name must not contain path separators")
	case strings.IndexFunc(name, func(r rune) bool { return r < 0x20 || r == 0x7f }) >= 0:
		return ValidationError(name, "file name must not contain control characters")
	case strings.TrimSpace(name) != name:
		return ValidationError(name, "file name must not start or end with whitespace")
	}
	return nil
}

// NormalizeEmail canonicalises a user identifier for comparison and storage
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
