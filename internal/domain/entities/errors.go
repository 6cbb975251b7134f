package entities

import (
	"errors"
	"fmt"
)

// ErrorKind classifies lifecycle failures.
//
// Validation, NotFound, Conflict and PermissionDenied are raised before any
// mutation and are safe to retry. StoreWrite and StoreTimeout are transport
// failures. PartialUpload, PartialRename and OrphanedObject mean the object
// store and the catalog disagree and need reconciliation.
type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindNotFound
	KindConflict
	KindPermissionDenied
	KindStoreWrite
	KindStoreTimeout
	KindPartialUpload
	KindPartialRename
	KindOrphanedObject
)

var kindNames = map[ErrorKind]string{
	KindValidation:       "validation",
	KindNotFound:         "not_found",
	KindConflict:         "conflict",
	KindPermissionDenied: "permission_denied",
	KindStoreWrite:       "store_write",
	KindStoreTimeout:     "store_timeout",
	KindPartialUpload:    "partial_upload",
	KindPartialRename:    "partial_rename",
	KindOrphanedObject:   "orphaned_object",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Inconsistent reports whether the kind signals store/catalog divergence
func (k ErrorKind) Inconsistent() bool {
	return k == KindPartialUpload || k == KindPartialRename || k == KindOrphanedObject
}

// Sentinels usable with errors.Is against any *LifecycleError of the same kind
var (
	ErrValidation       = &LifecycleError{Kind: KindValidation}
	ErrNotFound         = &LifecycleError{Kind: KindNotFound}
	ErrConflict         = &LifecycleError{Kind: KindConflict}
	ErrPermissionDenied = &LifecycleError{Kind: KindPermissionDenied}
	ErrStoreWrite       = &LifecycleError{Kind: KindStoreWrite}
	ErrStoreTimeout     = &LifecycleError{Kind: KindStoreTimeout}
	ErrPartialUpload    = &LifecycleError{Kind: KindPartialUpload}
	ErrPartialRename    = &LifecycleError{Kind: KindPartialRename}
	ErrOrphanedObject   = &LifecycleError{Kind: KindOrphanedObject}
)

// LifecycleError is returned by every lifecycle operation
type LifecycleError struct {
	Kind      ErrorKind
	FileName  string
	LastState LifecycleState
	Message   string
	Err       error
}

// NewLifecycleError creates an error of the given kind
func NewLifecycleError(kind ErrorKind, fileName string, state LifecycleState, err error) *LifecycleError {
	return &LifecycleError{Kind: kind, FileName: fileName, LastState: state, Err: err}
}

// Error implements the error interface
func (e *LifecycleError) Error() string {
	msg := e.Kind.String()
	if e.FileName != "" {
		msg += ": " + e.FileName
	}
	if e.LastState != "" && e.Kind.Inconsistent() {
		msg += " (last state " + string(e.LastState) + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *LifecycleError) Unwrap() error {
	return e.Err
}

// Is matches any LifecycleError of the same kind
func (e *LifecycleError) Is(target error) bool {
	t, ok := target.(*LifecycleError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the kind from err, reporting false for foreign errors
func KindOf(err error) (ErrorKind, bool) {
	var le *LifecycleError
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return 0, false
}

// ValidationError creates a validation failure with a message
func ValidationError(fileName, format string, args ...interface{}) *LifecycleError {
	return &LifecycleError{Kind: KindValidation, FileName: fileName, Message: fmt.Sprintf(format, args...)}
}
