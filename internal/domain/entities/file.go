package entities

import (
	"time"
)

// FileObject represents a file registered in the catalog
type FileObject struct {
	Name        string    `json:"name"`
	UploadedBy  string    `json:"uploaded_by"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ModifiedAt  time.Time `json:"modified_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsOwnedBy reports whether the given user uploaded the file
func (f *FileObject) IsOwnedBy(email string) bool {
	return f != nil && NormalizeEmail(email) == NormalizeEmail(f.UploadedBy)
}

// PermissionFlags is the resolved permission state of one user on one file
type PermissionFlags struct {
	CanRead     bool `json:"can_read"`
	CanEdit     bool `json:"can_edit"`
	CanDownload bool `json:"can_download"`
}

var (
	// FullAccess is granted to editors and to the uploader of a file
	FullAccess = PermissionFlags{CanRead: true, CanEdit: true, CanDownload: true}

	// DownloadAccess is granted to users named in the download list
	DownloadAccess = PermissionFlags{CanRead: true, CanDownload: true}

	// ReadAccess is granted to users named only in the read list
	ReadAccess = PermissionFlags{CanRead: true}

	// NoAccess is written when access is explicitly revoked
	NoAccess = PermissionFlags{}
)

// Patch converts resolved flags into a patch that sets every field
func (p PermissionFlags) Patch() PermissionPatch {
	return PermissionPatch{
		CanRead:     boolPtr(p.CanRead),
		CanEdit:     boolPtr(p.CanEdit),
		CanDownload: boolPtr(p.CanDownload),
	}
}

// Consistent reports whether edit implies read and download
func (p PermissionFlags) Consistent() bool {
	return !p.CanEdit || (p.CanRead && p.CanDownload)
}

// PermissionPatch is a partial update of permission flags; nil fields are left unchanged
type PermissionPatch struct {
	CanRead     *bool
	CanEdit     *bool
	CanDownload *bool
}

// Apply returns the flags obtained by applying the patch on top of base
func (p PermissionPatch) Apply(base PermissionFlags) PermissionFlags {
	if p.CanRead != nil {
		base.CanRead = *p.CanRead
	}
	if p.CanEdit != nil {
		base.CanEdit = *p.CanEdit
	}
	if p.CanDownload != nil {
		base.CanDownload = *p.CanDownload
	}
	return base
}

// PermissionRecord is the persisted permission of a user on a file
type PermissionRecord struct {
	PermissionFlags
	FileName  string    `json:"file_name"`
	UserEmail string    `json:"user_email"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PermissionRequest carries the three user lists supplied at upload or update time
type PermissionRequest struct {
	EditUsers     []string `json:"edit_users"`
	DownloadUsers []string `json:"download_users"`
	ReadUsers     []string `json:"read_users"`
}

// Users returns every user named in any of the lists
func (r PermissionRequest) Users() []string {
	users := make([]string, 0, len(r.EditUsers)+len(r.DownloadUsers)+len(r.ReadUsers))
	users = append(users, r.EditUsers...)
	users = append(users, r.DownloadUsers...)
	users = append(users, r.ReadUsers...)
	return users
}

// Without returns a copy of the request with the given user removed from every list
func (r PermissionRequest) Without(email string) PermissionRequest {
	email = NormalizeEmail(email)
	filter := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, u := range in {
			if NormalizeEmail(u) != email {
				out = append(out, u)
			}
		}
		return out
	}
	return PermissionRequest{
		EditUsers:     filter(r.EditUsers),
		DownloadUsers: filter(r.DownloadUsers),
		ReadUsers:     filter(r.ReadUsers),
	}
}

// ObjectInfo is the live metadata reported by the object store
type ObjectInfo struct {
	Name       string
	SizeBytes  int64
	ModifiedAt time.Time
}

// FileListing is one entry of a user's accessible-file view
type FileListing struct {
	FileName    string          `json:"file_name"`
	Type        string          `json:"type"`
	Size        int64           `json:"size"`
	Modified    time.Time       `json:"modified"`
	Owner       string          `json:"owner"`
	Permissions PermissionFlags `json:"permissions"`
}

func boolPtr(b bool) *bool {
	return &b
}
