package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/usecase"
)

func TestResolvePermissions(t *testing.T) {
	tests := []struct {
		name     string
		req      entities.PermissionRequest
		mode     usecase.ResolveMode
		previous []string
		expected map[string]entities.PermissionFlags
	}{
		{
			name: "disjoint lists",
			req: entities.PermissionRequest{
				EditUsers:     []string{"a@x.com"},
				DownloadUsers: []string{"b@x.com"},
				ReadUsers:     []string{"c@x.com"},
			},
			expected: map[string]entities.PermissionFlags{
				"a@x.com": entities.FullAccess,
				"b@x.com": entities.DownloadAccess,
				"c@x.com": entities.ReadAccess,
			},
		},
		{
			name: "editor named in every list keeps full access",
			req: entities.PermissionRequest{
				EditUsers:     []string{"a@x.com"},
				DownloadUsers: []string{"a@x.com"},
				ReadUsers:     []string{"a@x.com"},
			},
			expected: map[string]entities.PermissionFlags{
				"a@x.com": entities.FullAccess,
			},
		},
		{
			name: "download beats read",
			req: entities.PermissionRequest{
				DownloadUsers: []string{"b@x.com"},
				ReadUsers:     []string{"b@x.com"},
			},
			expected: map[string]entities.PermissionFlags{
				"b@x.com": {CanRead: true, CanEdit: false, CanDownload: true},
			},
		},
		{
			name: "report scenario",
			req: entities.PermissionRequest{
				EditUsers:     []string{"a@x.com"},
				DownloadUsers: []string{"b@x.com"},
				ReadUsers:     []string{"a@x.com", "c@x.com"},
			},
			expected: map[string]entities.PermissionFlags{
				"a@x.com": {CanRead: true, CanEdit: true, CanDownload: true},
				"b@x.com": {CanRead: true, CanEdit: false, CanDownload: true},
				"c@x.com": {CanRead: true, CanEdit: false, CanDownload: false},
			},
		},
		{
			name: "emails are normalised and blanks dropped",
			req: entities.PermissionRequest{
				EditUsers: []string{" A@X.com "},
				ReadUsers: []string{"a@x.com", "", "  "},
			},
			expected: map[string]entities.PermissionFlags{
				"a@x.com": entities.FullAccess,
			},
		},
		{
			name:     "initial mode leaves unnamed users untouched",
			req:      entities.PermissionRequest{ReadUsers: []string{"c@x.com"}},
			mode:     usecase.ResolveInitial,
			previous: []string{"old@x.com"},
			expected: map[string]entities.PermissionFlags{
				"c@x.com": entities.ReadAccess,
			},
		},
		{
			name:     "update mode revokes omitted users",
			req:      entities.PermissionRequest{ReadUsers: []string{"c@x.com"}},
			mode:     usecase.ResolveUpdate,
			previous: []string{"old@x.com", "c@x.com"},
			expected: map[string]entities.PermissionFlags{
				"c@x.com":   entities.ReadAccess,
				"old@x.com": {CanRead: false, CanEdit: false, CanDownload: false},
			},
		},
		{
			name:     "update mode with empty lists revokes everyone",
			mode:     usecase.ResolveUpdate,
			previous: []string{"a@x.com", "b@x.com"},
			expected: map[string]entities.PermissionFlags{
				"a@x.com": entities.NoAccess,
				"b@x.com": entities.NoAccess,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := usecase.ResolvePermissions(tt.req, tt.mode, tt.previous)
			assert.Equal(t, tt.expected, result)
			for user, flags := range result {
				assert.True(t, flags.Consistent(), "edit must imply read and download for %s", user)
			}
		})
	}
}

func TestResolvePermissions_EditorsAlwaysFullAccess(t *testing.T) {
	users := []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com"}

	// every combination of list membership for every user
	for mask := 0; mask < 1<<(3*len(users)); mask++ {
		var req entities.PermissionRequest
		for i, u := range users {
			bits := (mask >> (3 * i)) & 7
			if bits&1 != 0 {
				req.EditUsers = append(req.EditUsers, u)
			}
			if bits&2 != 0 {
				req.DownloadUsers = append(req.DownloadUsers, u)
			}
			if bits&4 != 0 {
				req.ReadUsers = append(req.ReadUsers, u)
			}
		}

		result := usecase.ResolvePermissions(req, usecase.ResolveInitial, nil)
		for _, u := range req.EditUsers {
			if !assert.Equal(t, entities.FullAccess, result[u], "mask %d user %s", mask, u) {
				return
			}
		}
		for _, u := range req.DownloadUsers {
			if !assert.True(t, result[u].CanDownload && result[u].CanRead, "mask %d user %s", mask, u) {
				return
			}
		}
	}
}
