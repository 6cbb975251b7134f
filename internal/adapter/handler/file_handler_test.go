package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/fileshare/internal/adapter/handler"
	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/infrastructure/staging"
	"github.com/zots0127/fileshare/internal/usecase"
	"github.com/zots0127/fileshare/pkg/middleware"
)

const actor = "alice@example.com"

type mockFiles struct {
	mock.Mock
}

func (m *mockFiles) Upload(ctx context.Context, actor string, staged usecase.StagedFile, req entities.PermissionRequest) (*usecase.UploadResult, error) {
	args := m.Called(ctx, actor, staged, req)
	res, _ := args.Get(0).(*usecase.UploadResult)
	return res, args.Error(1)
}

func (m *mockFiles) Rename(ctx context.Context, actor, oldName, newName string) (*usecase.RenameResult, error) {
	args := m.Called(ctx, actor, oldName, newName)
	res, _ := args.Get(0).(*usecase.RenameResult)
	return res, args.Error(1)
}

func (m *mockFiles) Delete(ctx context.Context, actor, name string) (*usecase.DeleteResult, error) {
	args := m.Called(ctx, actor, name)
	res, _ := args.Get(0).(*usecase.DeleteResult)
	return res, args.Error(1)
}

func (m *mockFiles) ListForUser(ctx context.Context, userEmail string) ([]entities.FileListing, error) {
	args := m.Called(ctx, userEmail)
	res, _ := args.Get(0).([]entities.FileListing)
	return res, args.Error(1)
}

func (m *mockFiles) UpdatePermissions(ctx context.Context, actor, name string, req entities.PermissionRequest) error {
	return m.Called(ctx, actor, name, req).Error(0)
}

func (m *mockFiles) Download(ctx context.Context, actor, name string) (io.ReadCloser, *entities.FileObject, error) {
	args := m.Called(ctx, actor, name)
	rc, _ := args.Get(0).(io.ReadCloser)
	file, _ := args.Get(1).(*entities.FileObject)
	return rc, file, args.Error(2)
}

type fileFixture struct {
	files      *mockFiles
	stagingDir string
	router     *gin.Engine
}

func newFileFixture(t *testing.T, maxUpload int64) *fileFixture {
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	stager, err := staging.New(dir, maxUpload)
	require.NoError(t, err)

	f := &fileFixture{files: new(mockFiles), stagingDir: dir, router: gin.New()}
	api := f.router.Group("/api", func(c *gin.Context) { c.Set(middleware.ActorKey, actor) })
	handler.NewFileHandler(f.files, stager, nil).RegisterRoutes(api)
	return f
}

func (f *fileFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func multipartUpload(t *testing.T, fileName string, content []byte, fields map[string][]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, values := range fields {
		for _, v := range values {
			require.NoError(t, mw.WriteField(key, v))
		}
	}
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func stagingEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestFileHandler_Upload(t *testing.T) {
	f := newFileFixture(t, 0)
	pdf := []byte("%PDF-1.4\nreport body")

	wantReq := entities.PermissionRequest{
		EditUsers:     []string{"bob@example.com", "carol@example.com"},
		DownloadUsers: []string{"dave@example.com", "erin@example.com"},
	}
	f.files.On("Upload", mock.Anything, actor, mock.MatchedBy(func(s usecase.StagedFile) bool {
		data, err := os.ReadFile(s.Path())
		return err == nil && s.Name() == "report.pdf" && bytes.Equal(data, pdf) && s.ContentType() == "application/pdf"
	}), wantReq).Return(&usecase.UploadResult{
		File: &entities.FileObject{Name: "report.pdf", UploadedBy: actor, ContentType: "application/pdf", SizeBytes: int64(len(pdf))},
		Permissions: map[string]entities.PermissionFlags{
			actor: entities.FullAccess,
		},
	}, nil).Once()

	w := f.do(multipartUpload(t, "report.pdf", pdf, map[string][]string{
		"edit_users":     {"bob@example.com, carol@example.com"},
		"download_users": {"dave@example.com", "erin@example.com", " "},
	}))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "report.pdf", body["file_name"])
	assert.Equal(t, "application/pdf", body["content_type"])
	assert.Equal(t, 0, stagingEntries(t, f.stagingDir))
	f.files.AssertExpectations(t)
}

func TestFileHandler_UploadFailureDropsStagedCopy(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"Conflict", entities.NewLifecycleError(entities.KindConflict, "report.pdf", "", errors.New("exists")), http.StatusConflict},
		{"Store write", entities.NewLifecycleError(entities.KindStoreWrite, "report.pdf", entities.StateDuplicateChecked, errors.New("io")), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFileFixture(t, 0)
			f.files.On("Upload", mock.Anything, actor, mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			w := f.do(multipartUpload(t, "report.pdf", []byte("data"), nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, 0, stagingEntries(t, f.stagingDir))
		})
	}
}

func TestFileHandler_UploadRejected(t *testing.T) {
	tests := []struct {
		name      string
		maxUpload int64
		request   func(t *testing.T) *http.Request
		status    int
		errorKind string
	}{
		{
			name:      "Too large",
			maxUpload: 8,
			request: func(t *testing.T) *http.Request {
				return multipartUpload(t, "big.bin", bytes.Repeat([]byte("x"), 64), nil)
			},
			status:    http.StatusRequestEntityTooLarge,
			errorKind: "too_large",
		},
		{
			name: "Missing file part",
			request: func(t *testing.T) *http.Request {
				return multipartUpload(t, "", nil, map[string][]string{"read_users": {"bob@example.com"}})
			},
			status:    http.StatusBadRequest,
			errorKind: "validation",
		},
		{
			name: "Not multipart",
			request: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/files", strings.NewReader(`{"file":"x"}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			status:    http.StatusBadRequest,
			errorKind: "validation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFileFixture(t, tt.maxUpload)
			w := f.do(tt.request(t))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.errorKind, decode(t, w)["error"])
			assert.Equal(t, 0, stagingEntries(t, f.stagingDir))
			f.files.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestFileHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		errorKind string
		lastState string
	}{
		{"Validation", entities.ValidationError("a.pdf", "bad name"), http.StatusBadRequest, "validation", ""},
		{"Permission denied", entities.NewLifecycleError(entities.KindPermissionDenied, "a.pdf", "", nil), http.StatusForbidden, "permission_denied", ""},
		{"Not found", entities.NewLifecycleError(entities.KindNotFound, "a.pdf", "", nil), http.StatusNotFound, "not_found", ""},
		{"Conflict", entities.NewLifecycleError(entities.KindConflict, "a.pdf", "", nil), http.StatusConflict, "conflict", ""},
		{"Store timeout", entities.NewLifecycleError(entities.KindStoreTimeout, "a.pdf", "", context.DeadlineExceeded), http.StatusGatewayTimeout, "store_timeout", ""},
		{"Store write", entities.NewLifecycleError(entities.KindStoreWrite, "a.pdf", "", errors.New("io")), http.StatusBadGateway, "store_write", ""},
		{"Orphaned object", entities.NewLifecycleError(entities.KindOrphanedObject, "a.pdf", entities.StateCatalogDeleted, errors.New("io")), http.StatusInternalServerError, "orphaned_object", string(entities.StateCatalogDeleted)},
		{"Unclassified", errors.New("database is locked"), http.StatusInternalServerError, "internal_error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFileFixture(t, 0)
			f.files.On("Delete", mock.Anything, actor, "a.pdf").Return(nil, tt.err).Once()

			w := f.do(httptest.NewRequest(http.MethodDelete, "/api/files/a.pdf", nil))

			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.errorKind, body["error"])
			if tt.lastState != "" {
				assert.Equal(t, "a.pdf", body["file_name"])
				assert.Equal(t, tt.lastState, body["last_state"])
			} else {
				assert.NotContains(t, body, "last_state")
			}
		})
	}
}

func TestFileHandler_Delete(t *testing.T) {
	f := newFileFixture(t, 0)
	f.files.On("Delete", mock.Anything, actor, "a.pdf").Return(&usecase.DeleteResult{FileName: "a.pdf"}, nil).Once()

	w := f.do(httptest.NewRequest(http.MethodDelete, "/api/files/a.pdf", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"file_name":"a.pdf"}`, w.Body.String())
}

func TestFileHandler_List(t *testing.T) {
	f := newFileFixture(t, 0)
	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.files.On("ListForUser", mock.Anything, actor).Return([]entities.FileListing{
		{FileName: "a.pdf", Type: "application/pdf", Size: 42, Modified: modified, Owner: actor, Permissions: entities.FullAccess},
	}, nil).Once()

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/files", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Files []entities.FileListing `json:"files"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Files, 1)
	assert.Equal(t, "a.pdf", body.Files[0].FileName)
	assert.Equal(t, int64(42), body.Files[0].Size)
	assert.True(t, body.Files[0].Permissions.CanEdit)
}

func TestFileHandler_Download(t *testing.T) {
	f := newFileFixture(t, 0)
	f.files.On("Download", mock.Anything, actor, "report.pdf").Return(
		io.NopCloser(strings.NewReader("%PDF-1.4")),
		&entities.FileObject{Name: "report.pdf", ContentType: "application/pdf", SizeBytes: 8},
		nil,
	).Once()

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/files/report.pdf", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=report.pdf", w.Header().Get("Content-Disposition"))
	assert.Equal(t, "8", w.Header().Get("Content-Length"))
}

func TestFileHandler_Rename(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFileFixture(t, 0)
		f.files.On("Rename", mock.Anything, actor, "a.pdf", "b.pdf").
			Return(&usecase.RenameResult{OldName: "a.pdf", NewName: "b.pdf"}, nil).Once()

		req := httptest.NewRequest(http.MethodPatch, "/api/files/a.pdf", strings.NewReader(`{"new_name":" b.pdf "}`))
		req.Header.Set("Content-Type", "application/json")
		w := f.do(req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"old_name":"a.pdf","new_name":"b.pdf"}`, w.Body.String())
	})

	t.Run("Missing new name", func(t *testing.T) {
		f := newFileFixture(t, 0)
		req := httptest.NewRequest(http.MethodPatch, "/api/files/a.pdf", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := f.do(req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.files.AssertNotCalled(t, "Rename", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestFileHandler_UpdatePermissions(t *testing.T) {
	f := newFileFixture(t, 0)
	want := entities.PermissionRequest{
		EditUsers: []string{"bob@example.com"},
		ReadUsers: []string{"carol@example.com", "dave@example.com"},
	}
	f.files.On("UpdatePermissions", mock.Anything, actor, "a.pdf", want).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/api/files/a.pdf/permissions", strings.NewReader(
		`{"edit_users":["bob@example.com"],"read_users":["carol@example.com,dave@example.com"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"file_name":"a.pdf"}`, w.Body.String())
	f.files.AssertExpectations(t)
}

func TestFileHandler_UpdatePermissionsMalformed(t *testing.T) {
	f := newFileFixture(t, 0)
	req := httptest.NewRequest(http.MethodPut, "/api/files/a.pdf/permissions", strings.NewReader(`{"edit_users":"not-a-list"`))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
