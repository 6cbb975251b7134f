package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zots0127/fileshare/internal/domain/entities"
)

// MockCatalog is a mock implementation of Catalog
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) RegisterFile(ctx context.Context, file *entities.FileObject) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}

func (m *MockCatalog) GetFile(ctx context.Context, name string) (*entities.FileObject, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.FileObject), args.Error(1)
}

func (m *MockCatalog) RenameFile(ctx context.Context, oldName, newName string) error {
	args := m.Called(ctx, oldName, newName)
	return args.Error(0)
}

func (m *MockCatalog) DeleteFile(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockCatalog) UpsertPermissions(ctx context.Context, fileName, userEmail string, patch entities.PermissionPatch) error {
	args := m.Called(ctx, fileName, userEmail, patch)
	return args.Error(0)
}

func (m *MockCatalog) GetPermission(ctx context.Context, fileName, userEmail string) (*entities.PermissionRecord, error) {
	args := m.Called(ctx, fileName, userEmail)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PermissionRecord), args.Error(1)
}

func (m *MockCatalog) ListPermissionsForUser(ctx context.Context, userEmail string) ([]*entities.PermissionRecord, error) {
	args := m.Called(ctx, userEmail)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PermissionRecord), args.Error(1)
}

func (m *MockCatalog) ListPermissionsForFile(ctx context.Context, fileName string) ([]*entities.PermissionRecord, error) {
	args := m.Called(ctx, fileName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PermissionRecord), args.Error(1)
}

func (m *MockCatalog) ListFilesOwnedBy(ctx context.Context, userEmail string) ([]*entities.FileObject, error) {
	args := m.Called(ctx, userEmail)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.FileObject), args.Error(1)
}

func (m *MockCatalog) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
