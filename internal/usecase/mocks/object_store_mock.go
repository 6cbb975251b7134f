package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
	"github.com/zots0127/fileshare/internal/domain/entities"
)

// MockObjectStore is a mock implementation of ObjectStore
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Exists(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectStore) Put(ctx context.Context, localPath, name string) error {
	args := m.Called(ctx, localPath, name)
	return args.Error(0)
}

func (m *MockObjectStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockObjectStore) Stat(ctx context.Context, name string) (*entities.ObjectInfo, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ObjectInfo), args.Error(1)
}

func (m *MockObjectStore) Rename(ctx context.Context, oldName, newName string) error {
	args := m.Called(ctx, oldName, newName)
	return args.Error(0)
}

func (m *MockObjectStore) Remove(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockObjectStore) Backend() string {
	args := m.Called()
	return args.String(0)
}
