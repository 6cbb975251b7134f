package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zots0127/fileshare/internal/domain/entities"
)

// MockHealthRepository is a mock implementation of HealthRepository
type MockHealthRepository struct {
	mock.Mock
}

// CheckHealth mocks the CheckHealth method
func (m *MockHealthRepository) CheckHealth(ctx context.Context) (*entities.HealthCheck, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.HealthCheck), args.Error(1)
}

// CheckCatalog mocks the CheckCatalog method
func (m *MockHealthRepository) CheckCatalog(ctx context.Context) entities.CheckResult {
	args := m.Called(ctx)
	return args.Get(0).(entities.CheckResult)
}

// CheckObjectStore mocks the CheckObjectStore method
func (m *MockHealthRepository) CheckObjectStore(ctx context.Context) entities.CheckResult {
	args := m.Called(ctx)
	return args.Get(0).(entities.CheckResult)
}

// CheckStagingDisk mocks the CheckStagingDisk method
func (m *MockHealthRepository) CheckStagingDisk(ctx context.Context) entities.CheckResult {
	args := m.Called(ctx)
	return args.Get(0).(entities.CheckResult)
}

// CheckJournal mocks the CheckJournal method
func (m *MockHealthRepository) CheckJournal(ctx context.Context) entities.CheckResult {
	args := m.Called(ctx)
	return args.Get(0).(entities.CheckResult)
}

// IsReady mocks the IsReady method
func (m *MockHealthRepository) IsReady(ctx context.Context) (bool, string) {
	args := m.Called(ctx)
	return args.Bool(0), args.String(1)
}
