package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zots0127/fileshare/internal/domain/entities"
)

// MockIntentJournal is a mock implementation of IntentJournal
type MockIntentJournal struct {
	mock.Mock
}

func (m *MockIntentJournal) Begin(ctx context.Context, intent *entities.Intent) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}

func (m *MockIntentJournal) Advance(ctx context.Context, id string, state entities.LifecycleState) error {
	args := m.Called(ctx, id, state)
	return args.Error(0)
}

func (m *MockIntentJournal) Fail(ctx context.Context, id string, state entities.LifecycleState, cause error) error {
	args := m.Called(ctx, id, state, cause)
	return args.Error(0)
}

func (m *MockIntentJournal) Complete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockIntentJournal) Pending(ctx context.Context) ([]*entities.Intent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Intent), args.Error(1)
}
