package storagemock

import (
	"context"

	"github.com/raterudder/vrmapi/pkg/storage"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

var _ storage.Store = (*MockStore)(nil)

func (m *MockStore) Get(ctx context.Context, scope, key string) (any, bool, error) {
	args := m.Called(ctx, scope, key)
	return args.Get(0), args.Bool(1), args.Error(2)
}

func (m *MockStore) Set(ctx context.Context, scope, key string, value any) error {
	args := m.Called(ctx, scope, key, value)
	return args.Error(0)
}

func (m *MockStore) Keys(ctx context.Context, scope string) ([]string, error) {
	args := m.Called(ctx, scope)
	if keys, ok := args.Get(0).([]string); ok {
		return keys, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
