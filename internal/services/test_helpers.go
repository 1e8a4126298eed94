package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"kpidash/internal/loader"
)

// MockLoader is a mock for the Loader interface
type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) Get(ctx context.Context, req loader.Request) (*loader.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*loader.Result)
	return res, args.Error(1)
}

// MockClientCounter is a mock for the ClientCounter interface
type MockClientCounter struct {
	mock.Mock
}

func (m *MockClientCounter) ClientCount() int {
	return m.Called().Int(0)
}
