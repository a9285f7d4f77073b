package registry

import (
	"context"

	"github.com/ruteri/iot-thing-provisioner/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockRegistry mocks the interfaces.ThingRegistry interface
type MockRegistry struct {
	mock.Mock
}

// StartRegistrationTask mocks the StartRegistrationTask method
func (m *MockRegistry) StartRegistrationTask(ctx context.Context, req interfaces.StartTaskRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// DescribeRegistrationTask mocks the DescribeRegistrationTask method
func (m *MockRegistry) DescribeRegistrationTask(ctx context.Context, taskID string) (*interfaces.RegistrationTask, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.RegistrationTask), args.Error(1)
}

// ListReportLinks mocks the ListReportLinks method
func (m *MockRegistry) ListReportLinks(ctx context.Context, taskID string, reportType interfaces.ReportType) ([]string, error) {
	args := m.Called(ctx, taskID, reportType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// StopRegistrationTask mocks the StopRegistrationTask method
func (m *MockRegistry) StopRegistrationTask(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

// MockReportFetcher mocks the interfaces.ReportFetcher interface.
// The first return value may be a func(context.Context, string) []interfaces.RegistrationResult
// to build records lazily.
type MockReportFetcher struct {
	mock.Mock
}

// FetchResults mocks the FetchResults method
func (m *MockReportFetcher) FetchResults(ctx context.Context, link string) ([]interfaces.RegistrationResult, error) {
	args := m.Called(ctx, link)
	if fn, ok := args.Get(0).(func(context.Context, string) []interfaces.RegistrationResult); ok {
		return fn(ctx, link), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.RegistrationResult), args.Error(1)
}
