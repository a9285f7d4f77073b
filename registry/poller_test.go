package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ruteri/iot-thing-provisioner/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fastPoll = PollOpts{Interval: time.Millisecond, MaxRetries: 10}

func task(status interfaces.TaskStatus, progress int64) *interfaces.RegistrationTask {
	return &interfaces.RegistrationTask{TaskID: "task-1", Status: status, PercentageProgress: progress}
}

func TestWaitForCompletion(t *testing.T) {
	tests := []struct {
		name          string
		setupMock     func(m *MockRegistry)
		expectedCalls int
		expectedErr   error
	}{
		{
			name: "completed on first request",
			setupMock: func(m *MockRegistry) {
				m.On("DescribeRegistrationTask", mock.Anything, "task-1").Return(task(interfaces.TaskCompleted, 100), nil).Once()
			},
			expectedCalls: 1,
		},
		{
			name: "completed after progress",
			setupMock: func(m *MockRegistry) {
				m.On("DescribeRegistrationTask", mock.Anything, "task-1").Return(task(interfaces.TaskInProgress, 0), nil).Once()
				m.On("DescribeRegistrationTask", mock.Anything, "task-1").Return(task(interfaces.TaskInProgress, 50), nil).Once()
				m.On("DescribeRegistrationTask", mock.Anything, "task-1").Return(task(interfaces.TaskCompleted, 100), nil).Once()
			},
			expectedCalls: 3,
		},
		{
			name: "completed on the last allowed request",
			setupMock: func(m *MockRegistry) {
				m.On("DescribeRegistrationTask", mock.Anything, "task-1").Return(task(interfaces.TaskInProgress, 10), nil).Times(10)
				m.On("DescribeRegistrationTask", mock.Anything, "task-1").Return(task(interfaces.TaskCompleted, 100), nil).Once()
			},
			expectedCalls: 11,
		},
		{
			name: "retries exceeded",
			setupMock: func(m *MockRegistry) {
				m.On("DescribeRegistrationTask", mock.Anything, "task-1").Return(task(interfaces.TaskInProgress, 10), nil)
			},
			expectedCalls: 11,
			expectedErr:   interfaces.ErrRetriesExceeded,
		},
		{
			name: "task failed",
			setupMock: func(m *MockRegistry) {
				m.On("DescribeRegistrationTask", mock.Anything, "task-1").Return(task(interfaces.TaskInProgress, 10), nil).Once()
				m.On("DescribeRegistrationTask", mock.Anything, "task-1").Return(task(interfaces.TaskFailed, 10), nil).Once()
			},
			expectedCalls: 2,
			expectedErr:   interfaces.ErrTaskFailed,
		},
		{
			name: "task cancelled",
			setupMock: func(m *MockRegistry) {
				m.On("DescribeRegistrationTask", mock.Anything, "task-1").Return(task(interfaces.TaskCancelled, 0), nil).Once()
			},
			expectedCalls: 1,
			expectedErr:   interfaces.ErrTaskFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &MockRegistry{}
			tt.setupMock(reg)

			result, err := WaitForCompletion(context.Background(), reg, "task-1", fastPoll, newTestLogger())
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, interfaces.TaskCompleted, result.Status)
			}
			reg.AssertNumberOfCalls(t, "DescribeRegistrationTask", tt.expectedCalls)
		})
	}
}

func TestWaitForCompletionDescribeError(t *testing.T) {
	apiErr := errors.New("ThrottlingException")
	reg := &MockRegistry{}
	reg.On("DescribeRegistrationTask", mock.Anything, "task-1").Return(nil, apiErr)

	_, err := WaitForCompletion(context.Background(), reg, "task-1", fastPoll, newTestLogger())
	require.ErrorIs(t, err, apiErr)
	reg.AssertNumberOfCalls(t, "DescribeRegistrationTask", 1)
}

func TestWaitForCompletionContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := &MockRegistry{}
	reg.On("DescribeRegistrationTask", mock.Anything, "task-1").
		Run(func(mock.Arguments) { cancel() }).
		Return(task(interfaces.TaskInProgress, 0), nil)

	_, err := WaitForCompletion(ctx, reg, "task-1", PollOpts{Interval: time.Hour, MaxRetries: 10}, newTestLogger())
	require.ErrorIs(t, err, context.Canceled)
	reg.AssertNumberOfCalls(t, "DescribeRegistrationTask", 1)
}
