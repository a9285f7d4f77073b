package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/iot"
	"github.com/aws/aws-sdk-go/service/iot/iotiface"
	"github.com/ruteri/iot-thing-provisioner/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeIoT implements the IoT calls IoTRegistry makes.
type fakeIoT struct {
	iotiface.IoTAPI

	startInput *iot.StartThingRegistrationTaskInput
	startErr   error

	describeOutput *iot.DescribeThingRegistrationTaskOutput

	reportPages [][]string
	listInput   *iot.ListThingRegistrationTaskReportsInput

	stopped []string
}

func (f *fakeIoT) StartThingRegistrationTaskWithContext(ctx aws.Context, input *iot.StartThingRegistrationTaskInput, opts ...request.Option) (*iot.StartThingRegistrationTaskOutput, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.startInput = input
	return &iot.StartThingRegistrationTaskOutput{TaskId: aws.String("task-1")}, nil
}

func (f *fakeIoT) DescribeThingRegistrationTaskWithContext(ctx aws.Context, input *iot.DescribeThingRegistrationTaskInput, opts ...request.Option) (*iot.DescribeThingRegistrationTaskOutput, error) {
	return f.describeOutput, nil
}

func (f *fakeIoT) ListThingRegistrationTaskReportsPagesWithContext(ctx aws.Context, input *iot.ListThingRegistrationTaskReportsInput, fn func(*iot.ListThingRegistrationTaskReportsOutput, bool) bool, opts ...request.Option) error {
	f.listInput = input
	for i, page := range f.reportPages {
		last := i == len(f.reportPages)-1
		if !fn(&iot.ListThingRegistrationTaskReportsOutput{ResourceLinks: aws.StringSlice(page)}, last) {
			break
		}
	}
	return nil
}

func (f *fakeIoT) StopThingRegistrationTaskWithContext(ctx aws.Context, input *iot.StopThingRegistrationTaskInput, opts ...request.Option) (*iot.StopThingRegistrationTaskOutput, error) {
	f.stopped = append(f.stopped, aws.StringValue(input.TaskId))
	return &iot.StopThingRegistrationTaskOutput{}, nil
}

func TestIoTRegistryStartRegistrationTask(t *testing.T) {
	api := &fakeIoT{}
	reg := NewIoTRegistryWithClient(api, newTestLogger())

	taskID, err := reg.StartRegistrationTask(context.Background(), interfaces.StartTaskRequest{
		InputBucket:  "garden-bucket",
		InputKey:     "things.json",
		RoleARN:      "arn:aws:iam::123456789012:role/provisioning",
		TemplateBody: `{"Resources":{}}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "task-1", taskID)

	assert.Equal(t, "garden-bucket", aws.StringValue(api.startInput.InputFileBucket))
	assert.Equal(t, "things.json", aws.StringValue(api.startInput.InputFileKey))
	assert.Equal(t, "arn:aws:iam::123456789012:role/provisioning", aws.StringValue(api.startInput.RoleArn))
	assert.Equal(t, `{"Resources":{}}`, aws.StringValue(api.startInput.TemplateBody))
}

func TestIoTRegistryStartRegistrationTaskError(t *testing.T) {
	apiErr := errors.New("InvalidRequestException")
	reg := NewIoTRegistryWithClient(&fakeIoT{startErr: apiErr}, newTestLogger())

	_, err := reg.StartRegistrationTask(context.Background(), interfaces.StartTaskRequest{})
	require.ErrorIs(t, err, apiErr)
}

func TestIoTRegistryDescribeRegistrationTask(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeIoT{describeOutput: &iot.DescribeThingRegistrationTaskOutput{
		TaskId:             aws.String("task-1"),
		Status:             aws.String(iot.StatusInProgress),
		PercentageProgress: aws.Int64(50),
		SuccessCount:       aws.Int64(1),
		FailureCount:       aws.Int64(0),
		InputFileBucket:    aws.String("garden-bucket"),
		InputFileKey:       aws.String("things.json"),
		CreationDate:       aws.Time(created),
	}}
	reg := NewIoTRegistryWithClient(api, newTestLogger())

	task, err := reg.DescribeRegistrationTask(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, &interfaces.RegistrationTask{
		TaskID:             "task-1",
		Status:             interfaces.TaskInProgress,
		PercentageProgress: 50,
		SuccessCount:       1,
		InputFileBucket:    "garden-bucket",
		InputFileKey:       "things.json",
		CreationDate:       created,
	}, task)
}

func TestIoTRegistryListReportLinks(t *testing.T) {
	api := &fakeIoT{reportPages: [][]string{
		{"https://example.com/results-1"},
		{"https://example.com/results-2", "https://example.com/results-3"},
	}}
	reg := NewIoTRegistryWithClient(api, newTestLogger())

	links, err := reg.ListReportLinks(context.Background(), "task-1", interfaces.ReportResults)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/results-1",
		"https://example.com/results-2",
		"https://example.com/results-3",
	}, links)
	assert.Equal(t, iot.ReportTypeResults, aws.StringValue(api.listInput.ReportType))
	assert.Equal(t, "task-1", aws.StringValue(api.listInput.TaskId))
}

func TestIoTRegistryStopRegistrationTask(t *testing.T) {
	api := &fakeIoT{}
	reg := NewIoTRegistryWithClient(api, newTestLogger())

	require.NoError(t, reg.StopRegistrationTask(context.Background(), "task-1"))
	assert.Equal(t, []string{"task-1"}, api.stopped)
}
