package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/iot"
	"github.com/aws/aws-sdk-go/service/iot/iotiface"
	"github.com/ruteri/iot-thing-provisioner/interfaces"
)

// IoTRegistry implements interfaces.ThingRegistry with the AWS IoT API.
type IoTRegistry struct {
	client iotiface.IoTAPI
	log    *slog.Logger
}

// NewIoTRegistry creates a registry client from an AWS session.
func NewIoTRegistry(sess client.ConfigProvider, log *slog.Logger) *IoTRegistry {
	return NewIoTRegistryWithClient(iot.New(sess), log)
}

// NewIoTRegistryWithClient wraps an existing IoT API client.
func NewIoTRegistryWithClient(client iotiface.IoTAPI, log *slog.Logger) *IoTRegistry {
	return &IoTRegistry{client: client, log: log}
}

// StartRegistrationTask implements interfaces.ThingRegistry.
func (r *IoTRegistry) StartRegistrationTask(ctx context.Context, req interfaces.StartTaskRequest) (string, error) {
	out, err := r.client.StartThingRegistrationTaskWithContext(ctx, &iot.StartThingRegistrationTaskInput{
		InputFileBucket: aws.String(req.InputBucket),
		InputFileKey:    aws.String(req.InputKey),
		RoleArn:         aws.String(req.RoleARN),
		TemplateBody:    aws.String(req.TemplateBody),
	})
	if err != nil {
		return "", fmt.Errorf("failed to start thing registration task: %w", err)
	}

	taskID := aws.StringValue(out.TaskId)
	if taskID == "" {
		return "", fmt.Errorf("thing registration task started without a task id")
	}

	r.log.Info("Started thing registration task",
		slog.String("task_id", taskID),
		slog.String("bucket", req.InputBucket),
		slog.String("key", req.InputKey))

	return taskID, nil
}

// DescribeRegistrationTask implements interfaces.ThingRegistry.
func (r *IoTRegistry) DescribeRegistrationTask(ctx context.Context, taskID string) (*interfaces.RegistrationTask, error) {
	out, err := r.client.DescribeThingRegistrationTaskWithContext(ctx, &iot.DescribeThingRegistrationTaskInput{
		TaskId: aws.String(taskID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe thing registration task %s: %w", taskID, err)
	}

	return &interfaces.RegistrationTask{
		TaskID:             taskID,
		Status:             interfaces.TaskStatus(aws.StringValue(out.Status)),
		PercentageProgress: aws.Int64Value(out.PercentageProgress),
		SuccessCount:       aws.Int64Value(out.SuccessCount),
		FailureCount:       aws.Int64Value(out.FailureCount),
		Message:            aws.StringValue(out.Message),
		InputFileBucket:    aws.StringValue(out.InputFileBucket),
		InputFileKey:       aws.StringValue(out.InputFileKey),
		CreationDate:       aws.TimeValue(out.CreationDate),
		LastModifiedDate:   aws.TimeValue(out.LastModifiedDate),
	}, nil
}

// ListReportLinks implements interfaces.ThingRegistry. All pages are collected.
func (r *IoTRegistry) ListReportLinks(ctx context.Context, taskID string, reportType interfaces.ReportType) ([]string, error) {
	start := time.Now()
	var links []string

	err := r.client.ListThingRegistrationTaskReportsPagesWithContext(ctx, &iot.ListThingRegistrationTaskReportsInput{
		TaskId:     aws.String(taskID),
		ReportType: aws.String(string(reportType)),
	}, func(page *iot.ListThingRegistrationTaskReportsOutput, lastPage bool) bool {
		links = append(links, aws.StringValueSlice(page.ResourceLinks)...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s reports of task %s: %w", reportType, taskID, err)
	}

	r.log.Debug("Listed task reports",
		slog.String("task_id", taskID),
		slog.String("report_type", string(reportType)),
		slog.Int("links", len(links)),
		slog.Duration("duration", time.Since(start)))

	return links, nil
}

// StopRegistrationTask implements interfaces.ThingRegistry.
func (r *IoTRegistry) StopRegistrationTask(ctx context.Context, taskID string) error {
	_, err := r.client.StopThingRegistrationTaskWithContext(ctx, &iot.StopThingRegistrationTaskInput{
		TaskId: aws.String(taskID),
	})
	if err != nil {
		return fmt.Errorf("failed to stop thing registration task %s: %w", taskID, err)
	}

	r.log.Info("Stopped thing registration task", slog.String("task_id", taskID))
	return nil
}
