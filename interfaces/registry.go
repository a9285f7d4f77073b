package interfaces

import "context"

// ThingRegistry manages bulk thing registration tasks.
type ThingRegistry interface {
	// StartRegistrationTask submits a new task and returns its id.
	StartRegistrationTask(ctx context.Context, req StartTaskRequest) (string, error)

	// DescribeRegistrationTask returns the current status of a task.
	DescribeRegistrationTask(ctx context.Context, taskID string) (*RegistrationTask, error)

	// ListReportLinks returns the download links of a task report.
	ListReportLinks(ctx context.Context, taskID string, reportType ReportType) ([]string, error)

	// StopRegistrationTask cancels a running task.
	StopRegistrationTask(ctx context.Context, taskID string) error
}

// ReportFetcher downloads and decodes task reports.
type ReportFetcher interface {
	// FetchResults downloads the report behind link and decodes its records.
	FetchResults(ctx context.Context, link string) ([]RegistrationResult, error)
}
