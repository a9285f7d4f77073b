// Package registry talks to the AWS IoT bulk thing registration service.
//
// IoTRegistry submits registration tasks, describes their progress, lists
// the report links of finished tasks and stops running ones. It implements
// interfaces.ThingRegistry on top of the aws-sdk-go IoT client.
//
// WaitForCompletion polls a task until it reaches the Completed state. The
// poll runs at a fixed interval with a retry ceiling; a task that ends as
// Failed or Cancelled stops the poll immediately.
//
// ReportDownloader fetches a report link over HTTPS and decodes the
// newline-delimited JSON records into interfaces.RegistrationResult values.
package registry
