package interfaces

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var thingNamePattern = regexp.MustCompile(`^[a-zA-Z0-9:_-]{1,128}$`)

// Device is a physical device to be registered as a thing.
type Device struct {
	// Name is the thing name; it also keys every local file of the device.
	Name string `json:"name" yaml:"name"`

	// ChipID is the hardware identifier, registered as the thing serial number.
	ChipID string `json:"chipId" yaml:"chipId"`
}

// ParseDevice parses the "name=chipId" form used on the command line.
func ParseDevice(s string) (Device, error) {
	name, chipID, ok := strings.Cut(s, "=")
	if !ok {
		return Device{}, fmt.Errorf("%w: %q is not in name=chipId form", ErrInvalidDevice, s)
	}

	d := Device{Name: strings.TrimSpace(name), ChipID: strings.TrimSpace(chipID)}
	if err := d.Validate(); err != nil {
		return Device{}, err
	}
	return d, nil
}

// Validate checks the device name against the thing name rules and requires a chip id.
func (d Device) Validate() error {
	if !thingNamePattern.MatchString(d.Name) {
		return fmt.Errorf("%w: invalid thing name %q", ErrInvalidDevice, d.Name)
	}
	if d.ChipID == "" {
		return fmt.Errorf("%w: device %q has no chip id", ErrInvalidDevice, d.Name)
	}
	return nil
}

// LoadDevices reads a device inventory. The document is a YAML (or JSON) list
// of devices; names must be unique.
func LoadDevices(r io.Reader) ([]Device, error) {
	var devices []Device
	if err := yaml.NewDecoder(r).Decode(&devices); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not decode device inventory: %w", err)
	}

	if err := ValidateDevices(devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// ValidateDevices validates each device and rejects duplicate names.
func ValidateDevices(devices []Device) error {
	seen := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		if err := d.Validate(); err != nil {
			return err
		}
		if _, ok := seen[d.Name]; ok {
			return fmt.Errorf("%w: duplicate thing name %q", ErrInvalidDevice, d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}

// ProvisioningRecord is a single line of the bulk registration manifest.
// The field names are the parameters the provisioning template references.
type ProvisioningRecord struct {
	ThingName    string `json:"ThingName"`
	SerialNumber string `json:"SerialNumber"`
	CSR          string `json:"CSR"`
}

// TaskStatus is the state of a bulk registration task.
type TaskStatus string

const (
	TaskInProgress TaskStatus = "InProgress"
	TaskCompleted  TaskStatus = "Completed"
	TaskFailed     TaskStatus = "Failed"
	TaskCancelled  TaskStatus = "Cancelled"
	TaskCancelling TaskStatus = "Cancelling"
)

// Terminal reports whether the task will not change state anymore.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// RegistrationTask is a status snapshot of a bulk registration task.
type RegistrationTask struct {
	TaskID             string
	Status             TaskStatus
	PercentageProgress int64
	SuccessCount       int64
	FailureCount       int64
	Message            string
	InputFileBucket    string
	InputFileKey       string
	CreationDate       time.Time
	LastModifiedDate   time.Time
}

// StartTaskRequest carries the parameters of a new bulk registration task.
type StartTaskRequest struct {
	InputBucket  string
	InputKey     string
	RoleARN      string
	TemplateBody string
}

// ReportType selects which report of a finished task to list.
type ReportType string

const (
	ReportResults ReportType = "RESULTS"
	ReportErrors  ReportType = "ERRORS"
)

// ResourceArns are the resources a successful registration created.
type ResourceArns struct {
	Thing       string `json:"thing"`
	Certificate string `json:"certificate"`
}

// RegistrationResponse is the per-thing payload of a results report line.
type RegistrationResponse struct {
	CertificatePem string       `json:"CertificatePem"`
	ResourceArns   ResourceArns `json:"ResourceArns"`
}

// RegistrationResult is one line of a task report.
type RegistrationResult struct {
	Offset       int                   `json:"offset"`
	Response     *RegistrationResponse `json:"response,omitempty"`
	ErrorCode    string                `json:"errorCode,omitempty"`
	ErrorMessage string                `json:"errorMessage,omitempty"`
}

// Err returns a non-nil error if the line reports a failed registration.
func (r RegistrationResult) Err() error {
	if r.ErrorCode != "" {
		return fmt.Errorf("%w: manifest line %d: %s: %s", ErrRegistrationFailed, r.Offset, r.ErrorCode, r.ErrorMessage)
	}
	if r.Response == nil || r.Response.CertificatePem == "" {
		return fmt.Errorf("%w: manifest line %d: no certificate in response", ErrRegistrationFailed, r.Offset)
	}
	return nil
}

// ThingName extracts the thing name from the thing ARN of the response.
func (r RegistrationResult) ThingName() (string, error) {
	if r.Response == nil {
		return "", fmt.Errorf("manifest line %d has no response", r.Offset)
	}
	return ThingNameFromArn(r.Response.ResourceArns.Thing)
}

// ThingNameFromArn returns the resource name of an "arn:...:thing/<name>" ARN.
func ThingNameFromArn(arn string) (string, error) {
	_, name, ok := strings.Cut(arn, "thing/")
	if !ok || name == "" {
		return "", fmt.Errorf("not a thing ARN: %q", arn)
	}
	return name, nil
}

var (
	// ErrInvalidDevice is returned for malformed device records or inventories.
	ErrInvalidDevice = errors.New("invalid device")

	// ErrDeviceNotFound is returned when a device has no material on disk.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrRetriesExceeded is returned when a task is still pending after the retry ceiling.
	ErrRetriesExceeded = errors.New("retries exceeded")

	// ErrTaskFailed is returned when a task ends in a state other than Completed.
	ErrTaskFailed = errors.New("registration task failed")

	// ErrNoReportLinks is returned when a finished task exposes no report to download.
	ErrNoReportLinks = errors.New("no report links")

	// ErrRegistrationFailed is returned when the results report contains failed things.
	ErrRegistrationFailed = errors.New("thing registration failed")
)
