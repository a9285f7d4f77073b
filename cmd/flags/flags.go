package flags

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/google/uuid"
	"github.com/ruteri/iot-thing-provisioner/common"
	"github.com/ruteri/iot-thing-provisioner/cryptoutils"
	"github.com/ruteri/iot-thing-provisioner/interfaces"
	"github.com/ruteri/iot-thing-provisioner/toolchain"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func SetupAWSSession(cCtx *cli.Context) (*session.Session, error) {
	return common.NewAWSSession(common.AWSOpts{
		Region:   cCtx.String(AWSRegionFlag.Name),
		Endpoint: cCtx.String(AWSEndpointFlag.Name),
		Profile:  cCtx.String(AWSProfileFlag.Name),
	})
}

func SetupToolchain(cCtx *cli.Context, log *slog.Logger) (interfaces.Toolchain, error) {
	subject, err := cryptoutils.ParseSubject(cCtx.String(SubjectFlag.Name))
	if err != nil {
		return nil, err
	}

	return toolchain.New(cCtx.String(ToolchainFlag.Name), toolchain.ExternalOpts{
		OpenSSL: cCtx.String(OpenSSLFlag.Name),
		XXD:     cCtx.String(XXDFlag.Name),
		Subject: subject,
		RSABits: cCtx.Int(RSABitsFlag.Name),
	}, log)
}

// LoadDevices merges the inventory file with devices given on the command line.
func LoadDevices(cCtx *cli.Context) ([]interfaces.Device, error) {
	var devices []interfaces.Device

	if path := cCtx.String(DevicesFileFlag.Name); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("could not open device inventory: %w", err)
		}
		defer f.Close()

		devices, err = interfaces.LoadDevices(f)
		if err != nil {
			return nil, err
		}
	}

	for _, arg := range cCtx.StringSlice(DeviceFlag.Name) {
		device, err := interfaces.ParseDevice(arg)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("no devices given, use --%s or --%s", DeviceFlag.Name, DevicesFileFlag.Name)
	}
	if err := interfaces.ValidateDevices(devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// ManifestKey returns the configured manifest object key, or a fresh unique one.
func ManifestKey(cCtx *cli.Context) string {
	if key := cCtx.String(BucketFileFlag.Name); key != "" {
		return key
	}
	return fmt.Sprintf("things-%s.json", uuid.NewString())
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "thingctl",
	Usage: "add 'service' tag to logs",
}

var AWSRegionFlag = &cli.StringFlag{
	Name:    "aws-region",
	Value:   common.DefaultAWSRegion,
	EnvVars: []string{"AWS_REGION", "AWS_DEFAULT_REGION"},
	Usage:   "AWS region of the IoT and S3 endpoints",
}
var AWSEndpointFlag = &cli.StringFlag{
	Name:    "aws-endpoint",
	EnvVars: []string{"AWS_ENDPOINT"},
	Usage:   "override the AWS service endpoint, e.g. for a local emulator",
}
var AWSProfileFlag = &cli.StringFlag{
	Name:    "aws-profile",
	EnvVars: []string{"AWS_PROFILE"},
	Usage:   "shared config profile to take credentials from",
}

var CertsDirFlag = &cli.StringFlag{
	Name:    "certs-dir",
	Value:   "./certs",
	EnvVars: []string{"CERTS_DIR"},
	Usage:   "directory holding key/, csr/, crt/ and bin/",
}
var ConcurrencyFlag = &cli.IntFlag{
	Name:  "concurrency",
	Value: 4,
	Usage: "number of devices processed in parallel",
}

var ToolchainFlag = &cli.StringFlag{
	Name:  "toolchain",
	Value: toolchain.KindExternal,
	Usage: "'external' to run openssl and xxd, 'native' to do the same work in-process",
}
var OpenSSLFlag = &cli.StringFlag{
	Name:  "openssl",
	Value: "openssl",
	Usage: "openssl binary used by the external toolchain",
}
var XXDFlag = &cli.StringFlag{
	Name:  "xxd",
	Value: "xxd",
	Usage: "xxd binary used by the external toolchain",
}
var SubjectFlag = &cli.StringFlag{
	Name:  "subject",
	Value: cryptoutils.DefaultSubject.String(),
	Usage: "CSR subject in OpenSSL form",
}
var RSABitsFlag = &cli.IntFlag{
	Name:  "rsa-bits",
	Value: cryptoutils.DefaultRSABits,
	Usage: "device key size",
}

var BucketNameFlag = &cli.StringFlag{
	Name:     "bucket",
	EnvVars:  []string{"BUCKET_NAME"},
	Required: true,
	Usage:    "S3 bucket the provisioning manifest is uploaded to",
}
var BucketFileFlag = &cli.StringFlag{
	Name:    "bucket-file",
	EnvVars: []string{"BUCKET_FILE"},
	Usage:   "manifest file name, used both locally and as the object key (default: things-<uuid>.json)",
}
var BucketPrefixFlag = &cli.StringFlag{
	Name:    "bucket-prefix",
	EnvVars: []string{"BUCKET_PREFIX"},
	Usage:   "object key prefix for the uploaded manifest",
}
var RoleArnFlag = &cli.StringFlag{
	Name:     "role-arn",
	EnvVars:  []string{"ROLE_ARN"},
	Required: true,
	Usage:    "IAM role the registration task assumes",
}
var TemplateFlag = &cli.PathFlag{
	Name:     "template",
	EnvVars:  []string{"TEMPLATE"},
	Required: true,
	Usage:    "path to the provisioning template JSON",
}

var DeviceFlag = &cli.StringSliceFlag{
	Name:  "device",
	Usage: "device to provision as name=chipId, repeatable",
}
var DevicesFileFlag = &cli.PathFlag{
	Name:    "devices-file",
	EnvVars: []string{"DEVICES_FILE"},
	Usage:   "YAML or JSON list of {name, chipId} devices",
}

var TaskIDFlag = &cli.StringFlag{
	Name:     "task-id",
	Required: true,
	Usage:    "bulk registration task id",
}
var PollIntervalFlag = &cli.DurationFlag{
	Name:  "poll-interval",
	Value: time.Second,
	Usage: "delay between task status requests",
}
var PollRetriesFlag = &cli.Uint64Flag{
	Name:  "poll-retries",
	Value: 10,
	Usage: "status requests after the first before giving up",
}
var ReportRetriesFlag = &cli.IntFlag{
	Name:  "report-retries",
	Value: 3,
	Usage: "retries of a failed report download",
}
var VerifyFlag = &cli.BoolFlag{
	Name:  "verify-certificates",
	Value: true,
	Usage: "check issued certificates against the local device keys before saving",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var AWSFlags = []cli.Flag{
	AWSRegionFlag,
	AWSEndpointFlag,
	AWSProfileFlag,
}

var ToolchainFlags = []cli.Flag{
	ToolchainFlag,
	OpenSSLFlag,
	XXDFlag,
	SubjectFlag,
	RSABitsFlag,
}
