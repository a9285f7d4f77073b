package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/ruteri/iot-thing-provisioner/cmd/flags"
	"github.com/ruteri/iot-thing-provisioner/firmware"
	"github.com/ruteri/iot-thing-provisioner/interfaces"
	"github.com/ruteri/iot-thing-provisioner/provisioner"
	"github.com/ruteri/iot-thing-provisioner/registry"
	"github.com/ruteri/iot-thing-provisioner/storage"
	"github.com/urfave/cli/v2"
)

var deviceFlags = []cli.Flag{
	flags.DeviceFlag,
	flags.DevicesFileFlag,
	flags.BucketFileFlag,
}

var registrationFlags = []cli.Flag{
	flags.BucketNameFlag,
	flags.BucketPrefixFlag,
	flags.RoleArnFlag,
	flags.TemplateFlag,
}

var pollFlags = []cli.Flag{
	flags.PollIntervalFlag,
	flags.PollRetriesFlag,
}

var reportFlags = []cli.Flag{
	flags.ReportRetriesFlag,
	flags.VerifyFlag,
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "thingctl",
		Usage: "Provision IoT things in bulk and package their credentials for firmware",
		Flags: concat(
			flags.CommonFlags,
			flags.AWSFlags,
			[]cli.Flag{flags.CertsDirFlag, flags.ConcurrencyFlag},
		),
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "generate device identities, register them and store the issued certificates",
				Flags: concat(deviceFlags, registrationFlags, pollFlags, reportFlags, flags.ToolchainFlags),
				Action: func(cCtx *cli.Context) error {
					log := flags.SetupLogger(cCtx)

					devices, err := flags.LoadDevices(cCtx)
					if err != nil {
						return err
					}

					p, err := setupProvisioner(cCtx, log, setupOpts{manifest: flags.ManifestKey(cCtx), aws: true, upload: true})
					if err != nil {
						return err
					}

					result, err := p.Register(cCtx.Context, devices)
					if result != nil && result.TaskID != "" {
						fmt.Printf("task: %s\n", result.TaskID)
					}
					if err != nil {
						return err
					}

					printCertificates(result.Certificates)
					return nil
				},
			},
			{
				Name:  "manifest",
				Usage: "generate device keys, CSRs and the provisioning manifest only",
				Flags: concat(deviceFlags, flags.ToolchainFlags),
				Action: func(cCtx *cli.Context) error {
					log := flags.SetupLogger(cCtx)

					devices, err := flags.LoadDevices(cCtx)
					if err != nil {
						return err
					}

					manifest := flags.ManifestKey(cCtx)
					p, err := setupProvisioner(cCtx, log, setupOpts{manifest: manifest})
					if err != nil {
						return err
					}

					if _, err := p.GenerateManifest(cCtx.Context, devices); err != nil {
						return err
					}

					fmt.Println(manifest)
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "print the state of a registration task",
				Flags: []cli.Flag{flags.TaskIDFlag},
				Action: func(cCtx *cli.Context) error {
					log := flags.SetupLogger(cCtx)

					reg, err := setupRegistry(cCtx, log)
					if err != nil {
						return err
					}

					task, err := reg.DescribeRegistrationTask(cCtx.Context, cCtx.String(flags.TaskIDFlag.Name))
					if err != nil {
						return err
					}
					return printJSON(task)
				},
			},
			{
				Name:  "wait",
				Usage: "wait for a registration task to complete",
				Flags: concat([]cli.Flag{flags.TaskIDFlag}, pollFlags),
				Action: func(cCtx *cli.Context) error {
					log := flags.SetupLogger(cCtx)

					p, err := setupProvisioner(cCtx, log, setupOpts{aws: true})
					if err != nil {
						return err
					}

					task, err := p.Wait(cCtx.Context, cCtx.String(flags.TaskIDFlag.Name))
					if err != nil {
						return err
					}
					return printJSON(task)
				},
			},
			{
				Name:  "fetch-certs",
				Usage: "download and store the certificates issued by a completed task",
				Flags: concat([]cli.Flag{flags.TaskIDFlag}, reportFlags),
				Action: func(cCtx *cli.Context) error {
					log := flags.SetupLogger(cCtx)

					p, err := setupProvisioner(cCtx, log, setupOpts{aws: true})
					if err != nil {
						return err
					}

					certificates, err := p.FetchCertificates(cCtx.Context, cCtx.String(flags.TaskIDFlag.Name))
					if err != nil {
						return err
					}

					printCertificates(certificates)
					return nil
				},
			},
			{
				Name:  "stop",
				Usage: "cancel a running registration task",
				Flags: []cli.Flag{flags.TaskIDFlag},
				Action: func(cCtx *cli.Context) error {
					log := flags.SetupLogger(cCtx)

					p, err := setupProvisioner(cCtx, log, setupOpts{aws: true})
					if err != nil {
						return err
					}
					return p.Stop(cCtx.Context, cCtx.String(flags.TaskIDFlag.Name))
				},
			},
			{
				Name:  "convert",
				Usage: "write DER credentials and secrets.h for every device with a certificate",
				Flags: flags.ToolchainFlags,
				Action: func(cCtx *cli.Context) error {
					log := flags.SetupLogger(cCtx)

					tools, err := flags.SetupToolchain(cCtx, log)
					if err != nil {
						return err
					}

					certs := storage.NewCertStore(cCtx.String(flags.CertsDirFlag.Name), log)
					converter := firmware.NewConverter(certs, tools, cCtx.Int(flags.ConcurrencyFlag.Name), log)

					headers, err := converter.ConvertAll(cCtx.Context)
					for _, header := range headers {
						fmt.Println(header)
					}
					return err
				},
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func setupRegistry(cCtx *cli.Context, log *slog.Logger) (*registry.IoTRegistry, error) {
	sess, err := flags.SetupAWSSession(cCtx)
	if err != nil {
		return nil, err
	}
	return registry.NewIoTRegistry(sess, log), nil
}

// setupOpts selects the parts of the provisioner a command needs.
type setupOpts struct {
	// manifest is written to the working directory under the same name it
	// is uploaded with; key generation is only set up when it is given.
	manifest string

	// aws connects the task registry.
	aws bool

	// upload sets up the object store and the task parameters.
	upload bool
}

// setupProvisioner wires a provisioner from the command flags.
func setupProvisioner(cCtx *cli.Context, log *slog.Logger, opts setupOpts) (*provisioner.Provisioner, error) {
	var sess *session.Session
	var reg interfaces.ThingRegistry
	if opts.aws || opts.upload {
		var err error
		sess, err = flags.SetupAWSSession(cCtx)
		if err != nil {
			return nil, err
		}
		reg = registry.NewIoTRegistry(sess, log)
	}

	manifest := opts.manifest
	cfg := provisioner.Config{
		ManifestPath:       manifest,
		ManifestKey:        manifest,
		Concurrency:        cCtx.Int(flags.ConcurrencyFlag.Name),
		VerifyCertificates: cCtx.Bool(flags.VerifyFlag.Name),
		Poll: registry.PollOpts{
			Interval:   cCtx.Duration(flags.PollIntervalFlag.Name),
			MaxRetries: cCtx.Uint64(flags.PollRetriesFlag.Name),
		},
	}

	var objects interfaces.ObjectStore
	if opts.upload {
		template, err := os.ReadFile(cCtx.Path(flags.TemplateFlag.Name))
		if err != nil {
			return nil, fmt.Errorf("could not read provisioning template: %w", err)
		}
		cfg.TemplateBody = string(template)
		cfg.RoleARN = cCtx.String(flags.RoleArnFlag.Name)

		objects = storage.NewS3Backend(sess, cCtx.String(flags.BucketNameFlag.Name), cCtx.String(flags.BucketPrefixFlag.Name), log)
	}

	var keys interfaces.KeyGenerator
	if manifest != "" {
		tools, err := flags.SetupToolchain(cCtx, log)
		if err != nil {
			return nil, err
		}
		keys = tools
	}

	return provisioner.NewProvisioner(
		reg,
		objects,
		registry.NewReportDownloader(cCtx.Int(flags.ReportRetriesFlag.Name), log),
		storage.NewCertStore(cCtx.String(flags.CertsDirFlag.Name), log),
		keys,
		cfg,
		log,
	), nil
}

func printCertificates(certificates map[string]string) {
	names := make([]string, 0, len(certificates))
	for name := range certificates {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Printf("%s\t%s\n", name, certificates[name])
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func concat(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
