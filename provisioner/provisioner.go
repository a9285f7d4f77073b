package provisioner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ruteri/iot-thing-provisioner/cryptoutils"
	"github.com/ruteri/iot-thing-provisioner/interfaces"
	"github.com/ruteri/iot-thing-provisioner/registry"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel key generation.
const DefaultConcurrency = 4

// Config holds the parameters of a provisioning run.
type Config struct {
	// ManifestPath is where the manifest is written locally; empty skips the local copy.
	ManifestPath string

	// ManifestKey is the object key the manifest is uploaded under.
	ManifestKey string

	// RoleARN is the role the registration task assumes to read the manifest and create things.
	RoleARN string

	// TemplateBody is the provisioning template JSON.
	TemplateBody string

	Poll        registry.PollOpts
	Concurrency int

	// VerifyCertificates checks each issued certificate against the device key before saving.
	VerifyCertificates bool
}

// Result summarizes a provisioning run.
type Result struct {
	TaskID string
	Task   *interfaces.RegistrationTask

	// Certificates maps thing names to the saved certificate path.
	Certificates map[string]string
}

// Provisioner orchestrates the bulk registration of devices.
type Provisioner struct {
	registry interfaces.ThingRegistry
	objects  interfaces.ObjectStore
	reports  interfaces.ReportFetcher
	certs    interfaces.CertificateStore
	keys     interfaces.KeyGenerator
	cfg      Config
	log      *slog.Logger
}

// NewProvisioner creates a provisioner. objects may be nil for runs that
// never upload (manifest generation, waiting on and fetching existing tasks).
func NewProvisioner(reg interfaces.ThingRegistry, objects interfaces.ObjectStore, reports interfaces.ReportFetcher, certs interfaces.CertificateStore, keys interfaces.KeyGenerator, cfg Config, log *slog.Logger) *Provisioner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Poll.Interval == 0 {
		cfg.Poll = registry.DefaultPollOpts
	}

	return &Provisioner{
		registry: reg,
		objects:  objects,
		reports:  reports,
		certs:    certs,
		keys:     keys,
		cfg:      cfg,
		log:      log,
	}
}

// GenerateManifest creates a key and CSR for every device and returns the
// manifest, one JSON record per line in device order.
func (p *Provisioner) GenerateManifest(ctx context.Context, devices []interfaces.Device) ([]byte, error) {
	start := time.Now()

	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no devices to provision", interfaces.ErrInvalidDevice)
	}
	if err := interfaces.ValidateDevices(devices); err != nil {
		return nil, err
	}
	if err := p.certs.Prepare(); err != nil {
		return nil, err
	}

	records := make([]interfaces.ProvisioningRecord, len(devices))
	var generated atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, device := range devices {
		i, device := i, device
		g.Go(func() error {
			record, err := p.createThing(gctx, device)
			if err != nil {
				return fmt.Errorf("device %s: %w", device.Name, err)
			}
			records[i] = record

			p.log.Debug("Generated device identity",
				slog.String("device", device.Name),
				slog.Int64("done", generated.Inc()),
				slog.Int("total", len(devices)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var manifest bytes.Buffer
	for i, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("could not encode manifest record: %w", err)
		}
		if i > 0 {
			manifest.WriteByte('\n')
		}
		manifest.Write(line)
	}

	if p.cfg.ManifestPath != "" {
		if err := os.WriteFile(p.cfg.ManifestPath, manifest.Bytes(), 0644); err != nil {
			return nil, fmt.Errorf("could not write manifest: %w", err)
		}
	}

	p.log.Info("Generated provisioning manifest",
		slog.Int("devices", len(devices)),
		slog.String("path", p.cfg.ManifestPath),
		slog.Int("size", manifest.Len()),
		slog.Duration("duration", time.Since(start)))

	return manifest.Bytes(), nil
}

func (p *Provisioner) createThing(ctx context.Context, device interfaces.Device) (interfaces.ProvisioningRecord, error) {
	if err := p.keys.GenerateKeyAndCSR(ctx, p.certs.KeyPath(device.Name), p.certs.CSRPath(device.Name)); err != nil {
		return interfaces.ProvisioningRecord{}, err
	}

	csrPEM, err := p.certs.ReadCSR(device.Name)
	if err != nil {
		return interfaces.ProvisioningRecord{}, err
	}

	csr, err := cryptoutils.NewTLSCSR(csrPEM)
	if err != nil {
		return interfaces.ProvisioningRecord{}, err
	}

	return interfaces.ProvisioningRecord{
		ThingName:    device.Name,
		SerialNumber: device.ChipID,
		CSR:          csr.SingleLine(),
	}, nil
}

// Register runs the whole pipeline for a batch of devices.
func (p *Provisioner) Register(ctx context.Context, devices []interfaces.Device) (*Result, error) {
	if p.objects == nil {
		return nil, errors.New("no object store configured")
	}
	if p.cfg.ManifestKey == "" || p.cfg.RoleARN == "" || p.cfg.TemplateBody == "" {
		return nil, errors.New("manifest key, role ARN and template body are required")
	}

	manifest, err := p.GenerateManifest(ctx, devices)
	if err != nil {
		return nil, err
	}

	// HeadBucket needs s3:ListBucket, which an upload-only role lacks
	if !p.objects.Available(ctx) {
		p.log.Warn("Bucket not reachable, uploading anyway",
			slog.String("bucket", p.objects.Bucket()),
			slog.String("store", p.objects.Name()))
	}

	key, err := p.objects.Upload(ctx, p.cfg.ManifestKey, bytes.NewReader(manifest))
	if err != nil {
		return nil, err
	}

	taskID, err := p.registry.StartRegistrationTask(ctx, interfaces.StartTaskRequest{
		InputBucket:  p.objects.Bucket(),
		InputKey:     key,
		RoleARN:      p.cfg.RoleARN,
		TemplateBody: p.cfg.TemplateBody,
	})
	if err != nil {
		return nil, err
	}

	task, err := p.Wait(ctx, taskID)
	if err != nil {
		return &Result{TaskID: taskID, Task: task}, err
	}

	certificates, err := p.FetchCertificates(ctx, taskID)
	if err != nil {
		return &Result{TaskID: taskID, Task: task}, err
	}

	return &Result{TaskID: taskID, Task: task, Certificates: certificates}, nil
}

// Wait blocks until the task completes or the poll gives up.
func (p *Provisioner) Wait(ctx context.Context, taskID string) (*interfaces.RegistrationTask, error) {
	return registry.WaitForCompletion(ctx, p.registry, taskID, p.cfg.Poll, p.log)
}

// Stop cancels a running registration task.
func (p *Provisioner) Stop(ctx context.Context, taskID string) error {
	return p.registry.StopRegistrationTask(ctx, taskID)
}

// FetchCertificates downloads the reports of a completed task and saves
// each certificate under the thing name. Failed registrations are listed in
// the errors report, which is read as well. Nothing is written unless every
// record carries a valid certificate.
func (p *Provisioner) FetchCertificates(ctx context.Context, taskID string) (map[string]string, error) {
	resultLinks, err := p.registry.ListReportLinks(ctx, taskID, interfaces.ReportResults)
	if err != nil {
		return nil, err
	}
	errorLinks, err := p.registry.ListReportLinks(ctx, taskID, interfaces.ReportErrors)
	if err != nil {
		return nil, err
	}
	if len(resultLinks) == 0 && len(errorLinks) == 0 {
		return nil, fmt.Errorf("%w: task %s", interfaces.ErrNoReportLinks, taskID)
	}

	var results []interfaces.RegistrationResult
	for _, link := range append(resultLinks, errorLinks...) {
		page, err := p.reports.FetchResults(ctx, link)
		if err != nil {
			return nil, err
		}
		results = append(results, page...)
	}

	if len(errorLinks) > 0 {
		p.log.Warn("Registration task reported errors",
			slog.String("task_id", taskID),
			slog.Int("error_reports", len(errorLinks)))
	}

	certs, err := p.collectCertificates(results)
	if err != nil {
		return nil, err
	}

	paths := make(map[string]string, len(certs))
	for name, cert := range certs {
		path, err := p.certs.SaveCertificate(ctx, name, cert)
		if err != nil {
			return nil, err
		}
		paths[name] = path
	}

	p.log.Info("Saved certificates",
		slog.String("task_id", taskID),
		slog.Int("certificates", len(paths)))

	return paths, nil
}

func (p *Provisioner) collectCertificates(results []interfaces.RegistrationResult) (map[string]cryptoutils.TLSCert, error) {
	var errs []error
	certs := make(map[string]cryptoutils.TLSCert, len(results))
	offsets := make(map[string]int, len(results))

	for _, result := range results {
		if err := result.Err(); err != nil {
			errs = append(errs, err)
			continue
		}

		name, err := result.ThingName()
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if first, ok := offsets[name]; ok {
			errs = append(errs, fmt.Errorf("%w: thing %s reported on manifest lines %d and %d", interfaces.ErrRegistrationFailed, name, first, result.Offset))
			continue
		}
		offsets[name] = result.Offset

		cert, err := cryptoutils.NewTLSCert([]byte(result.Response.CertificatePem))
		if err != nil {
			errs = append(errs, fmt.Errorf("thing %s: %w", name, err))
			continue
		}

		if expired, _ := cert.IsExpired(); expired {
			errs = append(errs, fmt.Errorf("thing %s: certificate is expired", name))
			continue
		}

		if p.cfg.VerifyCertificates {
			if err := p.verify(name, cert); err != nil {
				errs = append(errs, fmt.Errorf("thing %s: %w", name, err))
				continue
			}
		}

		certs[name] = cert
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return certs, nil
}

func (p *Provisioner) verify(name string, cert cryptoutils.TLSCert) error {
	keyPEM, err := p.certs.ReadKey(name)
	if err != nil {
		return err
	}
	return cryptoutils.VerifyKeyPair(cryptoutils.DevicePrivkey(keyPEM), cert)
}
