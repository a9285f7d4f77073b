// Package firmware converts provisioned key material into C headers that
// firmware builds embed.
//
// For every device with a CSR on disk the Converter writes the certificate
// and private key as DER into the device bin directory, then renders each
// file there as a C byte array and concatenates the arrays into secrets.h.
package firmware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ruteri/iot-thing-provisioner/interfaces"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

const (
	CertDERFile = "cert.der"
	KeyDERFile  = "private.der"
	HeaderFile  = "secrets.h"
)

// DefaultConcurrency bounds parallel conversions.
const DefaultConcurrency = 4

// Converter produces one header per device.
type Converter struct {
	certs       interfaces.CertificateStore
	tools       interfaces.Toolchain
	concurrency int
	log         *slog.Logger
}

// NewConverter creates a converter. concurrency <= 0 selects DefaultConcurrency.
func NewConverter(certs interfaces.CertificateStore, tools interfaces.Toolchain, concurrency int, log *slog.Logger) *Converter {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Converter{
		certs:       certs,
		tools:       tools,
		concurrency: concurrency,
		log:         log,
	}
}

// ConvertAll converts every device that has a CSR and returns the header
// paths in device name order. The first failure aborts the run.
func (c *Converter) ConvertAll(ctx context.Context) ([]string, error) {
	start := time.Now()

	names, err := c.certs.ListDevices()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		c.log.Warn("No devices to convert")
		return nil, nil
	}

	headers := make([]string, len(names))
	var converted atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			header, err := c.ConvertDevice(gctx, name)
			if err != nil {
				return fmt.Errorf("device %s: %w", name, err)
			}
			headers[i] = header

			c.log.Debug("Converted device",
				slog.String("device", name),
				slog.String("header", header),
				slog.Int64("done", converted.Inc()),
				slog.Int("total", len(names)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.log.Info("Generated firmware headers",
		slog.Int("devices", len(headers)),
		slog.String("toolchain", c.tools.Name()),
		slog.Duration("duration", time.Since(start)))

	return headers, nil
}

// ConvertDevice writes cert.der, private.der and secrets.h for one device
// and returns the header path. The header is rebuilt from scratch.
func (c *Converter) ConvertDevice(ctx context.Context, name string) (string, error) {
	certPath := c.certs.CertPath(name)
	if _, err := os.Stat(certPath); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: no certificate at %s", interfaces.ErrDeviceNotFound, certPath)
	}

	binDir := c.certs.BinDir(name)
	if err := os.MkdirAll(binDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", binDir, err)
	}

	if err := c.tools.CertificateToDER(ctx, certPath, filepath.Join(binDir, CertDERFile)); err != nil {
		return "", err
	}
	if err := c.tools.PrivateKeyToDER(ctx, c.certs.KeyPath(name), filepath.Join(binDir, KeyDERFile)); err != nil {
		return "", err
	}

	header, err := c.renderHeader(ctx, binDir)
	if err != nil {
		return "", err
	}

	headerPath := filepath.Join(binDir, HeaderFile)
	if err := os.WriteFile(headerPath, header, 0600); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}
	return headerPath, nil
}

// renderHeader dumps every regular file of binDir except the header itself, in name order.
func (c *Converter) renderHeader(ctx context.Context, binDir string) ([]byte, error) {
	entries, err := os.ReadDir(binDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", binDir, err)
	}

	var header bytes.Buffer
	for _, entry := range entries {
		if !entry.Type().IsRegular() || entry.Name() == HeaderFile {
			continue
		}

		dump, err := c.tools.DumpArray(ctx, binDir, entry.Name())
		if err != nil {
			return nil, err
		}
		header.Write(dump)
	}
	return header.Bytes(), nil
}
