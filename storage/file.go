package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ruteri/iot-thing-provisioner/interfaces"
)

const (
	keyDir  = "key"
	csrDir  = "csr"
	certDir = "crt"
	binDir  = "bin"

	keyExt  = ".key"
	csrExt  = ".csr"
	certExt = ".crt"
)

// CertStore implements interfaces.CertificateStore on the local file system.
// Material is stored in a directory per kind, one file per device:
//
//	<base>/key/<name>.key
//	<base>/csr/<name>.csr
//	<base>/crt/<name>.crt
//	<base>/bin/<name>/
type CertStore struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewCertStore creates a store rooted at baseDir. Nothing is created until Prepare.
func NewCertStore(baseDir string, log *slog.Logger) *CertStore {
	return &CertStore{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}
}

// Prepare creates the directory layout. Existing directories are kept.
func (s *CertStore) Prepare() error {
	for _, dir := range []string{keyDir, csrDir, certDir, binDir} {
		if err := os.MkdirAll(filepath.Join(s.baseDir, dir), 0755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}
	return nil
}

func (s *CertStore) KeyPath(name string) string {
	return filepath.Join(s.baseDir, keyDir, name+keyExt)
}

func (s *CertStore) CSRPath(name string) string {
	return filepath.Join(s.baseDir, csrDir, name+csrExt)
}

func (s *CertStore) CertPath(name string) string {
	return filepath.Join(s.baseDir, certDir, name+certExt)
}

func (s *CertStore) BinDir(name string) string {
	return filepath.Join(s.baseDir, binDir, name)
}

// ReadCSR implements interfaces.CertificateStore.
func (s *CertStore) ReadCSR(name string) ([]byte, error) {
	return s.read(name, s.CSRPath(name))
}

// ReadKey implements interfaces.CertificateStore.
func (s *CertStore) ReadKey(name string) ([]byte, error) {
	return s.read(name, s.KeyPath(name))
}

func (s *CertStore) read(name, path string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrDeviceNotFound, path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// SaveCertificate writes an issued certificate to <base>/crt/<name>.crt.
func (s *CertStore) SaveCertificate(ctx context.Context, name string, certPEM []byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}

	path := s.CertPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, certPEM, 0644); err != nil {
		return "", fmt.Errorf("failed to write certificate: %w", err)
	}

	s.log.Debug("Stored certificate",
		slog.String("device", name),
		slog.String("path", path),
		slog.Int("size", len(certPEM)))

	return path, nil
}

// ListDevices returns the names of all devices with a CSR, sorted.
func (s *CertStore) ListDevices() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, csrDir))
	if err != nil {
		return nil, fmt.Errorf("failed to list CSR directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), csrExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), csrExt))
	}
	sort.Strings(names)
	return names, nil
}

// Name returns a unique identifier for this store.
func (s *CertStore) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(s.baseDir))
}

// LocationURI returns the URI that identifies this store.
func (s *CertStore) LocationURI() string {
	return s.locationURI
}

// checkName rejects names that would escape the store directories.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: unusable device name %q", interfaces.ErrInvalidDevice, name)
	}
	return nil
}
