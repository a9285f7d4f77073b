package interfaces

import (
	"context"
	"io"
)

// ObjectStore receives the provisioning manifest a registration task reads.
type ObjectStore interface {
	// Upload stores body under key and returns the full object key, which
	// may carry a store-wide prefix.
	Upload(ctx context.Context, key string, body io.Reader) (string, error)

	// Bucket returns the bucket registration tasks must be pointed at.
	Bucket() string

	// Available checks if the store is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string
}

// CertificateStore owns the local key and certificate tree, keyed by device name.
type CertificateStore interface {
	// Prepare creates the directory layout.
	Prepare() error

	KeyPath(name string) string
	CSRPath(name string) string
	CertPath(name string) string

	// BinDir is the per-device directory for DER files and the generated header.
	BinDir(name string) string

	// ReadCSR returns the PEM CSR of a device.
	ReadCSR(name string) ([]byte, error)

	// ReadKey returns the PEM private key of a device.
	ReadKey(name string) ([]byte, error)

	// SaveCertificate writes an issued certificate and returns its path.
	SaveCertificate(ctx context.Context, name string, certPEM []byte) (string, error)

	// ListDevices returns the names of all devices with a CSR on disk, sorted.
	ListDevices() ([]string, error)
}
