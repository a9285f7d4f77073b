package toolchain

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/iot-thing-provisioner/cryptoutils"
)

// Native implements interfaces.Toolchain in Go, producing the same files as
// the external toolchain without requiring openssl or xxd on the host.
type Native struct {
	subject cryptoutils.Subject
	bits    int
	log     *slog.Logger
}

// NewNative creates a native toolchain. bits of 0 selects cryptoutils.DefaultRSABits.
func NewNative(subject cryptoutils.Subject, bits int, log *slog.Logger) *Native {
	if bits == 0 {
		bits = cryptoutils.DefaultRSABits
	}
	return &Native{subject: subject, bits: bits, log: log}
}

// Name implements interfaces.Toolchain.
func (t *Native) Name() string {
	return "native"
}

// GenerateKeyAndCSR implements interfaces.KeyGenerator.
func (t *Native) GenerateKeyAndCSR(ctx context.Context, keyPath, csrPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, csr, err := cryptoutils.CreateCSRWithRandomKey(t.subject, t.bits)
	if err != nil {
		return fmt.Errorf("could not generate key and CSR: %w", err)
	}

	if err := os.WriteFile(keyPath, key, 0600); err != nil {
		return fmt.Errorf("could not write private key: %w", err)
	}
	if err := os.WriteFile(csrPath, csr, 0644); err != nil {
		return fmt.Errorf("could not write CSR: %w", err)
	}

	t.log.Debug("Generated key and CSR",
		slog.String("key", keyPath),
		slog.String("csr", csrPath))
	return nil
}

// CertificateToDER implements interfaces.DERConverter.
func (t *Native) CertificateToDER(ctx context.Context, inPath, outPath string) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("could not read certificate: %w", err)
	}

	der, err := cryptoutils.TLSCert(data).DER()
	if err != nil {
		return fmt.Errorf("could not convert certificate %s: %w", inPath, err)
	}

	if err := os.WriteFile(outPath, der, 0644); err != nil {
		return fmt.Errorf("could not write certificate: %w", err)
	}
	return nil
}

// PrivateKeyToDER implements interfaces.DERConverter.
func (t *Native) PrivateKeyToDER(ctx context.Context, inPath, outPath string) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("could not read private key: %w", err)
	}

	der, err := cryptoutils.DevicePrivkey(data).RSADER()
	if err != nil {
		return fmt.Errorf("could not convert private key %s: %w", inPath, err)
	}

	if err := os.WriteFile(outPath, der, 0600); err != nil {
		return fmt.Errorf("could not write private key: %w", err)
	}
	return nil
}

// DumpArray implements interfaces.ArrayDumper.
func (t *Native) DumpArray(ctx context.Context, dir, file string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return nil, fmt.Errorf("could not dump %s: %w", file, err)
	}
	return CArray(VariableName(file), data, 0), nil
}
