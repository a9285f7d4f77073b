package interfaces

import "context"

// KeyGenerator creates a device private key and CSR.
type KeyGenerator interface {
	GenerateKeyAndCSR(ctx context.Context, keyPath, csrPath string) error
}

// DERConverter converts PEM material to DER.
type DERConverter interface {
	CertificateToDER(ctx context.Context, inPath, outPath string) error
	PrivateKeyToDER(ctx context.Context, inPath, outPath string) error
}

// ArrayDumper renders a file as a C byte array, in the format of `xxd -i`.
// The file is addressed relative to dir, which also determines the variable name.
type ArrayDumper interface {
	DumpArray(ctx context.Context, dir, file string) ([]byte, error)
}

// Toolchain bundles every tool the pipelines shell out to.
type Toolchain interface {
	KeyGenerator
	DERConverter
	ArrayDumper

	// Name returns identifier for logging.
	Name() string
}
