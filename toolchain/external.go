package toolchain

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/ruteri/iot-thing-provisioner/cryptoutils"
)

// dumpColumns makes xxd print a whole file on one line.
const dumpColumns = "100000000"

// ExternalOpts configures the external toolchain.
type ExternalOpts struct {
	// OpenSSL and XXD are the program names or paths; default "openssl" and "xxd".
	OpenSSL string
	XXD     string

	Subject cryptoutils.Subject
	RSABits int
}

// External implements interfaces.Toolchain by shelling out to openssl and xxd.
type External struct {
	runner  Runner
	openssl string
	xxd     string
	subject cryptoutils.Subject
	bits    int
	log     *slog.Logger

	versionOnce sync.Once
	traditional bool
	versionErr  error
}

// NewExternal creates an external toolchain.
func NewExternal(runner Runner, opts ExternalOpts, log *slog.Logger) *External {
	if opts.OpenSSL == "" {
		opts.OpenSSL = "openssl"
	}
	if opts.XXD == "" {
		opts.XXD = "xxd"
	}
	if opts.RSABits == 0 {
		opts.RSABits = cryptoutils.DefaultRSABits
	}

	return &External{
		runner:  runner,
		openssl: opts.OpenSSL,
		xxd:     opts.XXD,
		subject: opts.Subject,
		bits:    opts.RSABits,
		log:     log,
	}
}

// Name implements interfaces.Toolchain.
func (t *External) Name() string {
	return "external"
}

// GenerateKeyAndCSR creates an unencrypted RSA key and a CSR with `openssl req`.
func (t *External) GenerateKeyAndCSR(ctx context.Context, keyPath, csrPath string) error {
	_, err := t.runner.Run(ctx, "", t.openssl,
		"req", "-new",
		"-newkey", "rsa:"+strconv.Itoa(t.bits),
		"-nodes",
		"-keyout", keyPath,
		"-out", csrPath,
		"-subj", t.subject.String())
	if err != nil {
		return fmt.Errorf("could not generate key and CSR: %w", err)
	}
	return nil
}

// CertificateToDER runs `openssl x509 -outform DER`.
func (t *External) CertificateToDER(ctx context.Context, inPath, outPath string) error {
	if _, err := t.runner.Run(ctx, "", t.openssl, "x509", "-in", inPath, "-out", outPath, "-outform", "DER"); err != nil {
		return fmt.Errorf("could not convert certificate: %w", err)
	}
	return nil
}

// PrivateKeyToDER writes the key as PKCS#1 DER with `openssl rsa -outform DER`.
// OpenSSL 3 writes PKCS#8 unless -traditional is given; older releases do not know the flag.
func (t *External) PrivateKeyToDER(ctx context.Context, inPath, outPath string) error {
	args := []string{"rsa", "-in", inPath, "-out", outPath, "-outform", "DER"}

	traditional, err := t.needsTraditional(ctx)
	if err != nil {
		return fmt.Errorf("could not convert private key: %w", err)
	}
	if traditional {
		args = append(args, "-traditional")
	}

	if _, err := t.runner.Run(ctx, "", t.openssl, args...); err != nil {
		return fmt.Errorf("could not convert private key: %w", err)
	}
	return nil
}

func (t *External) needsTraditional(ctx context.Context) (bool, error) {
	t.versionOnce.Do(func() {
		out, err := t.runner.Run(ctx, "", t.openssl, "version")
		if err != nil {
			t.versionErr = fmt.Errorf("could not determine openssl version: %w", err)
			return
		}
		t.traditional = opensslMajorVersion(string(out)) >= 3

		t.log.Debug("Detected openssl",
			slog.String("version", strings.TrimSpace(string(out))),
			slog.Bool("traditional", t.traditional))
	})
	return t.traditional, t.versionErr
}

// opensslMajorVersion parses `openssl version` output such as
// "OpenSSL 3.0.17 1 Jul 2025". LibreSSL and unparseable output yield 0.
func opensslMajorVersion(version string) int {
	fields := strings.Fields(version)
	if len(fields) < 2 || fields[0] != "OpenSSL" {
		return 0
	}
	major, _, _ := strings.Cut(fields[1], ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0
	}
	return n
}

// DumpArray runs `xxd -i` inside dir so the variable name derives from the bare file name.
func (t *External) DumpArray(ctx context.Context, dir, file string) ([]byte, error) {
	out, err := t.runner.Run(ctx, dir, t.xxd, "-c", dumpColumns, "-i", file)
	if err != nil {
		return nil, fmt.Errorf("could not dump %s: %w", file, err)
	}
	return out, nil
}
