// Package toolchain provides the key, DER and C array tooling the
// provisioning and conversion pipelines run per device.
//
// The external toolchain shells out to openssl and xxd, matching what an
// operator would type by hand. The native toolchain produces equivalent
// files with the Go standard crypto packages.
package toolchain

import (
	"fmt"
	"log/slog"

	"github.com/ruteri/iot-thing-provisioner/interfaces"
)

const (
	KindExternal = "external"
	KindNative   = "native"
)

// New returns the toolchain of the given kind.
func New(kind string, opts ExternalOpts, log *slog.Logger) (interfaces.Toolchain, error) {
	switch kind {
	case KindExternal, "":
		return NewExternal(NewExecRunner(log), opts, log), nil
	case KindNative:
		return NewNative(opts.Subject, opts.RSABits, log), nil
	default:
		return nil, fmt.Errorf("unknown toolchain %q, expected %q or %q", kind, KindExternal, KindNative)
	}
}
