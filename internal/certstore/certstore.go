// SPDX-License-Identifier: MPL-2.0

// Package certstore collects the signing certificates that accompany
// packages into a restore archive. Export requires the platform signature
// APIs (reached through PowerShell); thumbprinting is plain hashing and
// works everywhere. Certificates are best-effort: callers treat every
// failure here as a warning, not a stop.
package certstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"packmule/internal/toolchain"
	"packmule/internal/toolexec"
)

var (
	// ErrUnsupported is returned by ExportSigner on platforms without the
	// signature APIs.
	ErrUnsupported = errors.New("certificate export not supported on this platform")

	// ErrNoSignature is returned when a package file carries no signature
	// to export a certificate from.
	ErrNoSignature = errors.New("package has no signature")
)

// Store exports and fingerprints signing certificates.
type Store struct {
	// Runner executes the PowerShell export.
	Runner *toolexec.Runner
	// Tools locates powershell.
	Tools *toolchain.Toolchain
	// Log receives export diagnostics. Nil uses slog.Default().
	Log *slog.Logger
}

// NewStore wires a Store over the given runner and toolchain.
func NewStore(runner *toolexec.Runner, tools *toolchain.Toolchain) *Store {
	return &Store{Runner: runner, Tools: tools}
}

func (s *Store) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// ExportSigner extracts the signer certificate of packageFile into destDir
// as a DER .cer file named after the package file. Returns the written
// certificate path.
func (s *Store) ExportSigner(ctx context.Context, packageFile, destDir string) (string, error) {
	if runtime.GOOS != "windows" {
		return "", ErrUnsupported
	}

	shell, err := s.Tools.Locate("powershell")
	if err != nil {
		return "", fmt.Errorf("locating powershell: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(packageFile), filepath.Ext(packageFile))
	certPath := filepath.Join(destDir, base+".cer")

	// Get-AuthenticodeSignature reads the embedded signature;
	// Export-Certificate writes the signer's certificate in DER form.
	script := fmt.Sprintf(
		`$sig = Get-AuthenticodeSignature -FilePath %s; `+
			`if ($sig.SignerCertificate -eq $null) { exit 21 }; `+
			`Export-Certificate -Cert $sig.SignerCertificate -FilePath %s -Type CERT | Out-Null`,
		quotePS(packageFile), quotePS(certPath))

	res, err := s.Runner.Run(ctx, toolexec.Invocation{
		Path:               shell,
		Args:               []string{"-NoProfile", "-NonInteractive", "-Command", script},
		PassThroughFailure: true,
	})
	if err != nil {
		return "", fmt.Errorf("exporting certificate for %s: %w", filepath.Base(packageFile), err)
	}
	if int(res.ExitCode) == 21 {
		return "", fmt.Errorf("package %s: %w", filepath.Base(packageFile), ErrNoSignature)
	}
	if !res.Success {
		return "", fmt.Errorf("certificate export for %s exited %s: %s",
			filepath.Base(packageFile), res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	s.logger().Debug("exported signer certificate", "package", packageFile, "certificate", certPath)
	return certPath, nil
}

// Thumbprint computes the platform certificate thumbprint: SHA-1 over the
// DER bytes, uppercase hex. PEM input is decoded to DER first.
func Thumbprint(certFile string) (string, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return "", fmt.Errorf("reading certificate: %w", err)
	}

	der := data
	if block, _ := pem.Decode(data); block != nil && block.Type == "CERTIFICATE" {
		der = block.Bytes
	}

	sum := sha1.Sum(der)
	return strings.ToUpper(hex.EncodeToString(sum[:])), nil
}

// quotePS single-quotes a value for a PowerShell command line.
func quotePS(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
