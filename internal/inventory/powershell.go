// SPDX-License-Identifier: MPL-2.0

package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"packmule/internal/toolchain"
	"packmule/internal/toolexec"
	"packmule/pkg/types"
	"packmule/pkg/version"
)

// PowerShellProvider queries the platform package deployment service
// through Get-AppxPackage, serialized to JSON. Every query is one child
// process; nothing is cached, so results always reflect the live state.
type PowerShellProvider struct {
	// Runner executes the PowerShell child process.
	Runner *toolexec.Runner
	// Tools locates the powershell executable.
	Tools *toolchain.Toolchain
	// Log receives query diagnostics. Nil uses slog.Default().
	Log *slog.Logger
}

// NewPowerShellProvider wires a provider over the given runner and toolchain.
func NewPowerShellProvider(runner *toolexec.Runner, tools *toolchain.Toolchain) *PowerShellProvider {
	return &PowerShellProvider{Runner: runner, Tools: tools}
}

func (p *PowerShellProvider) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

// appxRecord is the JSON shape ConvertTo-Json emits for Get-AppxPackage
// results. Every field is optional; missing ones decode to zero values.
type appxRecord struct {
	Name              string `json:"Name"`
	Publisher         string `json:"Publisher"`
	Version           string `json:"Version"`
	Architecture      any    `json:"Architecture"`
	ResourceID        string `json:"ResourceId"`
	PackageFamilyName string `json:"PackageFamilyName"`
	PackageFullName   string `json:"PackageFullName"`
	InstallLocation   string `json:"InstallLocation"`
	SignatureKind     any    `json:"SignatureKind"`
	IsFramework       bool   `json:"IsFramework"`
}

// architectureNames maps the deployment service's numeric architecture
// enumeration to canonical names; ConvertTo-Json emits the raw number.
var architectureNames = map[float64]types.Architecture{
	0:  types.ArchX86,
	5:  types.ArchArm,
	9:  types.ArchX64,
	11: types.ArchNeutral,
	12: types.ArchArm64,
}

// signatureKindNames mirrors the PackageSignatureKind enumeration.
var signatureKindNames = map[float64]string{
	0: "None",
	1: "Developer",
	2: "Enterprise",
	3: "Store",
	4: "System",
}

// Lookup implements Provider.
func (p *PowerShellProvider) Lookup(ctx context.Context, name string) (*Installed, error) {
	records, err := p.query(ctx, fmt.Sprintf("Get-AppxPackage -Name %s", quotePS(name)))
	if err != nil {
		return nil, err
	}
	for i := range records {
		if strings.EqualFold(records[i].Identity.Name, name) {
			return &records[i], nil
		}
	}
	return nil, fmt.Errorf("package %q: %w", name, ErrNotInstalled)
}

// Search implements Provider. The prefix is matched with the deployment
// service's own glob support.
func (p *PowerShellProvider) Search(ctx context.Context, prefix string) ([]Installed, error) {
	return p.query(ctx, fmt.Sprintf("Get-AppxPackage -Name %s", quotePS(prefix+"*")))
}

// List implements Provider.
func (p *PowerShellProvider) List(ctx context.Context) ([]Installed, error) {
	return p.query(ctx, "Get-AppxPackage")
}

func (p *PowerShellProvider) query(ctx context.Context, command string) ([]Installed, error) {
	shell, err := p.Tools.Locate("powershell")
	if err != nil {
		return nil, &UnavailableError{Reason: "powershell not found", Cause: err}
	}

	script := command + " | Select-Object Name, Publisher, Version, Architecture, ResourceId, PackageFamilyName, PackageFullName, InstallLocation, SignatureKind, IsFramework | ConvertTo-Json -Depth 3"
	res, err := p.Runner.Run(ctx, toolexec.Invocation{
		Path: shell,
		Args: []string{"-NoProfile", "-NonInteractive", "-Command", script},
	})
	if err != nil {
		return nil, &UnavailableError{Reason: "inventory query failed", Cause: err}
	}

	installed, err := decodeAppxJSON(res.Stdout, p.logger())
	if err != nil {
		return nil, &UnavailableError{Reason: "inventory output unreadable", Cause: err}
	}
	p.logger().Debug("inventory query", "command", command, "results", len(installed))
	return installed, nil
}

// decodeAppxJSON handles ConvertTo-Json's three output shapes: empty (no
// matches), a single object, and an array.
func decodeAppxJSON(out string, log *slog.Logger) ([]Installed, error) {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return nil, nil
	}

	var raw []appxRecord
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return nil, fmt.Errorf("decoding package array: %w", err)
		}
	} else {
		var one appxRecord
		if err := json.Unmarshal([]byte(trimmed), &one); err != nil {
			return nil, fmt.Errorf("decoding package object: %w", err)
		}
		raw = []appxRecord{one}
	}

	installed := make([]Installed, 0, len(raw))
	for _, rec := range raw {
		if strings.TrimSpace(rec.Name) == "" {
			continue
		}
		installed = append(installed, rec.toInstalled(log))
	}
	return installed, nil
}

func (rec appxRecord) toInstalled(log *slog.Logger) Installed {
	ver, err := version.Parse(rec.Version)
	if err != nil {
		log.Warn("installed package reports unparsable version", "package", rec.Name, "version", rec.Version)
		ver = version.Zero
	}

	inst := Installed{
		InstallLocation: rec.InstallLocation,
		IsFramework:     rec.IsFramework,
	}
	inst.Identity.Name = rec.Name
	inst.Identity.Publisher = rec.Publisher
	inst.Identity.Version = ver
	inst.Identity.ResourceID = rec.ResourceID
	inst.Identity.Architecture = decodeArchitecture(rec.Architecture, log, rec.Name)
	inst.SignatureKind = decodeSignatureKind(rec.SignatureKind)
	return inst
}

// decodeArchitecture accepts both the numeric enumeration and the string
// form, depending on the PowerShell version that produced the JSON.
func decodeArchitecture(v any, log *slog.Logger, pkg string) types.Architecture {
	switch val := v.(type) {
	case float64:
		if arch, ok := architectureNames[val]; ok {
			return arch
		}
	case string:
		if arch, err := types.ParseArchitecture(val); err == nil {
			return arch
		}
	case nil:
		return types.ArchNeutral
	}
	log.Warn("installed package reports unknown architecture", "package", pkg, "architecture", v)
	return types.ArchNeutral
}

func decodeSignatureKind(v any) string {
	switch val := v.(type) {
	case float64:
		if kind, ok := signatureKindNames[val]; ok {
			return kind
		}
	case string:
		return val
	}
	return ""
}

// quotePS single-quotes a value for embedding in a PowerShell command,
// doubling embedded single quotes per PowerShell's quoting rules.
func quotePS(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
