// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"os"
	"text/template"
)

// InstructionsFileName is the human-readable guide at the archive root.
const InstructionsFileName = "INSTALL_INSTRUCTIONS.md"

type (
	instructionsData struct {
		DisplayName     string
		PackageName     string
		Version         string
		PackageFile     string
		CertificateFile string
		DevelopmentMode bool
		Dependencies    []instructionsDependency
	}

	instructionsDependency struct {
		Order     int
		Name      string
		Version   string
		File      string
		Installed bool
	}
)

// instructionsTemplate renders the install guide. The troubleshooting
// codes are the four installer HRESULTs users actually hit when restoring
// a sideloaded package on a fresh machine.
var instructionsTemplate = template.Must(template.New("instructions").Funcs(template.FuncMap{
	"inc": func(n int) int { return n + 1 },
}).Parse(
	`# Installing {{.DisplayName}} {{.Version}}

This archive restores **{{.PackageName}}** and its dependencies on a
Windows 10/11 machine. Extract the whole archive to a folder first; the
paths below are relative to that folder.

## Option 1 — Automated (recommended)

Open an elevated PowerShell prompt in the extracted folder and run:

` + "```powershell" + `
{{- if .CertificateFile}}
Import-Certificate -FilePath "Certificates\{{.CertificateFile}}" -CertStoreLocation Cert:\LocalMachine\TrustedPeople
{{- end}}
{{- range .Dependencies}}
{{- if .File}}
Add-AppxPackage -Path "Packages\{{.File}}"
{{- end}}
{{- end}}
Add-AppxPackage -Path "Packages\{{.PackageFile}}"
` + "```" + `

## Option 2 — Manual

1. {{if .CertificateFile}}Double-click ` + "`Certificates\\{{.CertificateFile}}`" + ` and install it
   into **Local Machine → Trusted People**.
{{else}}No certificate ships with this archive; the package must already be
   trusted on the target machine (store-signed or developer mode).
{{end}}2. Install each dependency from ` + "`Packages\\`" + ` in the order listed below.
3. Install ` + "`Packages\\{{.PackageFile}}`" + ` last.

## Option 3 — GUI

Double-click the package files in install order. App Installer handles
the rest{{if .CertificateFile}} once the certificate from step 1 of the manual path is
trusted{{end}}.
{{if .DevelopmentMode}}
> This package was captured from a development-mode deployment. Enable
> **Developer Mode** (Settings → System → For developers) before
> installing.
{{end}}
## Install order

| # | Package | Version | File | Installed at capture time |
|---|---------|---------|------|---------------------------|
{{- range .Dependencies}}
| {{.Order}} | {{.Name}} | {{.Version}} | {{if .File}}{{.File}}{{else}}(not included){{end}} | {{if .Installed}}yes{{else}}no{{end}} |
{{- end}}
| {{len .Dependencies | inc}} | {{.PackageName}} | {{.Version}} | {{.PackageFile}} | yes |

## Troubleshooting

| Error | Meaning | Fix |
|-------|---------|-----|
| 0x800B0109 | The signing certificate is not trusted. | Install the certificate into Local Machine → Trusted People (Option 1/2 step 1). |
| 0x80073CF3 | A dependency is missing or the wrong architecture. | Install everything under Packages\ in the order above before the main package. |
| 0x80073D02 | The app (or one sharing its framework) is running. | Close the app and retry; sign out and back in if it persists. |
| 0x80073CFF | Sideloading is not enabled on this machine. | Enable sideloading or Developer Mode under Settings → For developers. |
`))

// writeInstructions renders the guide to path.
func writeInstructions(path string, data instructionsData) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := instructionsTemplate.Execute(f, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
