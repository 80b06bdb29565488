// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"packmule/internal/depend"

	"github.com/spf13/cobra"
)

// newResolveCommand creates the `packmule resolve` command: report the
// dependency chain of an unpacked package.
func newResolveCommand(app *App) *cobra.Command {
	var (
		asJSON          bool
		includeOptional bool
		recursive       bool
	)

	resolveCmd := &cobra.Command{
		Use:   "resolve <package-dir>",
		Short: "Resolve and report a package's dependency chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleRunError(app, cmd, runResolve(cmd.Context(), app, args[0], asJSON, includeOptional, recursive))
		},
	}

	resolveCmd.Flags().BoolVar(&asJSON, "json", false, "emit the report as JSON")
	resolveCmd.Flags().BoolVar(&includeOptional, "include-optional", false, "include optional dependencies and framework scan")
	resolveCmd.Flags().BoolVar(&recursive, "recursive", false, "walk installed dependencies' own manifests")
	return resolveCmd
}

func runResolve(ctx context.Context, app *App, packageDir string, asJSON, includeOptional, recursive bool) error {
	cfg, err := app.loadSettings(ctx)
	if err != nil {
		return err
	}
	svc, err := app.buildServices(cfg)
	if err != nil {
		return err
	}

	opts := depend.Options{
		IncludeOptional: includeOptional || cfg.Resolve.IncludeOptional,
		SkipFrameworks:  !cfg.Resolve.IncludeFrameworks,
		Recursive:       recursive,
		MaxDepth:        cfg.Resolve.MaxDepth,
	}
	res, err := svc.Resolver.Resolve(ctx, packageDir, opts)
	if err != nil {
		return wrapServiceError(err, "resolving dependencies")
	}

	if asJSON {
		return writeJSON(app, resolveReport{
			Package:      res.Package,
			Dependencies: res.Entries,
			Warnings:     res.Warnings,
			Total:        res.Total(),
			Installed:    res.InstalledCount(),
			Missing:      res.MissingCount(),
			Frameworks:   res.FrameworkCount(),
		})
	}

	printWarnings(app, res.Warnings)
	renderResolveTable(app, res)
	return nil
}

// resolveReport is the machine-readable shape of the resolve command.
type resolveReport struct {
	Package      string         `json:"package"`
	Dependencies []depend.Entry `json:"dependencies"`
	Warnings     []string       `json:"warnings,omitempty"`
	Total        int            `json:"total"`
	Installed    int            `json:"installed"`
	Missing      int            `json:"missing"`
	Frameworks   int            `json:"frameworks"`
}

func renderResolveTable(app *App, res *depend.Result) {
	fmt.Fprintln(app.stdout, TitleStyle.Render("Dependencies of ")+PkgStyle.Render(res.Package))
	fmt.Fprintln(app.stdout)

	if res.Total() == 0 {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("No dependencies declared."))
		return
	}

	headers := []string{"NAME", "MIN VERSION", "INSTALLED", "KIND"}
	rows := make([][]string, 0, res.Total())
	for _, e := range res.Entries {
		installed := ErrorStyle.Render("missing")
		if e.Installed {
			installed = SuccessStyle.Render(e.InstalledVersion.String())
		}
		kind := "declared"
		if e.Kind == depend.KindFramework {
			kind = "framework"
		}
		if e.Optional {
			kind += " (optional)"
		}
		rows = append(rows, []string{e.Name, e.MinVersion.String(), installed, kind})
	}
	writeColumns(app, headers, rows)

	fmt.Fprintln(app.stdout)
	fmt.Fprintf(app.stdout, "%s %d total, %d installed, %d missing, %d framework(s)\n",
		SubtitleStyle.Render("Summary:"),
		res.Total(), res.InstalledCount(), res.MissingCount(), res.FrameworkCount())
}

// writeColumns renders a left-aligned column layout. Widths are computed
// on the unstyled cell text so ANSI escapes don't skew the alignment.
func writeColumns(app *App, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	plain := func(s string) string {
		// Styled cells carry escapes; measure the printable runes only.
		var b strings.Builder
		inEscape := false
		for _, r := range s {
			switch {
			case r == '\x1b':
				inEscape = true
			case inEscape:
				if r == 'm' {
					inEscape = false
				}
			default:
				b.WriteRune(r)
			}
		}
		return b.String()
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := len(plain(cell)); w > widths[i] {
				widths[i] = w
			}
		}
	}

	for i, h := range headers {
		fmt.Fprintf(app.stdout, "%-*s  ", widths[i], h)
	}
	fmt.Fprintln(app.stdout)
	for _, row := range rows {
		for i, cell := range row {
			pad := widths[i] - len(plain(cell))
			fmt.Fprint(app.stdout, cell, strings.Repeat(" ", pad+2))
		}
		fmt.Fprintln(app.stdout)
	}
}

// writeJSON pretty-prints v to stdout.
func writeJSON(app *App, v any) error {
	enc := json.NewEncoder(app.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
