// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"packmule/internal/appmanifest"
	"packmule/internal/archive"
	"packmule/internal/builder"
	"packmule/internal/hookrun"
	"packmule/internal/inventory"
	"packmule/internal/issue"
	"packmule/internal/policy"
	"packmule/internal/toolchain"
	"packmule/internal/toolexec"
	"packmule/pkg/types"

	"github.com/spf13/cobra"
)

// ServiceError is an error that carries optional rendering information for
// the CLI layer. When the CLI layer receives a ServiceError, it renders the
// styled error message (if present) before formatting the underlying error.
// Always create via newServiceError to enforce the Err-must-be-non-nil invariant.
type ServiceError struct {
	// Err is the underlying error (must not be nil).
	Err error
	// IssueID is the optional issue catalog ID for rendering help text.
	IssueID issue.Id
	// StyledMessage is the optional pre-rendered styled error text.
	StyledMessage string
}

// newServiceError creates a ServiceError with a nil-Err panic guard.
// All construction sites must use this instead of struct literals.
func newServiceError(err error, issueID issue.Id, styledMessage string) *ServiceError {
	if err == nil {
		panic("ServiceError: Err must not be nil")
	}
	return &ServiceError{
		Err:           err,
		IssueID:       issueID,
		StyledMessage: styledMessage,
	}
}

// Error implements the error interface.
func (e *ServiceError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *ServiceError) Unwrap() error { return e.Err }

// classifyError maps domain error sentinels onto the issue catalog. Zero
// means no catalog entry applies.
func classifyError(err error) issue.Id {
	switch {
	case errors.Is(err, appmanifest.ErrManifestNotFound):
		return issue.ManifestNotFoundId
	case errors.Is(err, appmanifest.ErrIdentityMissing):
		return issue.IdentityMissingId
	case errors.Is(err, appmanifest.ErrInvalidDocument),
		errors.Is(err, builder.ErrManifestInvalid):
		return issue.ManifestInvalidId
	case errors.Is(err, inventory.ErrNotInstalled):
		return issue.PackageNotInstalledId
	case errors.Is(err, inventory.ErrUnavailable):
		return issue.InventoryUnavailableId
	case errors.Is(err, toolchain.ErrToolNotFound),
		errors.Is(err, toolexec.ErrExecutableNotFound):
		return issue.ToolNotFoundId
	case errors.Is(err, toolexec.ErrTimeout):
		return issue.ToolTimeoutId
	case errors.Is(err, builder.ErrInsufficientDiskSpace):
		return issue.DiskSpaceId
	case errors.Is(err, builder.ErrSourceCopyFailed):
		return issue.RestrictedSourceId
	case errors.Is(err, builder.ErrBuildToolFailed):
		return issue.BuildFailedId
	case errors.Is(err, toolexec.ErrToolFailed):
		return issue.ToolFailedId
	case errors.Is(err, archive.ErrNoPackages):
		return issue.ArchiveEmptyId
	case errors.Is(err, policy.ErrPolicyViolated):
		return issue.PolicyViolationId
	case errors.Is(err, hookrun.ErrHookFailed),
		errors.Is(err, hookrun.ErrRequirementNotMet):
		return issue.HookFailedId
	case errors.Is(err, fs.ErrPermission):
		return issue.PermissionDeniedId
	default:
		return 0
	}
}

// wrapServiceError classifies err and attaches the styled one-line message
// the CLI prints before any catalog help.
func wrapServiceError(err error, operation string) *ServiceError {
	styled := ErrorStyle.Render("Error: ") + operation + ": " + err.Error() + "\n"
	return newServiceError(err, classifyError(err), styled)
}

// renderServiceError renders a ServiceError in the CLI layer.
// It prints any styled message first, then the optional issue help section.
func renderServiceError(stderr io.Writer, svcErr *ServiceError) {
	if svcErr == nil {
		return
	}

	if svcErr.StyledMessage != "" {
		fmt.Fprint(stderr, svcErr.StyledMessage)
	}

	if svcErr.IssueID == 0 {
		return
	}

	if catalogEntry := issue.Get(svcErr.IssueID); catalogEntry != nil {
		rendered, renderErr := catalogEntry.Render("dark")
		if renderErr != nil {
			slog.Warn("failed to render issue catalog entry", "issueID", svcErr.IssueID, "error", renderErr)
		} else {
			fmt.Fprint(stderr, rendered)
		}
	}
}

// exitCodeFor picks the process exit code for a classified failure: when a
// typed error in the chain carries the failing tool's own exit code, that
// code passes through; everything else exits 1.
func exitCodeFor(err error) types.ExitCode {
	var buildErr *builder.BuildToolError
	if errors.As(err, &buildErr) && buildErr.ExitCode > 0 {
		return buildErr.ExitCode
	}
	var toolErr *toolexec.ToolError
	if errors.As(err, &toolErr) && toolErr.ExitCode > 0 {
		return toolErr.ExitCode
	}
	return 1
}

// handleRunError finishes a command handler's error path. ServiceErrors
// render their styled message and catalog help here and come back as a
// typed ExitError so Execute passes the code through; anything else is
// left for cobra's default printing.
func handleRunError(app *App, cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return err
	}
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	renderServiceError(app.stderr, svcErr)
	return &ExitError{Code: exitCodeFor(svcErr), Err: svcErr}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
