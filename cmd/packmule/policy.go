// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"packmule/internal/policy"

	"github.com/spf13/cobra"
)

// newPolicyCommand creates the `packmule policy` command: evaluate a
// package against the configured rules.
func newPolicyCommand(app *App) *cobra.Command {
	var (
		strict    bool
		rulesFile string
	)

	policyCmd := &cobra.Command{
		Use:   "policy <package-dir>",
		Short: "Evaluate a package against the configured policy rules",
		Long: `Evaluate a package manifest against the policy rules.

Rules come from the YAML file named by policy.rules_file (or --rules).
Violations are warnings by default; with --strict they fail the command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleRunError(app, cmd, runPolicy(cmd.Context(), app, args[0], rulesFile, strict))
		},
	}

	policyCmd.Flags().BoolVar(&strict, "strict", false, "treat violations as errors")
	policyCmd.Flags().StringVar(&rulesFile, "rules", "", "rules file (overrides policy.rules_file)")
	return policyCmd
}

func runPolicy(ctx context.Context, app *App, packageDir, rulesFile string, strict bool) error {
	cfg, err := app.loadSettings(ctx)
	if err != nil {
		return err
	}
	svc, err := app.buildServices(cfg)
	if err != nil {
		return err
	}

	if rulesFile == "" {
		rulesFile = cfg.Policy.RulesFile.String()
	}
	violations, err := evaluatePolicy(ctx, svc, app, packageDir, rulesFile)
	if err != nil {
		return wrapServiceError(err, "evaluating policy")
	}

	if len(violations) == 0 {
		fmt.Fprintln(app.stdout, SuccessStyle.Render("No policy violations."))
		return nil
	}

	for _, v := range violations {
		fmt.Fprintln(app.stderr, WarningStyle.Render("Violation: ")+v.String())
	}
	if strict {
		return wrapServiceError(&policy.ViolationsError{Violations: violations}, "policy check")
	}
	fmt.Fprintf(app.stdout, "%d violation(s); re-run with --strict to fail on them\n", len(violations))
	return nil
}

// evaluatePolicy loads the rules, prepares the embedded policy, and checks
// the package at packageDir.
func evaluatePolicy(ctx context.Context, svc *services, app *App, packageDir, rulesFile string) ([]policy.Violation, error) {
	var (
		rules policy.Rules
		err   error
	)
	if rulesFile != "" {
		rules, err = policy.LoadRules(rulesFile)
		if err != nil {
			return nil, err
		}
	}

	eval, err := policy.NewEvaluator(ctx, rules)
	if err != nil {
		return nil, err
	}
	eval.SetLogger(app.Log)

	rec, err := svc.Reader.ReadDir(packageDir)
	if err != nil {
		return nil, err
	}
	return eval.Check(ctx, rec)
}
