// SPDX-License-Identifier: MPL-2.0

// Package policy evaluates package manifests against an embedded Rego
// policy before they are archived. The policy itself is fixed; what it
// enforces is driven by a YAML rules file (allowed capabilities, blocked
// publishers, dependency ceiling, minimum-OS requirement). Violations are
// reported, not enforced: the caller decides whether they warn or block.
package policy

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	"gopkg.in/yaml.v3"

	"packmule/internal/appmanifest"
)

//go:embed policy.rego
var policySource string

// ErrPolicyViolated is wrapped by ViolationsError, for callers that treat
// violations as blocking.
var ErrPolicyViolated = errors.New("policy violated")

// ViolationsError turns a non-empty violation set into an error. Only
// strict callers construct it; the default posture reports violations as
// warnings.
type ViolationsError struct {
	Violations []Violation
}

// Error implements the error interface.
func (e *ViolationsError) Error() string {
	return fmt.Sprintf("%d policy violation(s)", len(e.Violations))
}

// Unwrap returns ErrPolicyViolated for errors.Is.
func (e *ViolationsError) Unwrap() error { return ErrPolicyViolated }

const denyQuery = "data.packmule.policy.deny"

type (
	// Rules is the YAML-configurable half of the policy.
	Rules struct {
		// AllowedCapabilities whitelists capability names; empty allows
		// everything.
		AllowedCapabilities []string `yaml:"allowed_capabilities" json:"allowed_capabilities"`
		// BlockedPublishers lists publisher distinguished names that must
		// not be archived.
		BlockedPublishers []string `yaml:"blocked_publishers" json:"blocked_publishers"`
		// MaxDependencies caps the declared dependency count; zero means
		// unlimited.
		MaxDependencies int `yaml:"max_dependencies" json:"max_dependencies"`
		// RequireMinOS rejects packages that declare no minimum OS version.
		RequireMinOS bool `yaml:"require_min_os" json:"require_min_os"`
	}

	// Violation is one failed policy rule.
	Violation struct {
		// Rule names the rules-file knob that produced the violation.
		Rule string
		// Message is the human-readable explanation.
		Message string
	}

	// Evaluator runs the embedded policy. Build one with NewEvaluator;
	// the prepared query is reused across Check calls.
	Evaluator struct {
		rules    Rules
		prepared rego.PreparedEvalQuery
		log      *slog.Logger
	}
)

// String renders the violation as "rule: message".
func (v Violation) String() string { return v.Rule + ": " + v.Message }

// LoadRules reads a YAML rules file.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("reading policy rules: %w", err)
	}
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parsing policy rules %q: %w", path, err)
	}
	return rules, nil
}

// NewEvaluator compiles the embedded policy for the given rules.
func NewEvaluator(ctx context.Context, rules Rules) (*Evaluator, error) {
	prepared, err := rego.New(
		rego.Query(denyQuery),
		rego.Module("policy.rego", policySource),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compiling capability policy: %w", err)
	}
	return &Evaluator{rules: rules, prepared: prepared, log: slog.Default()}, nil
}

// SetLogger replaces the evaluator's logger.
func (e *Evaluator) SetLogger(log *slog.Logger) {
	if log != nil {
		e.log = log
	}
}

// Check evaluates one manifest record. An empty slice means the record
// passes; a non-nil error means the evaluation itself failed.
func (e *Evaluator) Check(ctx context.Context, rec *appmanifest.Record) ([]Violation, error) {
	input := e.buildInput(rec)

	rs, err := e.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluating capability policy: %w", err)
	}

	violations := decodeViolations(rs)
	e.log.Debug("policy evaluated",
		"package", rec.Identity.Name, "violations", len(violations))
	return violations, nil
}

// buildInput flattens the record into the document shape policy.rego
// expects. Dependency entries reduce to their names; the rules travel in
// the same document so the policy stays a pure function of its input.
func (e *Evaluator) buildInput(rec *appmanifest.Record) map[string]any {
	depNames := make([]string, 0, len(rec.Dependencies))
	for _, dep := range rec.Dependencies {
		depNames = append(depNames, dep.Name)
	}

	caps := rec.Capabilities
	if caps == nil {
		caps = []string{}
	}

	return map[string]any{
		"name":           rec.Identity.Name,
		"publisher":      rec.Identity.Publisher,
		"capabilities":   caps,
		"dependencies":   depNames,
		"min_os_version": rec.MinOSVersion.String(),
		"rules": map[string]any{
			"allowed_capabilities": orEmpty(e.rules.AllowedCapabilities),
			"blocked_publishers":   orEmpty(e.rules.BlockedPublishers),
			"max_dependencies":     e.rules.MaxDependencies,
			"require_min_os":       e.rules.RequireMinOS,
		},
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// decodeViolations unpacks the deny set from the result set. Entries the
// policy produced in an unexpected shape degrade to a generic violation
// rather than being dropped.
func decodeViolations(rs rego.ResultSet) []Violation {
	var violations []Violation
	for _, result := range rs {
		for _, expr := range result.Expressions {
			entries, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, entry := range entries {
				fields, ok := entry.(map[string]any)
				if !ok {
					violations = append(violations, Violation{Rule: "policy", Message: fmt.Sprint(entry)})
					continue
				}
				v := Violation{Rule: "policy"}
				if rule, ok := fields["rule"].(string); ok && strings.TrimSpace(rule) != "" {
					v.Rule = rule
				}
				if msg, ok := fields["message"].(string); ok {
					v.Message = msg
				}
				violations = append(violations, v)
			}
		}
	}
	return violations
}
