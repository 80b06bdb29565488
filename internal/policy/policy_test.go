// SPDX-License-Identifier: MPL-2.0

package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"packmule/internal/appmanifest"
	"packmule/pkg/version"
)

func testRecord() *appmanifest.Record {
	return &appmanifest.Record{
		Identity: appmanifest.Identity{
			Name:      "Contoso.Demo",
			Publisher: "CN=Contoso",
			Version:   version.MustParse("1.0.0.0"),
		},
		Capabilities: []string{"internetClient", "runFullTrust"},
		Dependencies: []appmanifest.Dependency{
			{Name: "Microsoft.VCLibs.140.00"},
		},
		MinOSVersion: version.MustParse("10.0.17763.0"),
	}
}

func mustEvaluator(t *testing.T, rules Rules) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(context.Background(), rules)
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}
	return e
}

func TestCheckPasses(t *testing.T) {
	t.Parallel()
	e := mustEvaluator(t, Rules{})
	violations, err := e.Check(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("empty rules produced violations: %v", violations)
	}
}

func TestCheckAllowedCapabilities(t *testing.T) {
	t.Parallel()
	e := mustEvaluator(t, Rules{AllowedCapabilities: []string{"internetClient"}})
	violations, err := e.Check(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("violations = %v, want exactly one (runFullTrust)", violations)
	}
	if violations[0].Rule != "allowed_capabilities" {
		t.Errorf("Rule = %q", violations[0].Rule)
	}
}

func TestCheckCapabilityMatchingIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	e := mustEvaluator(t, Rules{AllowedCapabilities: []string{"InternetClient", "RunFullTrust"}})
	violations, err := e.Check(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("case-differing capabilities flagged: %v", violations)
	}
}

func TestCheckBlockedPublisher(t *testing.T) {
	t.Parallel()
	e := mustEvaluator(t, Rules{BlockedPublishers: []string{"cn=contoso"}})
	violations, err := e.Check(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(violations) != 1 || violations[0].Rule != "blocked_publishers" {
		t.Errorf("violations = %v, want one blocked_publishers hit", violations)
	}
}

func TestCheckMaxDependencies(t *testing.T) {
	t.Parallel()
	rec := testRecord()
	rec.Dependencies = append(rec.Dependencies,
		appmanifest.Dependency{Name: "Dep.Two"},
		appmanifest.Dependency{Name: "Dep.Three"},
	)

	e := mustEvaluator(t, Rules{MaxDependencies: 2})
	violations, err := e.Check(context.Background(), rec)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(violations) != 1 || violations[0].Rule != "max_dependencies" {
		t.Errorf("violations = %v, want one max_dependencies hit", violations)
	}
}

func TestCheckRequireMinOS(t *testing.T) {
	t.Parallel()
	rec := testRecord()
	rec.MinOSVersion = version.Zero

	e := mustEvaluator(t, Rules{RequireMinOS: true})
	violations, err := e.Check(context.Background(), rec)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(violations) != 1 || violations[0].Rule != "require_min_os" {
		t.Errorf("violations = %v, want one require_min_os hit", violations)
	}

	// A declared minimum satisfies the rule.
	violations, err = e.Check(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("declared MinOSVersion still flagged: %v", violations)
	}
}

func TestLoadRules(t *testing.T) {
	t.Parallel()

	t.Run("valid file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "policy.yaml")
		doc := `allowed_capabilities:
  - internetClient
blocked_publishers:
  - CN=Banned
max_dependencies: 5
require_min_os: true
`
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
		rules, err := LoadRules(path)
		if err != nil {
			t.Fatalf("LoadRules() error = %v", err)
		}
		if len(rules.AllowedCapabilities) != 1 || rules.MaxDependencies != 5 || !rules.RequireMinOS {
			t.Errorf("rules = %+v", rules)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		if _, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte(":\n  - ["), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadRules(path); err == nil {
			t.Error("expected error")
		}
	})
}
