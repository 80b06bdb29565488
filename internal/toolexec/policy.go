// SPDX-License-Identifier: MPL-2.0

package toolexec

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"packmule/pkg/types"
)

// ExitPolicy decides which exit codes count as success for one tool.
// Precedence: an explicit SuccessCodes set wins, then a SuccessBelow
// threshold, then the zero-is-success default. A killed process is never a
// success.
type ExitPolicy struct {
	// SuccessCodes is an explicit allow set.
	SuccessCodes []int

	// SuccessBelow treats every code strictly below it as success. Robocopy
	// uses 8: codes 0-7 report copy outcomes, 8 and up report errors.
	SuccessBelow int
}

// Allows reports whether code satisfies the policy.
func (p ExitPolicy) Allows(code types.ExitCode) bool {
	if code.IsKilled() {
		return false
	}
	if len(p.SuccessCodes) > 0 {
		for _, ok := range p.SuccessCodes {
			if int(code) == ok {
				return true
			}
		}
		return false
	}
	if p.SuccessBelow > 0 {
		return int(code) < p.SuccessBelow
	}
	return code.IsSuccess()
}

// PolicyRegistry maps tool names to exit policies. Lookup keys are
// normalized (lowercase, .exe stripped) so "Robocopy.exe" and "robocopy"
// share one entry. Safe for concurrent use.
type PolicyRegistry struct {
	mu       sync.RWMutex
	policies map[string]ExitPolicy
}

// NewPolicyRegistry returns a registry seeded with the built-in defaults.
func NewPolicyRegistry() *PolicyRegistry {
	r := &PolicyRegistry{policies: make(map[string]ExitPolicy)}
	// Robocopy reports what it copied through codes 0-7; only 8+ are errors.
	r.Set("robocopy", ExitPolicy{SuccessBelow: 8})
	return r
}

// Set registers or replaces the policy for a tool.
func (r *PolicyRegistry) Set(tool string, p ExitPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[normalizeToolName(tool)] = p
}

// For returns the policy for a tool, falling back to the zero policy
// (exit 0 is the only success) when none is registered.
func (r *PolicyRegistry) For(tool string) ExitPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policies[normalizeToolName(tool)]
}

// policyFile is the on-disk shape of a policy override file:
//
//	[tools.robocopy]
//	success_below = 8
//
//	[tools.flaky-tool]
//	success_codes = [0, 2]
type policyFile struct {
	Tools map[string]policySpec `toml:"tools"`
}

type policySpec struct {
	SuccessCodes []int `toml:"success_codes"`
	SuccessBelow int   `toml:"success_below"`
}

// LoadFile merges policies from a TOML file into the registry. File entries
// replace built-ins with the same name.
func (r *PolicyRegistry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading exit policy file: %w", err)
	}

	var pf policyFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parsing exit policy file %q: %w", path, err)
	}

	for tool, spec := range pf.Tools {
		r.Set(tool, ExitPolicy{SuccessCodes: spec.SuccessCodes, SuccessBelow: spec.SuccessBelow})
	}
	return nil
}

// normalizeToolName lowers the case and strips a trailing .exe so policies
// match however the tool was addressed.
func normalizeToolName(tool string) string {
	return strings.TrimSuffix(strings.ToLower(tool), ".exe")
}
