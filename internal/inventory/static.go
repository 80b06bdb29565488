// SPDX-License-Identifier: MPL-2.0

package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// StaticProvider serves a fixed set of packages. It backs tests, dry runs,
// and every platform where the deployment service does not exist.
type StaticProvider struct {
	mu       sync.RWMutex
	packages map[string]Installed // keyed by lowercase name
}

// NewStaticProvider builds a provider over the given packages. Later
// entries with the same name replace earlier ones.
func NewStaticProvider(packages ...Installed) *StaticProvider {
	p := &StaticProvider{packages: make(map[string]Installed, len(packages))}
	for _, pkg := range packages {
		p.Add(pkg)
	}
	return p
}

// Add registers or replaces a package.
func (p *StaticProvider) Add(pkg Installed) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.packages[strings.ToLower(pkg.Identity.Name)] = pkg
}

// Lookup implements Provider.
func (p *StaticProvider) Lookup(_ context.Context, name string) (*Installed, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if pkg, ok := p.packages[strings.ToLower(name)]; ok {
		return &pkg, nil
	}
	return nil, fmt.Errorf("package %q: %w", name, ErrNotInstalled)
}

// Search implements Provider. Results are name-sorted for determinism.
func (p *StaticProvider) Search(_ context.Context, prefix string) ([]Installed, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	lower := strings.ToLower(prefix)
	var matches []Installed
	for key, pkg := range p.packages {
		if strings.HasPrefix(key, lower) {
			matches = append(matches, pkg)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Identity.Name < matches[j].Identity.Name
	})
	return matches, nil
}

// List implements Provider. Results are name-sorted for determinism.
func (p *StaticProvider) List(_ context.Context) ([]Installed, error) {
	return p.Search(context.Background(), "")
}
