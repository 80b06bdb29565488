// SPDX-License-Identifier: MPL-2.0

package appmanifest

import (
	"strings"
	"testing"

	"packmule/pkg/types"
	"packmule/pkg/version"
)

func demoIdentity() Identity {
	return Identity{
		Name:         "Contoso.Demo",
		Publisher:    "CN=Contoso Ltd, O=Contoso, C=US",
		Version:      version.MustParse("1.2.3.4"),
		Architecture: types.ArchX64,
	}
}

func TestPublisherHash(t *testing.T) {
	t.Parallel()

	id := demoIdentity()
	hash := id.PublisherHash()

	if len(hash) != 13 {
		t.Fatalf("PublisherHash() = %q, want 13 characters", hash)
	}
	for _, r := range hash {
		if !strings.ContainsRune(crockfordAlphabet, r) {
			t.Errorf("PublisherHash() = %q contains %q, outside the base32 alphabet", hash, r)
		}
	}

	// Deterministic per publisher, independent of every other field.
	other := id
	other.Name = "Different.Name"
	other.Version = version.MustParse("9.9.9.9")
	if got := other.PublisherHash(); got != hash {
		t.Errorf("PublisherHash() = %q after changing non-publisher fields, want %q", got, hash)
	}

	changed := id
	changed.Publisher = "CN=Someone Else"
	if got := changed.PublisherHash(); got == hash {
		t.Error("PublisherHash() unchanged after changing the publisher")
	}
}

func TestDerivedNames(t *testing.T) {
	t.Parallel()

	id := demoIdentity()
	hash := id.PublisherHash()

	if want := "Contoso.Demo_" + hash; id.FamilyName() != want {
		t.Errorf("FamilyName() = %q, want %q", id.FamilyName(), want)
	}

	// Empty ResourceID leaves the conventional double underscore.
	if want := "Contoso.Demo_1.2.3.4_x64__" + hash; id.FullName() != want {
		t.Errorf("FullName() = %q, want %q", id.FullName(), want)
	}

	id.ResourceID = "split.scale-100"
	if want := "Contoso.Demo_1.2.3.4_x64_split.scale-100_" + hash; id.FullName() != want {
		t.Errorf("FullName() = %q, want %q", id.FullName(), want)
	}

	if want := "Contoso.Demo_1.2.3.4_x64"; id.InstallOrderKey() != want {
		t.Errorf("InstallOrderKey() = %q, want %q", id.InstallOrderKey(), want)
	}
}

func TestIsPlaceholder(t *testing.T) {
	t.Parallel()

	placeholder := Identity{Name: UnknownName, Publisher: UnknownPublisher}
	if !placeholder.IsPlaceholder() {
		t.Error("IsPlaceholder() = false for all-sentinel identity")
	}
	if demoIdentity().IsPlaceholder() {
		t.Error("IsPlaceholder() = true for a real identity")
	}
	partial := Identity{Name: "Real.Name", Publisher: UnknownPublisher}
	if partial.IsPlaceholder() {
		t.Error("IsPlaceholder() = true when the name is declared")
	}
}
