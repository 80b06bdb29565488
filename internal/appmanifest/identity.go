// SPDX-License-Identifier: MPL-2.0

package appmanifest

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"

	"packmule/pkg/types"
	"packmule/pkg/version"
)

const (
	// UnknownName is the sentinel package name for manifests whose Identity
	// element lacks a Name attribute.
	UnknownName = "Unknown"
	// UnknownPublisher is the sentinel publisher for manifests whose
	// Identity element lacks a Publisher attribute.
	UnknownPublisher = "Unknown"
)

// Identity is a package identity as declared by a manifest's Identity
// element. Derived identifiers (publisher hash, family name, full name) are
// computed on demand from the declared fields and never stored, so a
// mutated Identity can never carry stale derivations.
type Identity struct {
	// Name is the package name, e.g. "Contoso.Demo".
	Name string
	// Publisher is the publisher distinguished name, e.g. "CN=Contoso".
	Publisher string
	// Version is the four-part package version.
	Version version.QuadVersion
	// Architecture is the processor architecture the package targets.
	Architecture types.Architecture
	// ResourceID distinguishes resource packages; usually empty.
	ResourceID string
}

// crockfordAlphabet is the base32 variant used for publisher hashes:
// digits then letters, with i, l, o, and u removed.
const crockfordAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// PublisherHash derives the 13-character publisher hash: the first 8 bytes
// of the SHA-256 digest of the publisher string encoded as UTF-16LE,
// rendered in Crockford base32 with a zero bit appended to fill the final
// character.
func (id Identity) PublisherHash() string {
	units := utf16.Encode([]rune(id.Publisher))
	buf := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[i*2:], u)
	}

	sum := sha256.Sum256(buf)
	v := binary.BigEndian.Uint64(sum[:8])

	var out [13]byte
	for i := 0; i < 12; i++ {
		shift := uint(64 - 5*(i+1))
		out[i] = crockfordAlphabet[(v>>shift)&0x1F]
	}
	// 64 bits fill 12 characters with 4 bits left over; the final character
	// encodes those 4 bits followed by a zero bit.
	out[12] = crockfordAlphabet[(v&0xF)<<1]

	return string(out[:])
}

// FamilyName returns the version-independent package family name,
// "<Name>_<PublisherHash>".
func (id Identity) FamilyName() string {
	return id.Name + "_" + id.PublisherHash()
}

// FullName returns the fully qualified package name,
// "<Name>_<Version>_<Architecture>_<ResourceID>_<PublisherHash>".
// The ResourceID segment is empty for non-resource packages, which leaves
// the conventional double underscore.
func (id Identity) FullName() string {
	return strings.Join([]string{
		id.Name,
		id.Version.String(),
		string(id.Architecture),
		id.ResourceID,
		id.PublisherHash(),
	}, "_")
}

// InstallOrderKey returns the stable key used to order packages for
// installation: "<Name>_<Version>_<Architecture>".
func (id Identity) InstallOrderKey() string {
	return fmt.Sprintf("%s_%s_%s", id.Name, id.Version, id.Architecture)
}

// IsPlaceholder reports whether the identity carries only sentinel values,
// meaning the manifest declared no usable identity attributes.
func (id Identity) IsPlaceholder() bool {
	return id.Name == UnknownName && id.Publisher == UnknownPublisher && id.Version.IsZero()
}
