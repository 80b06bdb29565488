// SPDX-License-Identifier: MPL-2.0

package builder

import "strings"

// failureSignature maps a substring of a packaging tool's output to an
// actionable diagnostic. The table is ordered: the first match wins, so
// more specific signatures come before generic ones.
type failureSignature struct {
	marker     string
	diagnostic string
}

var failureSignatures = []failureSignature{
	{"access is denied", "the tool was denied access to a file; re-run elevated or repackage from a scratch copy outside the system package store"},
	{"access denied", "the tool was denied access to a file; re-run elevated or repackage from a scratch copy outside the system package store"},
	{"0x80070005", "the tool was denied access to a file; re-run elevated or repackage from a scratch copy outside the system package store"},
	{"blockmap", "the package block map is inconsistent with the content; delete AppxBlockMap.xml from the source and rebuild"},
	{"appxmanifest.xml validation", "the manifest failed schema validation; check required elements and namespace declarations in AppxManifest.xml"},
	{"manifest validation", "the manifest failed schema validation; check required elements and namespace declarations in AppxManifest.xml"},
	{"0x80080204", "the manifest is malformed for packaging; validate AppxManifest.xml against the package schema"},
	{"invalid parameter", "the tool rejected a parameter; check that the source and output paths contain no unsupported characters"},
	{"parameter is incorrect", "the tool rejected a parameter; check that the source and output paths contain no unsupported characters"},
	{"cannot find the file", "a file referenced by the manifest is missing from the source tree; restore it or remove the reference"},
	{"file not found", "a file referenced by the manifest is missing from the source tree; restore it or remove the reference"},
	{"cannot find the path", "a path referenced during packaging does not exist; check the source tree layout"},
	{"path not found", "a path referenced during packaging does not exist; check the source tree layout"},
	{"already exists", "the output file already exists and the tool refused to overwrite it; remove it or choose another output path"},
}

// diagnose matches combined tool output against the known failure
// signatures. Unmatched output gets a generic diagnostic.
func diagnose(output string) string {
	lowered := strings.ToLower(output)
	for _, sig := range failureSignatures {
		if strings.Contains(lowered, sig.marker) {
			return sig.diagnostic
		}
	}
	return "the packaging tool failed for an unrecognized reason; inspect the captured output"
}
