// SPDX-License-Identifier: MPL-2.0

// Package issue maps failures of the backup pipeline to a catalog of
// user-facing help entries.
//
// Each entry carries a Markdown remediation text and documentation links;
// the CLI renders the entry for whatever issue a failed command classified
// itself as. ActionableError adds operation/resource context and
// suggestions to individual errors on their way up to that rendering.
package issue
