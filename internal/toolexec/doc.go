// SPDX-License-Identifier: MPL-2.0

// Package toolexec runs external tools safely: both output streams are
// drained concurrently into capped buffers so a chatty tool can never
// deadlock or exhaust memory, every run carries a hard timeout that kills
// the whole process tree, and exit codes are judged by per-tool policies
// (robocopy's below-8 convention ships as a default).
//
// Callers describe a run with an Invocation and always get a fully
// populated Result back, even when an error is returned alongside it.
package toolexec
