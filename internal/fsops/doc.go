// Package fsops implements the filesystem executor: the only code in drover
// that is allowed to mutate the filesystem.
//
// Responsibilities:
//   - Path scope enforcement: every source and destination must normalize to
//     a path equal to, or strictly under, a configured allow-listed root.
//   - Deterministic collision resolution: "append-1" renaming (name-1.ext,
//     name-2.ext, ...) that never creates files as a side effect.
//   - Move primitives: atomic rename on the same volume; copy-then-quarantine
//     across volumes (atomic rename is unavailable across volumes, and a
//     delete-after-copy would be unsafe on partial failure).
//   - Atomic file writes: temp file in the target directory promoted into
//     place with os.Rename, the crash-consistency primitive the job store
//     and manifest writers build on.
//
// All checks operate on a case-folded, cleaned, absolute normal form so that
// scope decisions are stable across callers on case-insensitive filesystems.
package fsops
