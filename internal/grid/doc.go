// Package grid provides the core data model for gridsync.
//
// This package contains type definitions and the merge-preserve fold only.
// All other internal packages import grid; grid imports nothing internal.
// This ensures the data model remains the foundational layer with no
// circular dependencies.
//
// Key design constraints:
//   - A field is either unset or holds a string value; unset and "" are
//     distinct states and must never be conflated.
//   - Keys are NFC-normalized on entry so Unicode-equivalent spellings of
//     the same key address the same row.
//   - The field set is fixed and ordered (sender, subject, body, tags,
//     summary, location); schema evolution is out of scope.
//   - JSON form of a field: unset -> null, set -> string.
package grid
