// Package value provides the tagged value variant used to hold catalog
// records.
//
// Records arrive from the portal API as arbitrary JSON. Every field is decoded
// into one of six variants: Null, String, Number, Bool, Array or Object. The
// change-detection engine compares these variants structurally instead of
// sniffing Go types at runtime.
//
// Key constraints:
//   - Numbers are never converted to float64; equality goes through decimal
//     arithmetic so 10, 10.0 and 1e1 compare equal
//   - A missing value (nil) and an explicit Null are interchangeable
//   - Object iteration uses SortedKeys for deterministic output
//   - MarshalCanonical (NFC strings, normalized numbers) is used for hashing
//     only; Marshal keeps the source text and is used for persistence and
//     for rendering composite values into log cells
package value
