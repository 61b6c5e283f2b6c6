// Package diff implements the change-detection engine.
//
// Given the previous and the current snapshot of the catalog, the engine
//
//   - aligns records by id into arrived, departed and common sets,
//   - emits an arrival (aparece) or departure (desaparece) event for every
//     id present in only one snapshot,
//   - compares every field shared by both snapshots for every common id,
//     dispatching on the declared field kind: scalar fields are compared as
//     a whole, composite fields are walked leaf by leaf.
//
// The engine is pure and single-threaded. It never mutates its inputs and
// never fails as a whole: a comparison that goes wrong is recorded as a
// Failure for that (id, field) pair and the rest of the run continues.
//
// Labels (entidad, nombre) on modification records always come from the
// previous snapshot, so a record whose name is itself changing keeps the
// label it had when the change was detected.
package diff
