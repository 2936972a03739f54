// Package borrow implements the borrow bookkeeping shared by both cell
// strategies.
//
// A cell allocation is either free, shared by any number of readers, or held
// exclusively by one writer:
//
//	Flag == 0   free
//	Flag  > 0   Flag readers
//	Flag == -1  one writer
//
// The single-owner strategy uses Flag directly as its borrow state. The
// cross-goroutine strategy keeps its state inside a lock and only uses the
// types here for errors, state snapshots and diagnostics.
//
// Diagnostics (enabled per cell by the trackBorrows option):
//   - Tracker records the goroutine and stack of every live guard
//   - ConflictError and WaitError name the guard that caused the failure
//   - Print writes a deduplicated report in the race detector's format
package borrow
