// Copyright 2025 The rescell Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package goroutine identifies the calling goroutine.
//
// The single-owner cell strategy is only sound while every handle to an
// allocation stays on one goroutine. Go does not expose goroutine identity,
// so this package recovers it from the runtime's own stack header. The ID is
// used for two things:
//   - Owner confinement (config checkOwner): a cell remembers the goroutine
//     that created it and rejects calls from any other goroutine.
//   - Borrow reports: every tracked borrow records who took it.
//
// Performance:
//   - ID(): ~1500ns (runtime.Stack parsing), so callers only use it when a
//     diagnostics option asks for it.
package goroutine
