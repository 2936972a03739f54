// Copyright 2025 The rescell Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package goroutine

import "runtime"

// ID returns the current goroutine ID.
//
// The ID is extracted by parsing the first line of runtime.Stack output:
//
//	goroutine 123 [running]:
//
// Returns:
//   - int64: Goroutine ID (always positive, unique among live goroutines),
//     or 0 if the header could not be parsed.
func ID() int64 {
	// We only need the first line, so 64 bytes is sufficient.
	var buf [64]byte

	// Stack trace for the current goroutine only (all=false).
	n := runtime.Stack(buf[:], false)

	return parseGID(buf[:n])
}

// parseGID extracts the goroutine ID from stack trace bytes.
//
// Expected format: "goroutine 123 [running]:..."
// Returns the numeric ID (123 in this example) or 0 if parsing fails.
//
// No string conversion of the whole buffer and no regex: the ID is parsed
// byte by byte right after the prefix.
func parseGID(buf []byte) int64 {
	const prefix = "goroutine "
	const prefixLen = len(prefix)

	if len(buf) < prefixLen {
		return 0
	}

	if string(buf[:prefixLen]) != prefix {
		return 0
	}

	var gid int64
	for i := prefixLen; i < len(buf); i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			// Non-digit terminates the ID (usually space before "[running]").
			break
		}
		gid = gid*10 + int64(c-'0')
	}

	return gid
}
