// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small string and file helpers.
//
// # Key Functions
//
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - Preview: Single-line normalised preview used for titles
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// # Usage
//
//	title := util.Preview(firstMessage, 50)
//	err := util.AtomicWriteFile(path, data, 0644)
package util
