// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render produces the HTML fragments pushed to live viewers.
//
// Streaming updates carry only a message's content region, escaped. The
// final bubble of a completed reply is rendered as markdown with goldmark
// (raw HTML in model output is dropped).
//
// # Usage
//
//	r := render.New()
//	html := r.Content(accumulated)
//	target := render.ContentTarget(msg.ID)
package render
