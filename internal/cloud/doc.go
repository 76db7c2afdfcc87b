// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud streams chat completions from OpenAI-compatible endpoints.
//
// It wraps github.com/sashabaranov/go-openai and works against OpenAI or any
// gateway speaking the same API (a local proxy by default).
//
// # Usage
//
//	client := cloud.NewClient(cloud.Config{BaseURL: url, APIKey: key, Model: "gpt-5"})
//	usage, err := client.StreamComplete(ctx, history, onChunk)
package cloud
