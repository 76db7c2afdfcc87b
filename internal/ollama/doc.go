// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// The client streams chat completions from /api/chat (newline-delimited
// JSON) and adapts them to the completion pipeline's model interface.
//
// # Key Types
//
//   - Client: HTTP client for Ollama API communication
//   - StreamReader: NDJSON stream parser
//   - ClientError: Typed error with ErrorType classification
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{DefaultModel: "llama3.2"})
//	usage, err := client.StreamComplete(ctx, history, func(c model.StreamChunk) error {
//	    fmt.Print(c.Content)
//	    return nil
//	})
package ollama
