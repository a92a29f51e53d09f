// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversations to files.
//
// # Supported Formats
//
//   - Markdown: YAML frontmatter followed by the messages
//   - JSON: the conversation as a single document
//   - HTML: a standalone page with embedded CSS
//
// # Usage
//
//	doc := export.FromConversation(conv, "llama3")
//	exp, err := export.New("md", nil)
//	path, err := export.ToFile(doc, exp, ".")
package export
