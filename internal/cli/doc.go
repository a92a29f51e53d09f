// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the pawtui command tree.
//
// Running pawtui with no subcommand starts the terminal dashboard. The
// subcommands cover the same backend operations for scripts and line-mode
// use:
//
//	pawtui chat                      line-mode chat with history
//	pawtui ask "question"            one turn, streamed to stdout
//	pawtui conversations list|show|rm
//	pawtui memory list|add|rm|search
//	pawtui models
//	pawtui tools list|run
//	pawtui whoami | login | logout
//	pawtui config show|get|set|path
//	pawtui api-url [url|--clear]
//
// List commands print a table by default; -o json and -o yaml are available
// for scripting.
package cli
