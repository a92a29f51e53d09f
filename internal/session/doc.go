// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the process-wide bearer credential.
//
// # Key Types
//
//   - Credential: the persisted token, handed to the API client as its
//     credentials source
//   - Session: bootstrap, re-authentication and login on top of a Credential
//
// # Usage
//
//	cred := session.NewCredential(store)
//	client := api.NewClient(apiCfg, cred)
//	sess := session.New(cred, client, session.Config{ReauthAttempts: 2})
//
//	user, err := sess.EnsureSession(ctx)
//
// Calls that may hit an expired credential go through Call, which signs in
// again as guest in place and retries before giving up with ErrAuthExpired:
//
//	convs, err := session.Call(ctx, sess, client.ListConversations)
package session
