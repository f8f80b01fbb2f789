// Package cli provides the interactive command-line client for the
// authorization server.
//
// It wires configuration, the local session store, the HTTP API client and an
// interactive REPL. On start the previously stored session is restored and a
// background watcher reports whether the server is reachable.
//
// Commands:
//   - register, login, logout
//   - refresh (rotates the stored refresh token)
//   - status (shows the current session)
//   - client-token (client-credentials grant for a service client)
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
