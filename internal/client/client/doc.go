// Package client talks to the oauthserver HTTP API and bootstraps the CLI's
// local session database.
//
// Server failures come back as taxonomy errors from internal/common carrying
// the server's messages, so callers match them with errors.Is. A server that
// cannot be reached yields ErrUnavailable. Requests are never retried: a
// replayed sign-in or refresh would rotate the refresh token twice.
package client
