// Package api serves the time-off REST API under /api/v1. Every route except
// login and the mailbox OAuth callback requires a bearer token.
package api
