// Package providers contains the token endpoint plumbing shared by the
// provider refresh strategies: request timeouts, response parsing, remote
// error reporting and expiry resolution.
package providers
