// Package sqlstore persists linked accounts and their credentials in the
// linked_accounts table through bun and go-repository-bun.
package sqlstore
