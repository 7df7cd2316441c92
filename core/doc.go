// Package core contains the credential lifecycle domain: linked-account
// credentials, the expiry policy, the refresh orchestrator and the
// account-linking rules. Provider strategies and storage adapters depend on
// this package; core must not depend on provider-specific or storage-specific
// adapters.
package core
