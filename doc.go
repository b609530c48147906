// Package membership is a pluggable credential and role store backing a
// host authentication/authorization contract. The host loads the providers
// with an explicit configuration and an open Bun database handle; this
// package answers "is this credential valid" and "what roles does this
// principal have", and owns the persistence of both answers.
//
// Accounts and roles:
//   - Account and Role rows are partitioned by an application scope; names
//     are unique only within a scope. MembershipProvider implements the
//     account half of the host contract (validate, create, password
//     lifecycle, paged search), RoleProvider the role/membership half.
//
// Change tracking:
//   - Every mutator on a persisted entity records a Field tag into the
//     owning UnitOfWork's change set. A top-level commit writes only the
//     recorded columns (plus the key); a nested commit merges its change
//     set into the parent scope instead of touching storage.
//
// Credential encoding:
//   - PasswordCodec encodes stored secrets as cleartext, reversible
//     AES-GCM ciphertext, or a one-way keyed hash, chosen once at
//     configuration time. Hashed secrets are never retrievable.
//
// Lockout:
//   - LockoutPolicy maintains independent sliding failure windows for
//     password and secret-answer attempts and trips the account's lockout
//     flag when a window accumulates too many failures. Only an explicit
//     unlock clears the flag.
package membership
