// Package identity is the account layer of the application: registration,
// password sign-in with lockout, email confirmation, password reset and
// change, and security-stamp validation for authentication cookies.
//
// Persistence is behind UserStore; the sqlserver and memory adapters
// implement it.
package identity
