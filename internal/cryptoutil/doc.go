// Package cryptoutil holds the small hashing helpers shared by the content
// store and the admin authenticator.
package cryptoutil
