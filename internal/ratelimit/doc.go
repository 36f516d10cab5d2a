// Package ratelimit is per-IP token bucket middleware for a single instance.
//
// It limits one client flooding the server and the admin login from being
// brute forced. State is in memory and not shared between instances, so it
// does nothing against distributed traffic; put a CDN or WAF in front for
// that.
package ratelimit
