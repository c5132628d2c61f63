// Package cache provides the two in-memory TTL stores the resolver relies on:
// a path cache (normalized path -> file id, hours-scale TTL because the tree
// rarely changes) and a URL cache (file id -> direct link, minutes-scale TTL
// because upstream links expire server-side). Both stores tolerate concurrent
// readers and writers from request handlers and the precache worker; expiry is
// checked lazily on read and state never survives a restart.
package cache
