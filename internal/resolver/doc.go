// Package resolver implements the path-to-id resolution and download-link
// lookup at the heart of the 302 service. A request path is walked segment by
// segment against the remote directory tree with a long-lived path cache in
// front; resolved file ids are exchanged for direct download URLs through a
// three-endpoint fallback chain with a short-lived URL cache. Every successful
// resolution also kicks off a single-flight background warm-up of sibling
// links so that sequential playback of a directory rarely waits on upstream.
package resolver
