// Package server hosts the Fiber HTTP surface of the 302 service: the
// download redirect routes, the web-admin API (session login, drive login
// including the QR flow, config view/save, cache admin) and the request-id
// middleware. Handlers stay thin; all resolution and caching logic lives in
// the resolver package and is injected through small interfaces so tests can
// run against fakes.
package server
