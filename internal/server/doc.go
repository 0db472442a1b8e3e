// Package server exposes the moderation lifecycle over HTTP.
//
// Routes are mounted on a chi router. Handlers decode a small JSON body, call the
// ledger, queue or reconciler and encode the result; sentinel errors are mapped
// to status codes by [StatusFor].
//
// GET /rooms/{room}/events upgrades to a websocket and forwards the room's Redis
// event channel until either side goes away.
//
// [Middleware] wraps handlers in the order given to [Server.Router].
package server
