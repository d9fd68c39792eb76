// Package bohttp carries benor traffic over plain HTTP.
//
// Every node runs an [HTTPServer] with the routes
// GET /status, POST /message, GET /start, GET /stop, and GET /getState.
// A [Client] talks to any number of those servers,
// over TCP or over Unix domain sockets,
// and satisfies [bop2p.PeerSender] so it can back a [bop2p.FanOut].
package bohttp
