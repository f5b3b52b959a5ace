// Package websocket pushes live match events to browsers and bots.
//
// Clients connect to /ws?match=<id> and receive JSON messages of the form
//
//	{"match_id": "...", "event": "action", "data": {...}}
//
// for every applied action, joined tank, heart spawn, action point grant and
// match deletion. Clients do not send commands over the socket; actions go
// through the REST API.
//
// Architecture:
//
// A central Hub owns the subscriber sets. Registration, removal, broadcast
// and client counting all go through channels served by Hub.Run, so the maps
// are only ever touched by that goroutine. Each connection has a read pump
// (keepalive and disconnect detection) and a write pump (delivery and pings).
// A client whose buffer is full is dropped.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//
//	hub.BroadcastEvent(matchID, websocket.EventAction, record)
package websocket
