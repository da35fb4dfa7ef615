// Package events implements the daemon side of the push channel: a
// WebSocket endpoint served over a unix socket in the control directory.
// The daemon proactively delivers {event, data} frames to every connected
// front end; there is no request/response traffic on this channel.
package events

// Event is one push-channel frame.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}
