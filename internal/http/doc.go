// Package http exposes the agenda bot's command seam to the hosting chat
// integration.
//
// The router exposes the following endpoints:
//   - POST /rooms/{id}/commands: executes one parsed agenda intent. Body:
//     {"command","actor":{"user_id","can_moderate","can_add_items"},...} with
//     command specific fields documented on commandRequest in
//     command_handler.go. Responses echo the touched items.
//   - GET /rooms/{id}/agenda: returns the room's agenda in position order as
//     a list of itemDTO payloads.
//   - GET /rooms/{id}/config: returns the room's effective configuration with
//     per-section source attribution.
//   - POST /rooms/{id}/events: accepts lifecycle signals from the host, today
//     only {"type":"call_ended"}.
//
// Authentication lives in the hosting integration; requests arrive with
// capabilities already resolved on the actor payload.
package http
