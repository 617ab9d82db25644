// Package capability implements the Capability & Group service
// (§4.10 of the expanded specification): a string-keyed permission
// model checked by command dispatch and admin-facing interfaces before
// allowing an operation. It supplements the component table's
// unexpanded "Capability, Group" line item.
package capability

// Capability is a single granted permission, e.g. "cmd_shutdown" or
// "seeprivarena".
type Capability string

// Group is a named set of capabilities assignable to players or to
// one of the two pseudo-groups below.
type Group string

const (
	// GroupDefault is consulted for any player with no explicit group
	// assignment.
	GroupDefault Group = "default"
	// GroupAnonymous is consulted for not-yet-authenticated connections.
	GroupAnonymous Group = "anonymous"
)
