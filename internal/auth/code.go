// Package auth implements the Authentication Pipeline (§4.6):
// IAuth.authenticate(request), chainable authenticators discovered
// through the broker, pooled requests, and the billing fallback
// contract.
package auth

// Code is an authentication result code (§4.6): three classes —
// permits-entry, fail-with-specific-reason, and CustomText, which
// carries an operator-supplied message.
type Code int

const (
	CodeOK Code = iota
	CodeSpecOnly
	CodeNoScores
	CodeAskDemographics

	CodeBadPassword
	CodeNoPermission
	CodeServerBusy
	CodeBannedName
	CodeNoNewConnections
	CodeBadVersion
	CodeAccountDisabled

	CodeCustomText
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeSpecOnly:
		return "SpecOnly"
	case CodeNoScores:
		return "NoScores"
	case CodeAskDemographics:
		return "AskDemographics"
	case CodeBadPassword:
		return "BadPassword"
	case CodeNoPermission:
		return "NoPermission"
	case CodeServerBusy:
		return "ServerBusy"
	case CodeBannedName:
		return "BannedName"
	case CodeNoNewConnections:
		return "NoNewConnections"
	case CodeBadVersion:
		return "BadVersion"
	case CodeAccountDisabled:
		return "AccountDisabled"
	case CodeCustomText:
		return "CustomText"
	default:
		return "Unknown"
	}
}

// PermitsEntry reports whether c is one of the permits-entry codes
// (§4.6): OK, SpecOnly, NoScores, AskDemographics.
func (c Code) PermitsEntry() bool {
	switch c {
	case CodeOK, CodeSpecOnly, CodeNoScores, CodeAskDemographics:
		return true
	default:
		return false
	}
}
