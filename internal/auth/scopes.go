package auth

const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeApprovalRead  = "approvals:read"
	ScopeApprovalWrite = "approvals:write"
)

// AllScopes defines the full set of scopes used by API clients.
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopeApprovalRead,
	ScopeApprovalWrite,
}
