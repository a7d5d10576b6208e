package api

import "github.com/meridian-os/appscope/internal/pkginfo"

// ErrorResp is the JSON error envelope.
type ErrorResp struct {
	Detail string `json:"detail"`
}

// CheckRequest asks whether the caller may see the target package.
type CheckRequest struct {
	CallerUID     int    `json:"caller_uid"`
	TargetPackage string `json:"target_package"`
	UserID        int    `json:"user_id"`
}

// CheckResponse carries the verdict.
type CheckResponse struct {
	EventID  string `json:"event_id"`
	Filtered bool   `json:"filtered"`
}

// GrantRequest records an interaction making visible observable by
// recipient.
type GrantRequest struct {
	RecipientUID int `json:"recipient_uid"`
	VisibleUID   int `json:"visible_uid"`
}

// AddPackageRequest installs or replaces a package setting.
type AddPackageRequest struct {
	Setting pkginfo.Setting `json:"setting"`
	Replace bool            `json:"replace"`
}

// UsersRequest replaces the active user list.
type UsersRequest struct {
	Users []int `json:"users"`
}

// LoggingRequest toggles blocked-verdict logging for an app identity.
type LoggingRequest struct {
	AppID   int  `json:"app_id"`
	Enabled bool `json:"enabled"`
}

// WhitelistResponse maps user ids to the sorted app identities that may see
// the target. VisibleToAll is set (and Whitelist empty) for force-queryable
// targets.
type WhitelistResponse struct {
	VisibleToAll bool          `json:"visible_to_all"`
	Whitelist    map[int][]int `json:"whitelist,omitempty"`
}
