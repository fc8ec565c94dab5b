package appsec

import (
	"encoding/json"

	"github.com/tmarces/appsec/routeauth"
)

// Claims is the typed claims bundle carried by an authenticated request.
// The field set is fixed; the platform's controllers historically passed
// these around as an untyped string map, keyed as in ClaimsFromMap.
type Claims struct {
	UserID   string
	AppID    string
	Username string
	UserType string
	DeviceID string
	Groups   []string
	// Password carries the encrypted admin password claim used by the
	// excluded controller layer. Opaque to this core.
	Password string
}

// Claim map keys as emitted by the controller layer.
const (
	ClaimUserID     = "user_id"
	ClaimAppID      = "app_id"
	ClaimUsername   = "username"
	ClaimUserTypeID = "user_type_id"
	ClaimDeviceID   = "device_id"
	ClaimUserGroups = "user_groups"
	ClaimPassword   = "password"
)

// ClaimsFromMap builds a Claims from a string-keyed claim map. The group
// membership claim is a JSON array of group ids serialized as a string;
// a missing or malformed value yields no groups.
func ClaimsFromMap(m map[string]string) Claims {
	return Claims{
		UserID:   m[ClaimUserID],
		AppID:    m[ClaimAppID],
		Username: m[ClaimUsername],
		UserType: m[ClaimUserTypeID],
		DeviceID: m[ClaimDeviceID],
		Groups:   ParseGroups(m[ClaimUserGroups]),
		Password: m[ClaimPassword],
	}
}

// ToMap is the inverse of ClaimsFromMap.
func (c Claims) ToMap() map[string]string {
	groups, _ := json.Marshal(c.Groups)
	return map[string]string{
		ClaimUserID:     c.UserID,
		ClaimAppID:      c.AppID,
		ClaimUsername:   c.Username,
		ClaimUserTypeID: c.UserType,
		ClaimDeviceID:   c.DeviceID,
		ClaimUserGroups: string(groups),
		ClaimPassword:   c.Password,
	}
}

// Principal projects the claims onto the authorization view.
func (c Claims) Principal() routeauth.Principal {
	return routeauth.Principal{UserType: c.UserType, Groups: c.Groups}
}

// ParseGroups decodes a JSON array of group ids serialized as a string.
// Empty, missing, or malformed input yields nil (deny-by-default).
func ParseGroups(raw string) []string {
	if raw == "" {
		return nil
	}
	var groups []string
	if err := json.Unmarshal([]byte(raw), &groups); err != nil {
		return nil
	}
	if len(groups) == 0 {
		return nil
	}
	return groups
}
