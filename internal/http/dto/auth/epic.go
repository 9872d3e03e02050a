// Package auth contiene los DTOs de los endpoints de login con Epic.
package auth

import "time"

// EpicLoginRequest is the body of POST /v1/auth/epic/login. Either token may
// be null or absent.
type EpicLoginRequest struct {
	AuthToken    *string `json:"auth_token"`
	ConnectToken *string `json:"connect_token"`
}

type EpicLoginResponse struct {
	PlayerID string `json:"player_id"`
}

type EpicLogoutResponse struct {
	WasLoggedIn bool `json:"was_logged_in"`
}

type MeResponse struct {
	PlayerID          string     `json:"player_id"`
	EpicAccountID     string     `json:"epic_account_id,omitempty"`
	EpicProductUserID string     `json:"epic_product_user_id,omitempty"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
}

func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
