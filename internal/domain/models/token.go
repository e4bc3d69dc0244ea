package models

import "time"

// AuthResponse is returned by login, registration and refresh.
type AuthResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Expires      time.Time `json:"expires"`
	User         UserView  `json:"user"`
}
