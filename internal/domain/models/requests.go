package models

// Request bodies accepted by both transports. The binding tags are read by
// gin and by internal/lib/validation.

type LoginRequest struct {
	UserName string `json:"userName" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	UserName string `json:"userName" binding:"required,max=50"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Email    string `json:"email" binding:"required,email"`
}

// RefreshRequest optionally carries the access token the client last held,
// which must belong to the owner of RefreshToken.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
	AccessToken  string `json:"accessToken"`
}

type RevokeRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type RevokeResponse struct {
	Revoked bool `json:"revoked"`
}
