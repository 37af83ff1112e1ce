package auth

// Cookie names for browser sessions, shared by handlers and middleware.
const (
	AccessTokenCookie  = "wb_access"
	RefreshTokenCookie = "wb_refresh"
)
