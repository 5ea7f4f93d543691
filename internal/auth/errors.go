package auth

// AuthError is a machine-readable auth failure
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

var (
	ErrInvalidToken  = AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired  = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrUnauthorized  = AuthError{Code: "UNAUTHORIZED", Message: "unauthorized access"}
	ErrMissingSecret = AuthError{Code: "MISSING_SECRET", Message: "jwt secret is not configured"}
)
