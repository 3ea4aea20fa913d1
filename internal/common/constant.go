package common

const (
	// AuthorizationHeaderName carries the bearer access token on outbound calls.
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix precedes the access token in the Authorization header.
	BearerPrefix = "Bearer "

	// PKCEMethod is the only code challenge method the client issues.
	PKCEMethod = "S256"
)
