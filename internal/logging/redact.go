package logging

// RedactToken keeps a short prefix of a bearer or refresh token so log lines
// can be correlated without exposing the secret.
func RedactToken(tok string) string {
	if len(tok) <= 8 {
		return "[REDACTED]"
	}
	return tok[:4] + "…[REDACTED]"
}
