package auth

import "crypto/subtle"

// SecretHeader carries the secret token Telegram echoes on every webhook delivery.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Service authenticates inbound webhook deliveries against the bot token
// in the path and the optional webhook secret.
type Service struct {
	token      string
	secret     string
	headerName string
}

// NewService constructs an auth service. An empty secret disables the header check.
func NewService(token, secret string) *Service {
	return &Service{
		token:      token,
		secret:     secret,
		headerName: SecretHeader,
	}
}

// Secret returns the secret to register with setWebhook.
func (s *Service) Secret() string {
	return s.secret
}

// ValidToken reports whether candidate is the bot token.
func (s *Service) ValidToken(candidate string) bool {
	if s.token == "" {
		return false
	}
	return equal(candidate, s.token)
}

// ValidSecret reports whether candidate matches the configured secret.
func (s *Service) ValidSecret(candidate string) bool {
	if s.secret == "" {
		return true
	}
	return equal(candidate, s.secret)
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
