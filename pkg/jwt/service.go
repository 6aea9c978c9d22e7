package jwt

import (
	"time"
)

// Service is a wrapper for JWT operations
type Service struct {
	secretKey string
	expiry    time.Duration
}

// NewService creates a new JWT service
func NewService(secretKey string, expiry time.Duration) *Service {
	if secretKey == "" {
		secretKey = getSecretKey()
	}

	if expiry == 0 {
		expiry = 24 * time.Hour
	}

	return &Service{
		secretKey: secretKey,
		expiry:    expiry,
	}
}

// GenerateToken generates a JWT token for a user
func (s *Service) GenerateToken(userID uint, email string, role string) (string, error) {
	return GenerateToken(userID, email, role, s.expiry)
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(tokenString)
}
