package auth

import (
	"business-connect/contract"
	"business-connect/domain"
	"business-connect/errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of the backend's access token the client reads.
// The user id is the standard "sub" claim.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Session holds the signed-in user's access token.
// With a secret the token signature is checked, without one the token is
// only decoded: hosted projects keep their secret server side.
type Session struct {
	mu     sync.RWMutex
	secret []byte
	token  string
	claims *Claims
	now    func() time.Time
}

var _ contract.IdentityProvider = (*Session)(nil)

func NewSession(secret []byte) *Session {
	return &Session{secret: secret, now: time.Now}
}

// SignIn replaces the current token. An invalid token leaves the session signed out.
func (s *Session) SignIn(token string) error {
	claims, err := s.parse(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.token, s.claims = "", nil
		return err
	}
	s.token, s.claims = token, claims
	return nil
}

func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.claims = "", nil
}

// CurrentUserID reports the signed-in user, or false once the token expired.
func (s *Session) CurrentUserID() (domain.UserID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.live() {
		return "", false
	}
	return domain.UserID(s.claims.Subject), true
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.live() {
		return ""
	}
	return s.token
}

func (s *Session) live() bool {
	if s.claims == nil || s.claims.Subject == "" {
		return false
	}
	return s.claims.ExpiresAt == nil || s.now().Before(s.claims.ExpiresAt.Time)
}

func (s *Session) parse(token string) (*Claims, error) {
	claims := &Claims{}
	var err error
	if len(s.secret) == 0 {
		_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	} else {
		_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", errors.ErrInvalidToken)
	}
	return claims, nil
}

// GenerateToken signs a token the way the backend does, for the local
// backend and for tests.
func GenerateToken(secret []byte, userID domain.UserID, email string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "business-connect",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
