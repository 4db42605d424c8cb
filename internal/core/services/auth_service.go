package services

import (
	stderrors "errors"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = stderrors.New("invalid token")
	ErrExpiredToken = stderrors.New("token expired")
)

// Claims bind a token to one participant of one session.
type Claims struct {
	SessionID     domain.SessionID     `json:"session_id"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
	Role          domain.Role          `json:"role"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret      []byte
	accessTokenTTL time.Duration
	now            func() time.Time
}

func NewAuthService(jwtSecret string, accessTokenTTL time.Duration, now func() time.Time) ports.AuthService {
	if now == nil {
		now = time.Now
	}
	return &authService{
		jwtSecret:      []byte(jwtSecret),
		accessTokenTTL: accessTokenTTL,
		now:            now,
	}
}

func (s *authService) IssueToken(sessionID domain.SessionID, participantID domain.ParticipantID, role domain.Role) (string, time.Time, error) {
	issued := s.now()
	expires := issued.Add(s.accessTokenTTL)
	claims := &Claims{
		SessionID:     sessionID,
		ParticipantID: participantID,
		Role:          role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(participantID),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func (s *authService) ValidateToken(tokenString string) (*domain.ParticipantClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == "" || claims.ParticipantID == "" {
		return nil, ErrInvalidToken
	}
	return &domain.ParticipantClaims{
		SessionID:     claims.SessionID,
		ParticipantID: claims.ParticipantID,
		Role:          claims.Role,
	}, nil
}
