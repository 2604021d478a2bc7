package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/substratelabs/failurelens-backend/internal/platform/ctxutil"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

const SupabaseAudience = "authenticated"

var ErrUnauthorized = errors.New("unauthorized")

// JWTClaims are the Supabase access-token claims we rely on.
type JWTClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService interface {
	// SetContextFromToken verifies a bearer token, makes sure the caller has a
	// profile and attaches RequestData to the returned context.
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
}

// KeySource resolves the public key for an asymmetric token's kid.
type KeySource interface {
	Key(ctx context.Context, kid string) (any, error)
}

type authService struct {
	log      *logger.Logger
	secret   []byte
	keys     KeySource
	profiles ProfileService
}

// NewAuthService verifies HS256 tokens with jwtSecret and, when keys is
// non-nil, ES256/RS256 tokens against the project's JWKS.
func NewAuthService(baseLog *logger.Logger, jwtSecret string, keys KeySource, profiles ProfileService) AuthService {
	return &authService{
		log:      baseLog.With("service", "AuthService"),
		secret:   []byte(jwtSecret),
		keys:     keys,
		profiles: profiles,
	}
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if strings.TrimSpace(tokenString) == "" || (len(as.secret) == 0 && as.keys == nil) {
		return ctx, ErrUnauthorized
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return as.verificationKey(ctx, token)
	},
		jwt.WithValidMethods(as.validMethods()),
		jwt.WithAudience(SupabaseAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return ctx, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return ctx, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return ctx, fmt.Errorf("%w: invalid subject", ErrUnauthorized)
	}

	profile, err := as.profiles.EnsureProfile(ctx, userID, claims.Email)
	if err != nil {
		as.log.Error("Failed to ensure profile", "user_id", userID, "error", err)
		return ctx, fmt.Errorf("ensure profile: %w", err)
	}
	rd := &ctxutil.RequestData{UserID: userID, Email: profile.Email, Role: profile.Role, Plan: profile.Plan}
	return ctxutil.WithRequestData(ctx, rd), nil
}

func (as *authService) validMethods() []string {
	var methods []string
	if len(as.secret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if as.keys != nil {
		methods = append(methods, jwt.SigningMethodES256.Alg(), jwt.SigningMethodRS256.Alg())
	}
	return methods
}

func (as *authService) verificationKey(ctx context.Context, token *jwt.Token) (interface{}, error) {
	if token.Method.Alg() == jwt.SigningMethodHS256.Alg() {
		return as.secret, nil
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	return as.keys.Key(ctx, kid)
}
