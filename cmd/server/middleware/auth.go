// Package middleware provides gRPC middleware for the ignis server.
package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/TFMV/ignis/cmd/server/config"
)

// AuthMiddleware provides authentication middleware.
type AuthMiddleware struct {
	config config.AuthConfig
	logger zerolog.Logger

	// JWT verification settings
	HSKey []byte
	Iss   string
	Aud   string
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(cfg config.AuthConfig, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		config: cfg,
		logger: logger,
		HSKey:  []byte(cfg.JWTAuth.Secret),
		Iss:    cfg.JWTAuth.Issuer,
		Aud:    cfg.JWTAuth.Audience,
	}
}

// UnaryInterceptor returns a unary server interceptor for authentication.
func (m *AuthMiddleware) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		// Skip auth for health checks
		if strings.Contains(info.FullMethod, "grpc.health") {
			return handler(ctx, req)
		}

		authCtx, err := m.authenticate(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Str("method", info.FullMethod).Msg("Authentication failed")
			return nil, err
		}

		return handler(authCtx, req)
	}
}

// StreamInterceptor returns a stream server interceptor for authentication.
func (m *AuthMiddleware) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		// Skip auth for health checks
		if strings.Contains(info.FullMethod, "grpc.health") {
			return handler(srv, ss)
		}

		authCtx, err := m.authenticate(ss.Context())
		if err != nil {
			m.logger.Warn().Err(err).Str("method", info.FullMethod).Msg("Authentication failed")
			return err
		}

		return handler(srv, &authServerStream{ServerStream: ss, ctx: authCtx})
	}
}

// authenticate performs authentication based on configured type.
func (m *AuthMiddleware) authenticate(ctx context.Context) (context.Context, error) {
	if !m.config.Enabled {
		return ctx, nil
	}

	switch m.config.Type {
	case "bearer":
		return m.authenticateBearer(ctx)
	case "jwt":
		return m.authenticateJWT(ctx)
	default:
		return nil, status.Errorf(codes.Internal, "unsupported auth type: %s", m.config.Type)
	}
}

// bearerToken extracts the token from the authorization header.
func bearerToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing metadata")
	}

	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		return "", status.Error(codes.Unauthenticated, "missing authorization header")
	}

	authHeader := authHeaders[0]
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", status.Error(codes.Unauthenticated, "invalid authorization header")
	}
	return strings.TrimPrefix(authHeader, "Bearer "), nil
}

// authenticateBearer performs static bearer token authentication.
func (m *AuthMiddleware) authenticateBearer(ctx context.Context) (context.Context, error) {
	token, err := bearerToken(ctx)
	if err != nil {
		return nil, err
	}

	for known, username := range m.config.BearerAuth.Tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(known)) == 1 {
			return context.WithValue(ctx, contextKeyUser, username), nil
		}
	}
	return nil, status.Error(codes.Unauthenticated, "invalid token")
}

// authenticateJWT verifies an HS256 token and its issuer and audience.
func (m *AuthMiddleware) authenticateJWT(ctx context.Context) (context.Context, error) {
	raw, err := bearerToken(ctx)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.Iss != "" {
		opts = append(opts, jwt.WithIssuer(m.Iss))
	}
	if m.Aud != "" {
		opts = append(opts, jwt.WithAudience(m.Aud))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return m.HSKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	if claims.Subject == "" {
		return nil, status.Error(codes.Unauthenticated, "token has no subject")
	}
	return context.WithValue(ctx, contextKeyUser, claims.Subject), nil
}

// Context keys for authentication
type contextKey string

const contextKeyUser contextKey = "user"

// GetUser extracts the authenticated user from context.
func GetUser(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(contextKeyUser).(string)
	return user, ok
}

// authServerStream wraps a ServerStream with authenticated context.
type authServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authServerStream) Context() context.Context {
	return s.ctx
}
