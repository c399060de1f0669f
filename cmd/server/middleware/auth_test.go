package middleware

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/TFMV/ignis/cmd/server/config"
)

func setupTestAuthMiddleware(t *testing.T, authType string) *AuthMiddleware {
	t.Helper()

	cfg := config.AuthConfig{
		Enabled: true,
		Type:    authType,
	}

	switch authType {
	case "bearer":
		cfg.BearerAuth = config.BearerAuthConfig{
			Tokens: map[string]string{"test-token": "testuser"},
		}
	case "jwt":
		cfg.JWTAuth = config.JWTAuthConfig{
			Secret:   "test-secret",
			Issuer:   "test-issuer",
			Audience: "test-audience",
		}
	}

	middleware := NewAuthMiddleware(cfg, zerolog.New(io.Discard))
	if authType == "jwt" {
		assert.Equal(t, []byte("test-secret"), middleware.HSKey)
		assert.Equal(t, "test-issuer", middleware.Iss)
		assert.Equal(t, "test-audience", middleware.Aud)
	}
	return middleware
}

func bearerContext(token string) context.Context {
	md := metadata.New(map[string]string{"authorization": "Bearer " + token})
	return metadata.NewIncomingContext(context.Background(), md)
}

func signHS256(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub": "testuser",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iss": "test-issuer",
		"aud": "test-audience",
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	middleware := NewAuthMiddleware(config.AuthConfig{}, zerolog.New(io.Discard))

	ctx := context.Background()
	authCtx, err := middleware.authenticate(ctx)
	require.NoError(t, err)
	assert.Equal(t, ctx, authCtx)
}

func TestAuthMiddleware_AuthenticateBearer(t *testing.T) {
	middleware := setupTestAuthMiddleware(t, "bearer")

	t.Run("successful authentication", func(t *testing.T) {
		authCtx, err := middleware.authenticateBearer(bearerContext("test-token"))
		require.NoError(t, err)

		user, ok := GetUser(authCtx)
		assert.True(t, ok)
		assert.Equal(t, "testuser", user)
	})

	t.Run("missing metadata", func(t *testing.T) {
		_, err := middleware.authenticateBearer(context.Background())
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("missing authorization header", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.New(nil))
		_, err := middleware.authenticateBearer(ctx)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("wrong scheme", func(t *testing.T) {
		md := metadata.New(map[string]string{"authorization": "Basic dGVzdDp0ZXN0"})
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := middleware.authenticateBearer(ctx)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("invalid token", func(t *testing.T) {
		_, err := middleware.authenticateBearer(bearerContext("invalid-token"))
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})
}

func TestAuthMiddleware_AuthenticateJWT(t *testing.T) {
	middleware := setupTestAuthMiddleware(t, "jwt")

	t.Run("successful authentication", func(t *testing.T) {
		token := signHS256(t, middleware.HSKey, validClaims())

		authCtx, err := middleware.authenticateJWT(bearerContext(token))
		require.NoError(t, err)

		user, ok := GetUser(authCtx)
		assert.True(t, ok)
		assert.Equal(t, "testuser", user)
	})

	rejected := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"garbage", func(*testing.T) string { return "invalid.token.here" }},
		{"wrong key", func(t *testing.T) string { return signHS256(t, []byte("other-secret"), validClaims()) }},
		{"expired", func(t *testing.T) string {
			c := validClaims()
			c["exp"] = time.Now().Add(-time.Hour).Unix()
			return signHS256(t, middleware.HSKey, c)
		}},
		{"no expiry", func(t *testing.T) string {
			c := validClaims()
			delete(c, "exp")
			return signHS256(t, middleware.HSKey, c)
		}},
		{"wrong issuer", func(t *testing.T) string {
			c := validClaims()
			c["iss"] = "wrong-issuer"
			return signHS256(t, middleware.HSKey, c)
		}},
		{"wrong audience", func(t *testing.T) string {
			c := validClaims()
			c["aud"] = "wrong-audience"
			return signHS256(t, middleware.HSKey, c)
		}},
		{"no subject", func(t *testing.T) string {
			c := validClaims()
			delete(c, "sub")
			return signHS256(t, middleware.HSKey, c)
		}},
		{"other algorithm", func(t *testing.T) string {
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, validClaims()).SignedString(middleware.HSKey)
			require.NoError(t, err)
			return signed
		}},
	}

	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			_, err := middleware.authenticateJWT(bearerContext(tt.token(t)))
			require.Error(t, err)
			assert.Equal(t, codes.Unauthenticated, status.Code(err))
		})
	}

	t.Run("missing metadata", func(t *testing.T) {
		_, err := middleware.authenticateJWT(context.Background())
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})
}

func TestAuthMiddleware_UnsupportedType(t *testing.T) {
	middleware := NewAuthMiddleware(config.AuthConfig{Enabled: true, Type: "oauth2"}, zerolog.New(io.Discard))

	_, err := middleware.authenticate(bearerContext("test-token"))
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestAuthMiddleware_UnaryInterceptor(t *testing.T) {
	middleware := setupTestAuthMiddleware(t, "bearer")
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		user, _ := GetUser(ctx)
		return "ok:" + user, nil
	}

	t.Run("health check bypass", func(t *testing.T) {
		info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
		resp, err := middleware.UnaryInterceptor()(context.Background(), nil, info, handler)
		require.NoError(t, err)
		assert.Equal(t, "ok:", resp)
	})

	t.Run("authentication required", func(t *testing.T) {
		info := &grpc.UnaryServerInfo{FullMethod: "/arrow.flight.protocol.FlightService/DoAction"}
		_, err := middleware.UnaryInterceptor()(context.Background(), nil, info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("authenticated", func(t *testing.T) {
		info := &grpc.UnaryServerInfo{FullMethod: "/arrow.flight.protocol.FlightService/DoAction"}
		resp, err := middleware.UnaryInterceptor()(bearerContext("test-token"), nil, info, handler)
		require.NoError(t, err)
		assert.Equal(t, "ok:testuser", resp)
	})
}

func TestAuthMiddleware_StreamInterceptor(t *testing.T) {
	middleware := setupTestAuthMiddleware(t, "bearer")

	t.Run("health check bypass", func(t *testing.T) {
		info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}
		handler := func(srv interface{}, stream grpc.ServerStream) error { return nil }

		err := middleware.StreamInterceptor()(nil, &mockServerStream{ctx: context.Background()}, info, handler)
		require.NoError(t, err)
	})

	t.Run("authentication required", func(t *testing.T) {
		info := &grpc.StreamServerInfo{FullMethod: "/arrow.flight.protocol.FlightService/DoGet"}
		handler := func(srv interface{}, stream grpc.ServerStream) error { return nil }

		err := middleware.StreamInterceptor()(nil, &mockServerStream{ctx: context.Background()}, info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("authenticated stream carries user", func(t *testing.T) {
		info := &grpc.StreamServerInfo{FullMethod: "/arrow.flight.protocol.FlightService/DoGet"}
		var seen string
		handler := func(srv interface{}, stream grpc.ServerStream) error {
			seen, _ = GetUser(stream.Context())
			return nil
		}

		err := middleware.StreamInterceptor()(nil, &mockServerStream{ctx: bearerContext("test-token")}, info, handler)
		require.NoError(t, err)
		assert.Equal(t, "testuser", seen)
	})
}

// mockServerStream implements grpc.ServerStream for testing
type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *mockServerStream) Context() context.Context {
	return s.ctx
}
