package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/internal/store/memory"
	"auction-engine/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newService(c domain.Clock) *Service {
	return NewService(memory.NewUserStore(), c, Config{
		JWTSecret:  "test-secret",
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, logger.NewNop())
}

func TestRegisterLoginAuthenticate(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	c := clock.NewManual(time.Now().UTC())
	s := newService(c)

	handle, err := s.Register(ctx, RegisterInput{Username: "ann", Email: "Ann@Example.com", Password: "pw", Role: domain.RoleSeller})
	rq.NoError(err)
	rq.Equal("ann", handle.DisplayName)
	rq.Equal(domain.RoleSeller, handle.Role)

	got, token, err := s.Login(ctx, "ann", "pw")
	rq.NoError(err)
	rq.Equal(handle, got)
	rq.NotEmpty(token.Token)

	authed, err := s.Authenticate(token.Token)
	rq.NoError(err)
	rq.Equal(handle, authed)

	c.Advance(2 * time.Hour)
	_, err = s.Authenticate(token.Token)
	rq.ErrorIs(err, domain.ErrUnauthorized)
}

func TestRegisterUniqueness(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	s := newService(clock.System{})

	_, err := s.Register(ctx, RegisterInput{Username: "ann", Email: "ann@example.com", Password: "pw", Role: domain.RoleBuyer})
	rq.NoError(err)

	_, err = s.Register(ctx, RegisterInput{Username: "ann", Email: "other@example.com", Password: "pw", Role: domain.RoleBuyer})
	rq.ErrorIs(err, domain.ErrUserExists)

	_, err = s.Register(ctx, RegisterInput{Username: "bob", Email: "ANN@example.com", Password: "pw", Role: domain.RoleBuyer})
	rq.ErrorIs(err, domain.ErrUserExists)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	s := newService(clock.System{})

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"no username", RegisterInput{Email: "a@b.c", Password: "pw", Role: domain.RoleBuyer}},
		{"no password", RegisterInput{Username: "a", Email: "a@b.c", Role: domain.RoleBuyer}},
		{"bad role", RegisterInput{Username: "a", Email: "a@b.c", Password: "pw", Role: "admin"}},
		{"bad email", RegisterInput{Username: "a", Email: "nope", Password: "pw", Role: domain.RoleBuyer}},
		{"password past bcrypt limit", RegisterInput{Username: "a", Email: "a@b.c", Password: strings.Repeat("x", MaxPasswordBytes+1), Role: domain.RoleBuyer}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(ctx, tt.in)
			require.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestHashPasswordLength(t *testing.T) {
	rq := require.New(t)

	hash, err := HashPassword(strings.Repeat("x", MaxPasswordBytes), bcrypt.MinCost)
	rq.NoError(err)
	rq.True(VerifyPassword(hash, strings.Repeat("x", MaxPasswordBytes)))

	_, err = HashPassword(strings.Repeat("x", MaxPasswordBytes+1), bcrypt.MinCost)
	rq.ErrorIs(err, domain.ErrInvalidArgument)
}

func TestLoginFailures(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	s := newService(clock.System{})

	_, err := s.Register(ctx, RegisterInput{Username: "ann", Email: "ann@example.com", Password: "pw", Role: domain.RoleBuyer})
	rq.NoError(err)

	_, _, err = s.Login(ctx, "ann", "wrong")
	rq.ErrorIs(err, domain.ErrUnauthorized)

	_, _, err = s.Login(ctx, "nobody", "pw")
	rq.ErrorIs(err, domain.ErrUnauthorized)
}

func TestParseAccessTokenRejectsForeignTokens(t *testing.T) {
	rq := require.New(t)
	now := time.Now()
	user := domain.UserHandle{ID: "u1", DisplayName: "ann", Role: domain.RoleBuyer}

	tok, err := NewAccessToken("secret-a", user, now, time.Hour)
	rq.NoError(err)

	_, err = ParseAccessToken("secret-b", tok.Token, now)
	rq.ErrorIs(err, domain.ErrUnauthorized)

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1", "exp": now.Add(time.Hour).Unix(),
	}).SignedString([]byte("secret-a"))
	rq.NoError(err)
	_, err = ParseAccessToken("secret-a", noRole, now)
	rq.ErrorIs(err, domain.ErrUnauthorized)

	got, err := ParseAccessToken("secret-a", tok.Token, now)
	rq.NoError(err)
	rq.Equal(user, got)
}
