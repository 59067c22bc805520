package auth

import (
	"context"
	"os"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

const (
	XUserNameHeader = "X-User-Name"
	XUserRoleHeader = "X-User-Role"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

var JWTKey = []byte(getenv("JWT_KEY", "local_dev_secret"))

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

type Profile struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

type Claims struct {
	jwt.RegisteredClaims
	Profile Profile `json:"profile"`
}

type ctxKey struct{}

type Identity struct {
	Username string
	Role     Role
}

func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

func SetAuthContext(ctx context.Context, username string, role Role) context.Context {
	return context.WithValue(ctx, ctxKey{}, Identity{Username: username, Role: role})
}

func FromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok || id.Username == "" {
		return Identity{}, errors.New("no identity in context")
	}
	return id, nil
}
