package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the token's "role" claim.
const (
	RoleCustomer = "customer"
	RoleAgency   = "agency"
	RoleAdmin    = "admin"
)

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Role    string
}

// Actor is the string recorded on every transition the caller causes.
func (p Principal) Actor() string {
	return p.Role + ":" + p.Subject
}

// ID returns the subject as a customer or agency id.
func (p Principal) ID() (int64, error) {
	id, err := strconv.ParseInt(p.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("subject %q is not a numeric id", p.Subject)
	}
	return id, nil
}

func principalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(CtxPrincipal).(Principal)
	return p, ok
}

func validRole(role string) bool {
	switch role {
	case RoleCustomer, RoleAgency, RoleAdmin:
		return true
	}
	return false
}

// IssueToken signs an HS256 token for subject with the given role.
func IssueToken(secret, subject, role string, d time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if !validRole(role) {
		return "", fmt.Errorf("unknown role %q", role)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(d).Unix(),
	})
	return token.SignedString([]byte(secret))
}

func parsePrincipal(secret, tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid {
		return Principal{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, errors.New("unexpected claims type")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Principal{}, errors.New("token has no subject")
	}
	role, _ := claims["role"].(string)
	if !validRole(role) {
		return Principal{}, fmt.Errorf("token has unknown role %q", role)
	}
	return Principal{Subject: sub, Role: role}, nil
}
