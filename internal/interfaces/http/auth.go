package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

const actorKey = "actor"

// AuthConfig holds bearer token settings
type AuthConfig struct {
	Secret            string
	Issuer            string
	TokenTTL          time.Duration
	AllowPublicFiling bool
}

// Claims are the identity claims carried by a bearer token
type Claims struct {
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens and resolves the calling actor
type Authenticator struct {
	secret []byte
	cfg    AuthConfig
	now    func() time.Time
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("auth secret must be at least 32 bytes")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	return &Authenticator{secret: []byte(cfg.Secret), cfg: cfg, now: time.Now}, nil
}

// Issue signs a token for actor
func (a *Authenticator) Issue(actor entity.Actor) (string, error) {
	if actor.ID == "" || actor.ID == entity.Anonymous.ID {
		return "", fmt.Errorf("token subject %q is reserved", actor.ID)
	}
	if !actor.Role.IsValid() {
		return "", fmt.Errorf("unknown role %q", actor.Role)
	}

	now := a.now()
	claims := Claims{
		Role:  actor.Role.String(),
		Name:  actor.Name,
		Email: actor.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    a.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies a token and returns the actor it identifies
func (a *Authenticator) Parse(raw string) (entity.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return entity.Actor{}, err
	}

	role := domainwf.Role(strings.ToUpper(claims.Role))
	if !role.IsValid() {
		return entity.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	if claims.Subject == "" || claims.Subject == entity.Anonymous.ID {
		return entity.Actor{}, errors.New("token has no usable subject")
	}
	return entity.Actor{ID: claims.Subject, Role: role, Name: claims.Name, Email: claims.Email}, nil
}

// Middleware resolves the actor of every request. Calls without a token run
// as the anonymous actor when public filing is enabled and are rejected
// otherwise.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if !a.cfg.AllowPublicFiling {
				abortUnauthenticated(c, "missing bearer token")
				return
			}
			c.Set(actorKey, entity.Anonymous)
			c.Next()
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abortUnauthenticated(c, "malformed authorization header")
			return
		}

		actor, err := a.Parse(strings.TrimSpace(token))
		if err != nil {
			abortUnauthenticated(c, "invalid bearer token")
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="mutations"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
		Success: false,
		Code:    "UNAUTHENTICATED",
		Error:   msg,
	})
}

// actorFrom returns the actor resolved by the middleware
func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Anonymous
}
