package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleAgent      = "agent"
	RoleViewer     = "viewer"
)

// Claims is the pre-verified caller identity handed to the command gateway
type Claims struct {
	AgentID string   `json:"agentId"`
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Role    string   `json:"role"`
	Groups  []string `json:"groups"`
	jwt.RegisteredClaims
}

// CanActFor reports whether the caller may issue commands on behalf of agentID.
// Agents act only as themselves; supervisors and admins act for anyone.
func (c *Claims) CanActFor(agentID string) bool {
	switch c.Role {
	case RoleAdmin, RoleSupervisor:
		return true
	case RoleAgent:
		return agentID != "" && agentID == c.AgentID
	}
	return false
}

// IsSupervisor reports whether the caller has supervisor rights
func (c *Claims) IsSupervisor() bool {
	return c.Role == RoleAdmin || c.Role == RoleSupervisor
}

type contextKey string

const UserContextKey contextKey = "user"

// Config controls how bearer tokens are checked
type Config struct {
	SkipAuth        bool
	VerifySignature bool
	Issuer          string // OIDC issuer, JWKS is fetched from its certs endpoint
}

// JWKSManager handles JWKS fetching and caching
type JWKSManager struct {
	jwks       keyfunc.Keyfunc
	issuerURL  string
	mu         sync.RWMutex
	lastUpdate time.Time
}

// NewJWKSManager fetches the issuer's key set
func NewJWKSManager(issuerURL string) (*JWKSManager, error) {
	m := &JWKSManager{issuerURL: issuerURL}
	if err := m.refresh(); err != nil {
		return nil, err
	}
	return m, nil
}

// refresh fetches the JWKS from the OIDC provider
func (m *JWKSManager) refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Keycloak layout
	jwksURL := strings.TrimSuffix(m.issuerURL, "/") + "/protocol/openid-connect/certs"

	k, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return fmt.Errorf("failed to create keyfunc: %w", err)
	}

	m.jwks = k
	m.lastUpdate = time.Now()
	return nil
}

func (m *JWKSManager) getKeyfunc() jwt.Keyfunc {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.jwks == nil {
		return nil
	}
	return m.jwks.Keyfunc
}

// Authenticator turns bearer tokens into Claims on the request context
type Authenticator struct {
	cfg    Config
	jwks   *JWKSManager
	logger zerolog.Logger
}

// NewAuthenticator creates an Authenticator. With signature verification on,
// the issuer's JWKS is loaded immediately.
func NewAuthenticator(cfg Config, logger zerolog.Logger) (*Authenticator, error) {
	a := &Authenticator{
		cfg:    cfg,
		logger: logger.With().Str("component", "auth").Logger(),
	}

	if cfg.VerifySignature && !cfg.SkipAuth {
		if cfg.Issuer == "" {
			return nil, fmt.Errorf("OIDC_ISSUER not configured for JWT verification")
		}
		jwks, err := NewJWKSManager(cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JWKS: %w", err)
		}
		a.jwks = jwks
		a.logger.Info().Str("issuer", cfg.Issuer).Msg("JWKS loaded")
	}
	return a, nil
}

// Middleware validates JWT tokens from the OIDC provider
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.SkipAuth {
			ctx := context.WithValue(r.Context(), UserContextKey, devClaims(r))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		tokenString := extractToken(r)
		if tokenString == "" {
			a.logger.Debug().Str("path", r.URL.Path).Msg("missing authorization token")
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}

		claims, err := a.validateToken(tokenString)
		if err != nil {
			a.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("token validation failed")
			http.Error(w, fmt.Sprintf("Unauthorized: %v", err), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// devClaims is the identity used when auth is skipped. X-Agent-ID lets a
// local client act as a specific agent instead of the dev supervisor.
func devClaims(r *http.Request) *Claims {
	if agentID := r.Header.Get("X-Agent-ID"); agentID != "" {
		return &Claims{AgentID: agentID, Name: agentID, Role: RoleAgent}
	}
	return &Claims{
		AgentID: "dev",
		Email:   "dev@switchboard.local",
		Name:    "Dev User",
		Role:    RoleAdmin,
		Groups:  []string{"developers"},
	}
}

// extractToken gets the token from Authorization header or query parameter
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString != authHeader {
			return tokenString
		}
	}

	// WebSocket clients cannot set headers
	return r.URL.Query().Get("token")
}

func (a *Authenticator) validateToken(tokenString string) (*Claims, error) {
	var token *jwt.Token
	var err error

	if a.cfg.VerifySignature {
		token, err = a.parseAndVerifyToken(tokenString)
		if err != nil {
			return nil, err
		}
	} else {
		token, _, err = jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
		if err != nil {
			return nil, fmt.Errorf("failed to parse token: %w", err)
		}
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	claims := &Claims{}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}
	if name, ok := mapClaims["name"].(string); ok {
		claims.Name = name
	} else if preferredUsername, ok := mapClaims["preferred_username"].(string); ok {
		claims.Name = preferredUsername
	}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Subject = sub
	}

	// Roster ids come from a custom claim when the IdP subject differs
	claims.AgentID = claims.Subject
	if agentID, ok := mapClaims["agent_id"].(string); ok && agentID != "" {
		claims.AgentID = agentID
	}

	claims.Role = extractRoleFromMapClaims(mapClaims)
	claims.Groups = extractGroupsFromMapClaims(mapClaims)

	// Verified tokens have exp checked by the parser
	if !a.cfg.VerifySignature {
		if exp, ok := mapClaims["exp"].(float64); ok {
			expTime := time.Unix(int64(exp), 0)
			claims.ExpiresAt = jwt.NewNumericDate(expTime)
			if expTime.Before(time.Now()) {
				return nil, fmt.Errorf("token expired")
			}
		}
	}

	a.logger.Debug().
		Str("agent_id", claims.AgentID).
		Str("role", claims.Role).
		Msg("token parsed")

	return claims, nil
}

func (a *Authenticator) parseAndVerifyToken(tokenString string) (*jwt.Token, error) {
	if a.jwks == nil {
		return nil, fmt.Errorf("JWKS not available")
	}
	kf := a.jwks.getKeyfunc()
	if kf == nil {
		return nil, fmt.Errorf("JWKS not available")
	}

	token, err := jwt.Parse(tokenString, kf, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}))
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return token, nil
}

// extractRoleFromMapClaims extracts role from various possible token claim locations
func extractRoleFromMapClaims(mapClaims jwt.MapClaims) string {
	// Keycloak realm roles, highest first
	if realmAccess, ok := mapClaims["realm_access"].(map[string]interface{}); ok {
		if roles, ok := realmAccess["roles"].([]interface{}); ok {
			for _, priority := range []string{RoleAdmin, RoleSupervisor, RoleAgent, RoleViewer} {
				for _, role := range roles {
					if roleStr, ok := role.(string); ok && roleStr == priority {
						return roleStr
					}
				}
			}
		}
	}

	for _, key := range []string{"cognito:groups", "custom:groups"} {
		groups, ok := mapClaims[key].([]interface{})
		if !ok {
			continue
		}
		for _, group := range groups {
			groupStr, ok := group.(string)
			if !ok {
				continue
			}
			switch {
			case strings.Contains(groupStr, RoleAdmin):
				return RoleAdmin
			case strings.Contains(groupStr, RoleSupervisor):
				return RoleSupervisor
			case strings.Contains(groupStr, RoleAgent):
				return RoleAgent
			}
		}
	}

	return RoleViewer
}

// extractGroupsFromMapClaims extracts groups from token claims
func extractGroupsFromMapClaims(mapClaims jwt.MapClaims) []string {
	var groups []string
	for _, key := range []string{"groups", "cognito:groups"} {
		if claim, ok := mapClaims[key].([]interface{}); ok {
			for _, group := range claim {
				if groupStr, ok := group.(string); ok {
					groups = append(groups, groupStr)
				}
			}
		}
	}
	return groups
}

// GetUserFromContext retrieves user claims from request context
func GetUserFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	return claims, ok
}

// WithUser stores claims on a context
func WithUser(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// HasRole checks if user has specific role
func HasRole(claims *Claims, role string) bool {
	return claims.Role == role
}
