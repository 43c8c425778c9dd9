package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestAuthenticator(t *testing.T, cfg Config) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return a
}

func TestValidateTokenExtractsIdentity(t *testing.T) {
	a := newTestAuthenticator(t, Config{})

	tests := []struct {
		name      string
		claims    jwt.MapClaims
		wantAgent string
		wantRole  string
	}{
		{
			name: "keycloak realm roles",
			claims: jwt.MapClaims{
				"sub":          "u-1",
				"realm_access": map[string]interface{}{"roles": []interface{}{"agent", "supervisor"}},
			},
			wantAgent: "u-1",
			wantRole:  RoleSupervisor,
		},
		{
			name: "agent_id claim overrides subject",
			claims: jwt.MapClaims{
				"sub":            "u-2",
				"agent_id":       "a7",
				"cognito:groups": []interface{}{"callcenter-agent"},
			},
			wantAgent: "a7",
			wantRole:  RoleAgent,
		},
		{
			name:      "no role claims",
			claims:    jwt.MapClaims{"sub": "u-3"},
			wantAgent: "u-3",
			wantRole:  RoleViewer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := a.validateToken(signedToken(t, tt.claims))
			if err != nil {
				t.Fatalf("validateToken: %v", err)
			}
			if claims.AgentID != tt.wantAgent {
				t.Errorf("AgentID = %q, want %q", claims.AgentID, tt.wantAgent)
			}
			if claims.Role != tt.wantRole {
				t.Errorf("Role = %q, want %q", claims.Role, tt.wantRole)
			}
		})
	}
}

func TestValidateTokenExpired(t *testing.T) {
	a := newTestAuthenticator(t, Config{})
	token := signedToken(t, jwt.MapClaims{"sub": "u", "exp": float64(time.Now().Add(-time.Hour).Unix())})

	if _, err := a.validateToken(token); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestCanActFor(t *testing.T) {
	tests := []struct {
		role    string
		agentID string
		target  string
		want    bool
	}{
		{RoleAgent, "a1", "a1", true},
		{RoleAgent, "a1", "a2", false},
		{RoleAgent, "", "", false},
		{RoleSupervisor, "s1", "a2", true},
		{RoleAdmin, "x", "a2", true},
		{RoleViewer, "a1", "a1", false},
	}

	for _, tt := range tests {
		c := &Claims{AgentID: tt.agentID, Role: tt.role}
		if got := c.CanActFor(tt.target); got != tt.want {
			t.Errorf("%s %q acting for %q = %v, want %v", tt.role, tt.agentID, tt.target, got, tt.want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetUserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("missing token", func(t *testing.T) {
		h := newTestAuthenticator(t, Config{}).Middleware(next)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rr.Code)
		}
	})

	t.Run("query token", func(t *testing.T) {
		seen = nil
		h := newTestAuthenticator(t, Config{}).Middleware(next)
		token := signedToken(t, jwt.MapClaims{"sub": "a1", "realm_access": map[string]interface{}{"roles": []interface{}{"agent"}}})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		if seen == nil || seen.AgentID != "a1" || seen.Role != RoleAgent {
			t.Errorf("unexpected claims %+v", seen)
		}
	})

	t.Run("skip auth with agent header", func(t *testing.T) {
		seen = nil
		h := newTestAuthenticator(t, Config{SkipAuth: true}).Middleware(next)
		req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
		req.Header.Set("X-Agent-ID", "a9")
		h.ServeHTTP(httptest.NewRecorder(), req)
		if seen == nil || seen.AgentID != "a9" || seen.Role != RoleAgent {
			t.Errorf("unexpected claims %+v", seen)
		}
	})

	t.Run("skip auth default supervisor", func(t *testing.T) {
		seen = nil
		h := newTestAuthenticator(t, Config{SkipAuth: true}).Middleware(next)
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		if seen == nil || !seen.IsSupervisor() {
			t.Errorf("unexpected claims %+v", seen)
		}
	})
}

func TestVerifySignatureRequiresIssuer(t *testing.T) {
	if _, err := NewAuthenticator(Config{VerifySignature: true}, zerolog.Nop()); err == nil {
		t.Error("expected error without issuer")
	}
}
