package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("unit-test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	authed := r.Group("", RequireAuth(testSecret))
	authed.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"account_id": AccountID(c), "role": Role(c)})
	})
	staff := authed.Group("", RequireRole("staff", "admin"))
	staff.GET("/staff-only", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func get(r *gin.Engine, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	r := testRouter()
	valid := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "acct-1",
		"role": "member",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	t.Run("valid token", func(t *testing.T) {
		w := get(r, "/whoami", "Bearer "+valid)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "acct-1")
	})

	t.Run("missing header", func(t *testing.T) {
		w := get(r, "/whoami", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		w := get(r, "/whoami", "Token "+valid)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		forged := signToken(t, []byte("other-secret"), jwt.MapClaims{
			"sub": "acct-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		w := get(r, "/whoami", "Bearer "+forged)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		expired := signToken(t, testSecret, jwt.MapClaims{
			"sub": "acct-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		w := get(r, "/whoami", "Bearer "+expired)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing sub", func(t *testing.T) {
		noSub := signToken(t, testSecret, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		w := get(r, "/whoami", "Bearer "+noSub)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	r := testRouter()

	cases := []struct {
		role string
		want int
	}{
		{"staff", http.StatusOK},
		{"admin", http.StatusOK},
		{"member", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tc := range cases {
		token := signToken(t, testSecret, jwt.MapClaims{
			"sub":  "acct-1",
			"role": tc.role,
			"exp":  time.Now().Add(time.Hour).Unix(),
		})
		w := get(r, "/staff-only", "Bearer "+token)
		assert.Equal(t, tc.want, w.Code, "role %q", tc.role)
	}
}
