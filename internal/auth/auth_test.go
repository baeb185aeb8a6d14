package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Enabled:   true,
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
		Operators: []Operator{
			{Name: "root", PasswordHash: hash(t, "hunter2"), Role: RoleAdmin},
			{Name: "watch", PasswordHash: hash(t, "look")},
		},
	})
	require.NoError(t, err)
	return svc
}

func TestLoginAndVerify(t *testing.T) {
	svc := newService(t)

	res, err := svc.Login("root", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, res.Role)
	require.NotNil(t, res.Token)
	assert.Equal(t, "Bearer", res.Token.Type)

	got, err := svc.Verify(res.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, "root", got.Operator)

	_, err = svc.Login("root", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login("nobody", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	svc := newService(t)
	res, err := svc.Login("watch", "look")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, res.Role)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Verify(res.Token.Value)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	other := newService(t)
	other.jwtSecret = []byte("another")
	tok, err := other.Login("root", "hunter2")
	require.NoError(t, err)
	_, err = newService(t).Verify(tok.Token.Value)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.ErrorContains(t, Config{Enabled: true}.Validate(), "without operators")
	err := Config{Enabled: true, Operators: []Operator{
		{Name: "a", PasswordHash: "plain"},
		{Name: "a", PasswordHash: hash(t, "x"), Role: "owner"},
	}}.Validate()
	assert.ErrorContains(t, err, "not a bcrypt hash")
	assert.ErrorContains(t, err, "duplicate name")
	assert.ErrorContains(t, err, "unknown role")
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("s3cret")))
	_, err = HashPassword("")
	assert.Error(t, err)
}

func router(m *Middleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", m.GinLogin())
	g := r.Group("/", m.GinAuth())
	g.GET("/thing", func(c *gin.Context) { c.String(http.StatusOK, "read") })
	g.POST("/thing", func(c *gin.Context) { c.String(http.StatusOK, "write") })
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	r := router(NewMiddleware(newService(t)))

	w := serve(r, httptest.NewRequest(http.MethodGet, "/thing", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/thing", nil)
	req.SetBasicAuth("watch", "look")
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/thing", nil)
	req.SetBasicAuth("watch", "look")
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	w = serve(r, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"root","password":"hunter2"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"admin"`)

	svc := newService(t)
	res, err := svc.Login("root", "hunter2")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/thing", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token.Value)
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	w = serve(r, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"root","password":"nope"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareDisabled(t *testing.T) {
	r := router(NewMiddleware(nil))
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodPost, "/thing", nil)).Code)
	assert.Equal(t, http.StatusNotFound, serve(r, httptest.NewRequest(http.MethodPost, "/login", nil)).Code)
}
