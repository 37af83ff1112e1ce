package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/ethanmsmith/whisperbox/internal/api"
	"github.com/ethanmsmith/whisperbox/internal/auth"
	"github.com/ethanmsmith/whisperbox/internal/auth/providers"
	"github.com/ethanmsmith/whisperbox/internal/database/testutil"
	"github.com/ethanmsmith/whisperbox/internal/handlers"
	"github.com/ethanmsmith/whisperbox/internal/middleware"
	"github.com/ethanmsmith/whisperbox/internal/services"
	"github.com/ethanmsmith/whisperbox/pkg/mail"
)

type captureMailer struct {
	messages []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.messages = append(m.messages, msg)
	return nil
}

var verifyLinkPattern = regexp.MustCompile(`/verify/[^/]+/[^"\s]+`)

func (m *captureMailer) lastVerifyPath(t *testing.T) string {
	t.Helper()

	require.NotEmpty(t, m.messages)
	link := verifyLinkPattern.FindString(m.messages[len(m.messages)-1].Body)
	require.NotEmpty(t, link)
	return link
}

type fixture struct {
	router http.Handler
	mailer *captureMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}

	verifications, err := services.NewVerificationService(db, mailer, services.VerificationConfig{
		BaseURL: "http://localhost:8000",
	})
	require.NoError(t, err)

	accounts, err := services.NewAccountService(db, verifications)
	require.NoError(t, err)

	local, err := providers.NewLocalProvider(db)
	require.NoError(t, err)

	jwtService, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret", Issuer: "whisperbox"})
	require.NoError(t, err)

	sessions, err := auth.NewSessionService(db, jwtService, auth.SessionConfig{})
	require.NoError(t, err)

	states, err := auth.NewStateCodec("test-state-key")
	require.NoError(t, err)

	assets := fstest.MapFS{
		"home.html":     {Data: []byte("<h1>home</h1>")},
		"login.html":    {Data: []byte("<h1>login</h1>")},
		"register.html": {Data: []byte("<h1>register</h1>")},
		"verified.html": {Data: []byte("<h1>verified</h1>")},
		"error.html":    {Data: []byte("<h1>error</h1>")},
		"secrets.html":  {Data: []byte("<h1>secrets</h1>")},
	}

	pages, err := handlers.NewPagesHandler(assets,
		"home", "login", "register", "verified", "error", "secrets")
	require.NoError(t, err)

	registerHandler, err := handlers.NewRegisterHandler(accounts)
	require.NoError(t, err)

	authHandler, err := handlers.NewAuthHandler(local, sessions, jwtService, handlers.CookieSettings{})
	require.NoError(t, err)

	verifyHandler, err := handlers.NewVerifyHandler(verifications)
	require.NoError(t, err)

	ssoHandler, err := handlers.NewSSOHandler(nil, accounts, sessions, states, handlers.CookieSettings{})
	require.NoError(t, err)

	router, err := api.NewRouter(api.Deps{
		Pages:         pages,
		Register:      registerHandler,
		Auth:          authHandler,
		Verify:        verifyHandler,
		SSO:           ssoHandler,
		Authenticator: middleware.NewSessionAuthenticator(jwtService, sessions),
	})
	require.NoError(t, err)

	return &fixture{router: router, mailer: mailer}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (f *fixture) register(t *testing.T, email string) {
	t.Helper()

	rec := f.do(jsonRequest(http.MethodPost, "/register",
		`{"name":"Ada Lovelace","username":"`+email+`","dob":"1815-12-10","password":"analytical-engine"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"PENDING"`)
	require.Contains(t, rec.Body.String(), "Verification email sent!")
}

func (f *fixture) registerAndVerify(t *testing.T, email string) {
	t.Helper()

	f.register(t, email)

	rec := f.do(httptest.NewRequest(http.MethodGet, f.mailer.lastVerifyPath(t), nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/verified", rec.Header().Get("Location"))
}

func TestRegisterReturnsPending(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com")
	require.Contains(t, f.mailer.messages[0].Subject, "Verify Your Email")
}

func TestRegisterValidationMessages(t *testing.T) {
	f := newFixture(t)

	rec := f.do(jsonRequest(http.MethodPost, "/register", `{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Empty input fields!")

	rec = f.do(jsonRequest(http.MethodPost, "/register",
		`{"name":"Ada","username":"nope","dob":"1815-12-10","password":"analytical-engine"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Invalid email entered")
}

func TestRegisterAcceptsSpelledOutFieldNames(t *testing.T) {
	f := newFixture(t)

	rec := f.do(jsonRequest(http.MethodPost, "/register",
		`{"name":"Ada Lovelace","email":"ada@example.com","dateOfBirth":"1815-12-10","password":"analytical-engine"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"PENDING"`)
}

func TestCheckEmail(t *testing.T) {
	f := newFixture(t)

	rec := f.do(jsonRequest(http.MethodPost, "/checkEmail", `{"email":"ada@example.com"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"validity":false`)

	f.register(t, "ada@example.com")

	rec = f.do(jsonRequest(http.MethodPost, "/checkEmail", `{"email":"ada@example.com"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"validity":true`)
}

func TestLoginBeforeVerificationIsRejected(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com")

	rec := f.do(jsonRequest(http.MethodPost, "/login",
		`{"username":"ada@example.com","password":"analytical-engine"}`))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "Email hasn't been verified yet. Check your inbox")

	// The inbox reminder wins even when the password is wrong.
	rec = f.do(jsonRequest(http.MethodPost, "/login",
		`{"username":"ada@example.com","password":"difference-engine"}`))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "Email hasn't been verified yet. Check your inbox")
}

func TestLoginWithEmptyCredentials(t *testing.T) {
	f := newFixture(t)

	rec := f.do(jsonRequest(http.MethodPost, "/login", `{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Empty credentials supplied")
}

func TestLoginWithBadCredentials(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "ada@example.com")

	rec := f.do(jsonRequest(http.MethodPost, "/login",
		`{"email":"ada@example.com","password":"wrong"}`))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "Invalid credentials entered.")

	rec = f.do(jsonRequest(http.MethodPost, "/login",
		`{"email":"nobody@example.com","password":"analytical-engine"}`))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "Invalid credentials entered.")
}

func TestLoginFormRedirectsToSecrets(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "ada@example.com")

	rec := f.do(formRequest("/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"analytical-engine"},
	}))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/secrets", rec.Header().Get("Location"))
	require.NotEmpty(t, rec.Result().Cookies())
}

func TestLoginFormFailureRedirectsBack(t *testing.T) {
	f := newFixture(t)

	rec := f.do(formRequest("/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"wrong"},
	}))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "/login?message=")
}

func TestSecretsRequiresSession(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/secrets", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "/login")
}

func TestFullLoginFlowReachesSecrets(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "ada@example.com")

	loginRec := f.do(formRequest("/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"analytical-engine"},
	}))
	require.Equal(t, http.StatusSeeOther, loginRec.Code)

	secretsReq := httptest.NewRequest(http.MethodGet, "/secrets", nil)
	for _, cookie := range loginRec.Result().Cookies() {
		secretsReq.AddCookie(cookie)
	}

	rec := f.do(secretsReq)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "secrets")
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "ada@example.com")

	loginRec := f.do(formRequest("/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"analytical-engine"},
	}))
	cookies := loginRec.Result().Cookies()

	logoutReq := httptest.NewRequest(http.MethodGet, "/logout", nil)
	for _, cookie := range cookies {
		logoutReq.AddCookie(cookie)
	}
	logoutRec := f.do(logoutReq)
	require.Equal(t, http.StatusSeeOther, logoutRec.Code)
	require.Equal(t, "/", logoutRec.Header().Get("Location"))

	// The old cookies no longer open the secrets page.
	secretsReq := httptest.NewRequest(http.MethodGet, "/secrets", nil)
	for _, cookie := range cookies {
		secretsReq.AddCookie(cookie)
	}
	rec := f.do(secretsReq)
	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestVerifyWithExpiredLinkRedirectsToError(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com")

	path := f.mailer.lastVerifyPath(t)
	parts := strings.Split(path, "/")
	require.Len(t, parts, 4)

	// Tamper with the unique string.
	rec := f.do(httptest.NewRequest(http.MethodGet,
		"/verify/"+parts[2]+"/definitely-wrong", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "/error?message=")
	require.Contains(t, rec.Header().Get("Location"), "Invalid")
}

func TestVerifyUnknownUserRedirectsToError(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/verify/no-such-user/none", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "/error?message=")
}

func TestGoogleLoginDisabled(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "/login?message=")
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}
