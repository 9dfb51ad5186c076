package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wafferli/wafferli-api/internal/client/apierr"
	"github.com/wafferli/wafferli-api/internal/client/storage"
)

func newManager(t *testing.T, serverURL string, st storage.Storage) *Manager {
	t.Helper()
	return NewManager(Config{
		BaseURL:         serverURL,
		Storage:         st,
		ProtectedRoutes: []string{"/chat", "/my-ads", "/favorites"},
	})
}

func profileHandler(calls *atomic.Int32, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/me" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		w.WriteHeader(status)
		if status == http.StatusOK {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"user": map[string]string{"email": "user@example.com", "name": "User"},
			})
		} else {
			json.NewEncoder(w).Encode(map[string]string{"error": "Недействительный токен"})
		}
	}
}

func TestStartupWithoutTokenIsAnonymous(t *testing.T) {
	m := newManager(t, "http://127.0.0.1:0", storage.NewMemory())
	assert.Equal(t, StatusAnonymous, m.Status())
}

func TestStartupWithStoredTokenIsPending(t *testing.T) {
	st := storage.NewMemory()
	st.Set("token", "stored-token")

	m := newManager(t, "http://127.0.0.1:0", st)
	assert.Equal(t, StatusPending, m.Status())
}

func TestTokenVerifiedOnceAcrossNavigations(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(profileHandler(&calls, http.StatusOK))
	defer srv.Close()

	st := storage.NewMemory()
	st.Set("token", "valid-token")
	m := newManager(t, srv.URL, st)

	// Несколько навигаций подряд — запрос к серверу только один
	for i := 0; i < 5; i++ {
		decision := m.Gate(context.Background(), "/en/chat")
		assert.True(t, decision.Render)
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, StatusAuthenticated, m.Status())
	require.NotNil(t, m.User())
	assert.Equal(t, "user@example.com", m.User().Email)
}

func TestConcurrentVerificationCoalesces(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(profileHandler(&calls, http.StatusOK))
	defer srv.Close()

	st := storage.NewMemory()
	st.Set("token", "valid-token")
	m := newManager(t, srv.URL, st)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.EnsureVerified(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, StatusAuthenticated, m.Status())
}

func TestRejectedTokenClearsSessionAndRedirects(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(profileHandler(&calls, http.StatusUnauthorized))
	defer srv.Close()

	st := storage.NewMemory()
	st.Set("token", "stale-token")
	m := newManager(t, srv.URL, st)

	decision := m.Gate(context.Background(), "/en/my-ads")
	assert.False(t, decision.Render)
	assert.Equal(t, "/en/auth", decision.RedirectTo)

	// Токен удален, сессия после повторной проверки маршрута анонимна
	_, ok := st.Get("token")
	assert.False(t, ok)
	assert.Equal(t, StatusAnonymous, m.Status())
}

func TestTransientFailureKeepsTokenAndRenders(t *testing.T) {
	var calls atomic.Int32
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		profileHandler(&calls, http.StatusOK)(w, r)
	}))
	defer srv.Close()

	st := storage.NewMemory()
	st.Set("token", "valid-token")
	m := newManager(t, srv.URL, st)

	// Сервер недоступен: пользователя не выбрасываем, страница рендерится
	decision := m.Gate(context.Background(), "/en/chat")
	assert.True(t, decision.Render)
	assert.Equal(t, StatusPending, m.Status())

	token, ok := st.Get("token")
	require.True(t, ok)
	assert.Equal(t, "valid-token", token)

	// Сервер ожил: следующая навигация повторяет проверку
	healthy.Store(true)
	decision = m.Gate(context.Background(), "/en/chat")
	assert.True(t, decision.Render)
	assert.Equal(t, StatusAuthenticated, m.Status())
	assert.Equal(t, int32(2), calls.Load())
}

func TestUnprotectedRouteRendersWithoutVerification(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(profileHandler(&calls, http.StatusOK))
	defer srv.Close()

	st := storage.NewMemory()
	st.Set("token", "valid-token")
	m := newManager(t, srv.URL, st)

	decision := m.Gate(context.Background(), "/en/ads/123")
	assert.True(t, decision.Render)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, StatusPending, m.Status())
}

func TestAnonymousRedirectKeepsLocale(t *testing.T) {
	m := newManager(t, "http://127.0.0.1:0", storage.NewMemory())

	decision := m.Gate(context.Background(), "/ar/favorites")
	assert.False(t, decision.Render)
	assert.Equal(t, "/ar/auth", decision.RedirectTo)

	decision = m.Gate(context.Background(), "/en/chat?tab=archived")
	assert.Equal(t, "/en/auth", decision.RedirectTo)
}

func TestLoginPersistsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "correct-horse" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Invalid email or password"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token": "fresh-token",
			"user":  map[string]string{"email": body.Email, "name": "User"},
		})
	}))
	defer srv.Close()

	st := storage.NewMemory()
	m := newManager(t, srv.URL, st)

	err := m.Login(context.Background(), "user@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, apierr.IsAuthorization(err))
	assert.Equal(t, StatusAnonymous, m.Status())

	err = m.Login(context.Background(), "user@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, m.Status())

	token, ok := st.Get("token")
	require.True(t, ok)
	assert.Equal(t, "fresh-token", token)
}

func TestLogoutClearsState(t *testing.T) {
	st := storage.NewMemory()
	st.Set("token", "some-token")
	m := newManager(t, "http://127.0.0.1:0", st)

	m.Logout()

	assert.Equal(t, StatusAnonymous, m.Status())
	_, ok := st.Get("token")
	assert.False(t, ok)
	assert.Empty(t, m.Token())
}

func TestInvalidateFromAnyRequest(t *testing.T) {
	st := storage.NewMemory()
	st.Set("token", "revoked-token")
	m := newManager(t, "http://127.0.0.1:0", st)

	m.Invalidate()

	assert.Equal(t, StatusInvalid, m.Status())
	_, ok := st.Get("token")
	assert.False(t, ok)

	// Следующая навигация редиректит на вход, а сессия оседает в Anonymous
	decision := m.Gate(context.Background(), "/en/chat")
	assert.Equal(t, "/en/auth", decision.RedirectTo)
	assert.Equal(t, StatusAnonymous, m.Status())
}
