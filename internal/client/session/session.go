package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wafferli/wafferli-api/internal/client/apierr"
	"github.com/wafferli/wafferli-api/internal/client/storage"
	"github.com/wafferli/wafferli-api/internal/models"
)

// Status — состояние сессии
type Status int

const (
	// StatusAnonymous — токена нет, пользователь не входил
	StatusAnonymous Status = iota
	// StatusPending — токен найден в хранилище, но еще не проверен на сервере
	StatusPending
	// StatusAuthenticated — токен проверен, профиль загружен
	StatusAuthenticated
	// StatusInvalid — сервер отверг токен, требуется повторный вход
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusAnonymous:
		return "anonymous"
	case StatusPending:
		return "pending"
	case StatusAuthenticated:
		return "authenticated"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

const tokenKey = "token"

// Config — настройки менеджера сессии
type Config struct {
	BaseURL    string
	Storage    storage.Storage
	HTTPClient *http.Client

	// ProtectedRoutes — маршруты, требующие авторизации, без префикса локали.
	// Набор задается явно, по содержимому страницы он не выводится.
	ProtectedRoutes []string

	// Locales — поддерживаемые префиксы локали в маршрутах.
	// По умолчанию en и ar.
	Locales []string
}

// Decision — результат проверки доступа к маршруту
type Decision struct {
	Render     bool
	RedirectTo string
}

// Manager управляет жизненным циклом сессии: проверяет сохраненный токен
// на сервере не чаще одного раза за запуск, решает судьбу защищенных
// маршрутов и сбрасывает сессию при отказе авторизации.
type Manager struct {
	cfg    Config
	client *http.Client

	mu         sync.Mutex
	status     Status
	token      string
	user       *models.UserProfile
	verifyDone chan struct{}
}

func NewManager(cfg Config) *Manager {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if len(cfg.Locales) == 0 {
		cfg.Locales = []string{"en", "ar"}
	}

	m := &Manager{cfg: cfg, client: cfg.HTTPClient}

	// Восстановление при запуске: наличие токена означает Pending,
	// пока сервер его не подтвердит
	if token, ok := cfg.Storage.Get(tokenKey); ok && token != "" {
		m.token = token
		m.status = StatusPending
	} else {
		m.status = StatusAnonymous
	}

	return m
}

// Status возвращает текущее состояние сессии
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Token возвращает текущий токен (пустая строка, если его нет)
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// User возвращает профиль после успешной проверки токена
func (m *Manager) User() *models.UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// Login выполняет вход по email и паролю. Успех сохраняет токен
// и переводит сессию в Authenticated.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return apierr.Transient(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.Transient(err)
	}

	if resp.StatusCode != http.StatusOK {
		return apierr.FromResponse(resp.StatusCode, data)
	}

	var result struct {
		Token string              `json:"token"`
		User  *models.UserProfile `json:"user"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return apierr.Transient(err)
	}

	m.cfg.Storage.Set(tokenKey, result.Token)

	m.mu.Lock()
	m.token = result.Token
	m.user = result.User
	m.status = StatusAuthenticated
	m.mu.Unlock()

	return nil
}

// Logout удаляет токен и переводит сессию в Anonymous
func (m *Manager) Logout() {
	m.cfg.Storage.Remove(tokenKey)

	m.mu.Lock()
	m.token = ""
	m.user = nil
	m.status = StatusAnonymous
	m.mu.Unlock()
}

// Invalidate вызывается при ответе 401/403 на любой запрос API.
// Токен удаляется из хранилища, сессия требует повторного входа.
func (m *Manager) Invalidate() {
	m.cfg.Storage.Remove(tokenKey)

	m.mu.Lock()
	m.token = ""
	m.user = nil
	m.status = StatusInvalid
	m.mu.Unlock()
}

// EnsureVerified проверяет сохраненный токен на сервере. Для одного
// токена проверка выполняется не более одного раза за запуск: параллельные
// вызовы присоединяются к уже идущей проверке, а после ее завершения
// результат возвращается без новых запросов. Транзиентный сбой оставляет
// сессию в Pending, повтор произойдет при следующей навигации.
func (m *Manager) EnsureVerified(ctx context.Context) Status {
	m.mu.Lock()

	if m.status != StatusPending {
		s := m.status
		m.mu.Unlock()
		return s
	}

	if m.verifyDone != nil {
		// Проверка уже идет, ждем ее результата
		done := m.verifyDone
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return m.Status()
	}

	done := make(chan struct{})
	m.verifyDone = done
	token := m.token
	m.mu.Unlock()

	// Запрос выполняется независимо от контекста инициатора: даже если
	// пользователь ушел со страницы, исход проверки применяется ко всей
	// сессии
	user, err := m.fetchProfile(token)

	m.mu.Lock()
	switch {
	case err == nil:
		m.status = StatusAuthenticated
		m.user = user
	case apierr.IsAuthorization(err):
		m.token = ""
		m.user = nil
		m.status = StatusInvalid
	default:
		// Сеть или 5xx: токен сохраняем, остаемся в Pending
	}
	m.verifyDone = nil
	status := m.status
	m.mu.Unlock()

	if apierr.IsAuthorization(err) {
		m.cfg.Storage.Remove(tokenKey)
	}

	close(done)
	return status
}

// Gate решает судьбу навигации на маршрут: рендер или редирект на вход.
// Для защищенного маршрута в Pending рендер блокируется до исхода проверки.
// Транзиентный сбой проверки не выбрасывает пользователя: страница
// рендерится, повтор при следующей навигации.
func (m *Manager) Gate(ctx context.Context, route string) Decision {
	if !m.isProtected(route) {
		return Decision{Render: true}
	}

	switch m.Status() {
	case StatusAuthenticated:
		return Decision{Render: true}
	case StatusAnonymous, StatusInvalid:
		m.settleInvalid()
		return Decision{RedirectTo: m.authPath(route)}
	}

	switch m.EnsureVerified(ctx) {
	case StatusAuthenticated:
		return Decision{Render: true}
	case StatusPending:
		// Проверка не удалась по транзиентной причине
		return Decision{Render: true}
	default:
		m.settleInvalid()
		return Decision{RedirectTo: m.authPath(route)}
	}
}

// settleInvalid переводит отвергнутую сессию в Anonymous: токен уже удален,
// Invalid — лишь промежуточное состояние до повторной проверки маршрута
func (m *Manager) settleInvalid() {
	m.mu.Lock()
	if m.status == StatusInvalid {
		m.status = StatusAnonymous
	}
	m.mu.Unlock()
}

func (m *Manager) fetchProfile(token string) (*models.UserProfile, error) {
	req, err := http.NewRequest(http.MethodGet, m.cfg.BaseURL+"/api/auth/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, apierr.Transient(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Transient(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apierr.FromResponse(resp.StatusCode, data)
	}

	var result struct {
		User *models.UserProfile `json:"user"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, apierr.Transient(err)
	}

	return result.User, nil
}

// isProtected сравнивает маршрут без префикса локали и query-параметров
// с настроенным списком
func (m *Manager) isProtected(route string) bool {
	path := m.stripLocale(stripQuery(route))
	for _, p := range m.cfg.ProtectedRoutes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// authPath строит путь на страницу входа, сохраняя локаль маршрута
func (m *Manager) authPath(route string) string {
	return "/" + m.localeOf(stripQuery(route)) + "/auth"
}

func (m *Manager) localeOf(route string) string {
	first := firstSegment(route)
	for _, loc := range m.cfg.Locales {
		if first == loc {
			return loc
		}
	}
	return m.cfg.Locales[0]
}

func (m *Manager) stripLocale(route string) string {
	first := firstSegment(route)
	for _, loc := range m.cfg.Locales {
		if first == loc {
			rest := strings.TrimPrefix(route, "/"+loc)
			if rest == "" {
				return "/"
			}
			return rest
		}
	}
	return route
}

func stripQuery(route string) string {
	if i := strings.IndexByte(route, '?'); i >= 0 {
		return route[:i]
	}
	return route
}

func firstSegment(route string) string {
	route = strings.TrimPrefix(route, "/")
	if i := strings.IndexByte(route, '/'); i >= 0 {
		return route[:i]
	}
	return route
}
