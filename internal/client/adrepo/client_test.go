package adrepo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wafferli/wafferli-api/internal/client/adstore"
	"github.com/wafferli/wafferli-api/internal/client/apierr"
	"github.com/wafferli/wafferli-api/internal/models"
)

type fakeCreds struct {
	token       string
	invalidated atomic.Bool
}

func (f *fakeCreds) Token() string { return f.token }
func (f *fakeCreds) Invalidate()   { f.invalidated.Store(true) }

func TestToggleFavoriteCoalescesConcurrentCalls(t *testing.T) {
	adID := uuid.New()

	var requests atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		entered <- struct{}{}
		<-release
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":         true,
			"is_favorited":    true,
			"favorites_count": 7,
		})
	}))
	defer srv.Close()

	store := adstore.New()
	client := New(srv.URL, &fakeCreds{token: "t"}, store, nil)

	results := make(chan models.FavoriteState, 2)
	errs := make(chan error, 2)

	go func() {
		st, err := client.ToggleFavorite(context.Background(), adID)
		results <- st
		errs <- err
	}()

	// Дожидаемся, пока первый запрос дойдет до сервера, и только потом
	// запускаем второй вызов: он должен присоединиться к первому
	<-entered

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		st, err := client.ToggleFavorite(context.Background(), adID)
		results <- st
		errs <- err
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < 2; i++ {
		require.NoError(t, <-errs)
		state := <-results
		assert.True(t, state.IsFavorited)
		assert.Equal(t, 7, state.FavoritesCount)
	}

	assert.Equal(t, int32(1), requests.Load())
}

func TestDeleteRemovesAdFromAllViews(t *testing.T) {
	adID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	}))
	defer srv.Close()

	store := adstore.New()
	store.Put(models.Ad{ID: adID, Title: "Диван"})

	// Два представления подписаны на хранилище
	var listView, favView []uuid.UUID
	var mu sync.Mutex
	store.Subscribe(func(ev adstore.Event) {
		if ev.Kind == adstore.EventDeleted {
			mu.Lock()
			listView = append(listView, ev.AdID)
			mu.Unlock()
		}
	})
	store.Subscribe(func(ev adstore.Event) {
		if ev.Kind == adstore.EventDeleted {
			mu.Lock()
			favView = append(favView, ev.AdID)
			mu.Unlock()
		}
	})

	client := New(srv.URL, &fakeCreds{token: "t"}, store, nil)
	require.NoError(t, client.DeleteByID(context.Background(), adID))

	_, ok := store.Get(adID)
	assert.False(t, ok)
	assert.Equal(t, []uuid.UUID{adID}, listView)
	assert.Equal(t, []uuid.UUID{adID}, favView)
}

func TestListMineFillsStore(t *testing.T) {
	first, second := uuid.New(), uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ads/my", r.URL.Path)
		assert.Equal(t, "draft", r.URL.Query().Get("status"))
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(models.AdListResponse{
			Ads: []models.Ad{
				{ID: first, Title: "Черновик 1"},
				{ID: second, Title: "Черновик 2"},
			},
			Total: 2,
		})
	}))
	defer srv.Close()

	store := adstore.New()
	client := New(srv.URL, &fakeCreds{token: "t"}, store, nil)

	ads, err := client.ListMine(context.Background(), "draft")
	require.NoError(t, err)
	assert.Len(t, ads, 2)

	ad, ok := store.Get(first)
	require.True(t, ok)
	assert.Equal(t, "Черновик 1", ad.Title)
}

func TestUnauthorizedResponseInvalidatesCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "Недействительный токен"})
	}))
	defer srv.Close()

	creds := &fakeCreds{token: "stale"}
	client := New(srv.URL, creds, adstore.New(), nil)

	_, err := client.ListMine(context.Background(), "")
	require.Error(t, err)
	assert.True(t, apierr.IsAuthorization(err))
	assert.True(t, creds.invalidated.Load())
}

func TestGetMissingAdIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Объявление не найдено"})
	}))
	defer srv.Close()

	client := New(srv.URL, &fakeCreds{token: "t"}, adstore.New(), nil)

	_, err := client.GetByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, apierr.IsNotFound(err))
	assert.False(t, apierr.IsTransient(err))
}

func TestSearchSuggestSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, &fakeCreds{}, adstore.New(), nil)

	// Подсказки не должны ломать поиск при сбое сервера
	suggestions := client.SearchSuggest(context.Background(), "велосипед")
	assert.Empty(t, suggestions)
}

func TestSearchSuggestReturnsMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "велосипед", r.URL.Query().Get("q"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"suggestions": []models.Suggestion{
				{AdID: uuid.New(), Title: "Велосипед детский", AdType: models.AdTypeProduct},
			},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, &fakeCreds{}, adstore.New(), nil)

	suggestions := client.SearchSuggest(context.Background(), "велосипед")
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Велосипед детский", suggestions[0].Title)
}

func TestTransportErrorIsTransient(t *testing.T) {
	// Сервер на закрытом порту
	client := New("http://127.0.0.1:1", &fakeCreds{token: "t"}, adstore.New(), &http.Client{Timeout: time.Second})

	_, err := client.ListMine(context.Background(), "")
	require.Error(t, err)
	assert.True(t, apierr.IsTransient(err))
}
