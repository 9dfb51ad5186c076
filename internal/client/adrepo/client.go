package adrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/wafferli/wafferli-api/internal/client/adstore"
	"github.com/wafferli/wafferli-api/internal/client/apierr"
	"github.com/wafferli/wafferli-api/internal/models"
)

// Credentials — источник токена для запросов. Invalidate вызывается
// при отказе авторизации, чтобы сессия сбросилась во всем приложении.
type Credentials interface {
	Token() string
	Invalidate()
}

// Client — клиент API объявлений. Результаты запросов складываются
// в общее хранилище снимков, чтобы все представления видели одно состояние.
type Client struct {
	baseURL string
	http    *http.Client
	creds   Credentials
	store   *adstore.Store

	// toggles схлопывает параллельные переключения избранного по одному
	// объявлению в один запрос
	toggles singleflight.Group
}

func New(baseURL string, creds Credentials, store *adstore.Store, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		creds:   creds,
		store:   store,
	}
}

// ListMine загружает объявления текущего пользователя.
// status: all, active или draft.
func (c *Client) ListMine(ctx context.Context, status string) ([]models.Ad, error) {
	path := "/api/ads/my"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	var result models.AdListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}

	c.store.PutAll(result.Ads)
	return result.Ads, nil
}

// GetByID загружает одно объявление
func (c *Client) GetByID(ctx context.Context, id uuid.UUID) (models.Ad, error) {
	var result struct {
		Ad models.Ad `json:"ad"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/ads/"+id.String(), nil, &result); err != nil {
		return models.Ad{}, err
	}

	c.store.Put(result.Ad)
	return result.Ad, nil
}

// DeleteByID удаляет объявление. Снимок убирается из общего хранилища,
// поэтому объявление исчезает из всех представлений, а не только из того,
// откуда его удалили.
func (c *Client) DeleteByID(ctx context.Context, id uuid.UUID) error {
	if err := c.do(ctx, http.MethodDelete, "/api/ads/"+id.String(), nil, nil); err != nil {
		return err
	}

	c.store.Delete(id)
	return nil
}

// ToggleFavorite переключает избранное. Параллельные вызовы по одному
// объявлению присоединяются к уже идущему запросу и получают его результат,
// поэтому пара срабатываний не отменяет друг друга.
func (c *Client) ToggleFavorite(ctx context.Context, id uuid.UUID) (models.FavoriteState, error) {
	v, err, _ := c.toggles.Do(id.String(), func() (interface{}, error) {
		var result struct {
			Success        bool `json:"success"`
			IsFavorited    bool `json:"is_favorited"`
			FavoritesCount int  `json:"favorites_count"`
		}

		body := map[string]string{"ad_id": id.String()}
		if err := c.do(ctx, http.MethodPost, "/api/favorites/toggle", body, &result); err != nil {
			return nil, err
		}

		state := models.FavoriteState{
			IsFavorited:    result.IsFavorited,
			FavoritesCount: result.FavoritesCount,
		}
		c.store.SetFavorite(id, state.IsFavorited, state.FavoritesCount)
		return state, nil
	})
	if err != nil {
		return models.FavoriteState{}, err
	}

	return v.(models.FavoriteState), nil
}

// CheckFavoriteStatus запрашивает у сервера, в избранном ли объявление
func (c *Client) CheckFavoriteStatus(ctx context.Context, id uuid.UUID) (bool, error) {
	var result struct {
		IsFavorited bool `json:"is_favorited"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/favorites/"+id.String()+"/check", nil, &result); err != nil {
		return false, err
	}
	return result.IsFavorited, nil
}

// ListFavorites загружает избранное с сервера вместе с карточками объявлений
func (c *Client) ListFavorites(ctx context.Context) ([]models.Favorite, error) {
	var result models.FavoriteResponse
	if err := c.do(ctx, http.MethodGet, "/api/favorites", nil, &result); err != nil {
		return nil, err
	}

	for _, fav := range result.Favorites {
		if fav.Ad != nil {
			c.store.Put(*fav.Ad)
		}
	}
	return result.Favorites, nil
}

// SearchSuggest возвращает подсказки поиска. Подсказки вспомогательны:
// любая ошибка дает пустой список, а не ломает ввод.
func (c *Client) SearchSuggest(ctx context.Context, query string) []models.Suggestion {
	var result struct {
		Suggestions []models.Suggestion `json:"suggestions"`
	}
	path := "/api/ads/suggest?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil
	}
	return result.Suggestions
}

// do выполняет запрос с токеном и разбирает ответ. Ответ 401/403
// сбрасывает сессию через Credentials.Invalidate.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.creds.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apierr.Transient(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.Transient(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := apierr.FromResponse(resp.StatusCode, data)
		if apiErr.Kind == apierr.KindAuthorization {
			c.creds.Invalidate()
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("не удалось разобрать ответ %s %s: %w", method, path, err)
		}
	}

	return nil
}
