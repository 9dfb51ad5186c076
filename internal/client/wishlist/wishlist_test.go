package wishlist

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wafferli/wafferli-api/internal/client/adstore"
	"github.com/wafferli/wafferli-api/internal/client/apierr"
	"github.com/wafferli/wafferli-api/internal/client/storage"
	"github.com/wafferli/wafferli-api/internal/models"
)

type fakeToggler struct {
	toggleState models.FavoriteState
	toggleErr   error
	checkResult bool
	checkErr    error
	favorites   []models.Favorite
	listErr     error
}

func (f *fakeToggler) ToggleFavorite(ctx context.Context, id uuid.UUID) (models.FavoriteState, error) {
	return f.toggleState, f.toggleErr
}

func (f *fakeToggler) CheckFavoriteStatus(ctx context.Context, id uuid.UUID) (bool, error) {
	return f.checkResult, f.checkErr
}

func (f *fakeToggler) ListFavorites(ctx context.Context) ([]models.Favorite, error) {
	return f.favorites, f.listErr
}

func seedCache(t *testing.T, st storage.Storage, ids ...uuid.UUID) {
	t.Helper()
	cards := make([]Card, 0, len(ids))
	for _, id := range ids {
		cards = append(cards, Card{AdID: id, Title: "Кэшированное", AddedAt: time.Now()})
	}
	data, err := json.Marshal(cards)
	require.NoError(t, err)
	st.Set("wishlist", string(data))
}

func TestHydratesFromStoredCache(t *testing.T) {
	adID := uuid.New()
	st := storage.NewMemory()
	seedCache(t, st, adID)

	s := New(&fakeToggler{}, adstore.New(), st)

	assert.Equal(t, StateFavorited, s.State(adID))
	assert.Len(t, s.Cards(), 1)
	assert.Equal(t, StateUnknown, s.State(uuid.New()))
}

func TestServerStateOverwritesStaleCache(t *testing.T) {
	adID := uuid.New()
	st := storage.NewMemory()
	seedCache(t, st, adID)

	// Кэш говорит "в избранном", сервер — нет. Сервер главнее.
	repo := &fakeToggler{checkResult: false}
	s := New(repo, adstore.New(), st)

	isFavorited, err := s.Refresh(context.Background(), adID)
	require.NoError(t, err)
	assert.False(t, isFavorited)
	assert.Equal(t, StateNotFavorited, s.State(adID))
	assert.Empty(t, s.Cards())

	// Кэш в хранилище тоже перезаписан
	raw, ok := st.Get("wishlist")
	require.True(t, ok)
	assert.Equal(t, "[]", raw)
}

func TestToggleAppliesOptimisticallyAndConfirms(t *testing.T) {
	adID := uuid.New()
	store := adstore.New()
	store.Put(models.Ad{ID: adID, Title: "Самокат", FavoritesCount: 3})

	repo := &fakeToggler{toggleState: models.FavoriteState{IsFavorited: true, FavoritesCount: 4}}
	s := New(repo, store, storage.NewMemory())

	isFavorited, err := s.Toggle(context.Background(), adID)
	require.NoError(t, err)
	assert.True(t, isFavorited)
	assert.Equal(t, StateFavorited, s.State(adID))

	ad, ok := store.Get(adID)
	require.True(t, ok)
	assert.True(t, ad.IsFavorited)
	assert.Equal(t, 4, ad.FavoritesCount)

	cards := s.Cards()
	require.Len(t, cards, 1)
	assert.Equal(t, "Самокат", cards[0].Title)
}

func TestFailedToggleRevertsEverywhere(t *testing.T) {
	adID := uuid.New()
	store := adstore.New()
	store.Put(models.Ad{ID: adID, Title: "Кресло", FavoritesCount: 2})

	var events []adstore.Event
	store.Subscribe(func(ev adstore.Event) {
		events = append(events, ev)
	})

	repo := &fakeToggler{toggleErr: apierr.Transient(errors.New("connection refused"))}
	s := New(repo, store, storage.NewMemory())

	isFavorited, err := s.Toggle(context.Background(), adID)
	require.Error(t, err)
	assert.True(t, apierr.IsTransient(err))
	assert.False(t, isFavorited)

	// Состояние откатилось к исходному и откат виден всем представлениям
	assert.Equal(t, StateUnknown, s.State(adID))
	assert.Empty(t, s.Cards())

	ad, _ := store.Get(adID)
	assert.False(t, ad.IsFavorited)
	assert.Equal(t, 2, ad.FavoritesCount)

	// Было и оптимистичное событие, и откат
	assert.GreaterOrEqual(t, len(events), 2)
}

func TestFailedUnfavoriteRestoresCard(t *testing.T) {
	adID := uuid.New()
	st := storage.NewMemory()
	seedCache(t, st, adID)

	store := adstore.New()
	store.Put(models.Ad{ID: adID, Title: "Кэшированное", IsFavorited: true, FavoritesCount: 1})

	repo := &fakeToggler{toggleErr: apierr.Transient(errors.New("timeout"))}
	s := New(repo, store, st)

	isFavorited, err := s.Toggle(context.Background(), adID)
	require.Error(t, err)
	assert.True(t, isFavorited)

	// Снятие отметки сорвалось: и состояние, и карточка вернулись
	assert.Equal(t, StateFavorited, s.State(adID))
	cards := s.Cards()
	require.Len(t, cards, 1)
	assert.Equal(t, adID, cards[0].AdID)

	raw, ok := st.Get("wishlist")
	require.True(t, ok)
	var persisted []Card
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	require.Len(t, persisted, 1)
	assert.Equal(t, adID, persisted[0].AdID)

	// После перезапуска объявление все еще числится в избранном
	reloaded := New(&fakeToggler{}, adstore.New(), st)
	assert.Equal(t, StateFavorited, reloaded.State(adID))

	ad, _ := store.Get(adID)
	assert.True(t, ad.IsFavorited)
	assert.Equal(t, 1, ad.FavoritesCount)
}

func TestDeletedAdLeavesWishlist(t *testing.T) {
	adID := uuid.New()
	st := storage.NewMemory()
	seedCache(t, st, adID)

	store := adstore.New()
	store.Put(models.Ad{ID: adID})

	s := New(&fakeToggler{}, store, st)
	require.Equal(t, StateFavorited, s.State(adID))

	// Объявление удалили в другом представлении
	store.Delete(adID)

	assert.Equal(t, StateUnknown, s.State(adID))
	assert.Empty(t, s.Cards())

	raw, ok := st.Get("wishlist")
	require.True(t, ok)
	assert.Equal(t, "[]", raw)
}

func TestServerAnswerWinsOverOptimisticGuess(t *testing.T) {
	adID := uuid.New()
	store := adstore.New()
	store.Put(models.Ad{ID: adID, Title: "Лампа"})

	// Локально объявление не помечено, оптимистичная догадка — "добавить".
	// Сервер отвечает, что на самом деле снял отметку.
	repo := &fakeToggler{toggleState: models.FavoriteState{IsFavorited: false, FavoritesCount: 0}}
	s := New(repo, store, storage.NewMemory())

	isFavorited, err := s.Toggle(context.Background(), adID)
	require.NoError(t, err)
	assert.False(t, isFavorited)
	assert.Equal(t, StateNotFavorited, s.State(adID))
	assert.Empty(t, s.Cards())
}

func TestSyncReplacesLocalCache(t *testing.T) {
	staleID, freshID := uuid.New(), uuid.New()
	st := storage.NewMemory()
	seedCache(t, st, staleID)

	repo := &fakeToggler{
		favorites: []models.Favorite{
			{
				AdID:      freshID,
				CreatedAt: time.Now(),
				Ad:        &models.Ad{ID: freshID, Title: "Новое избранное", AdType: models.AdTypeProduct},
			},
		},
	}
	s := New(repo, adstore.New(), st)

	cards, err := s.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, freshID, cards[0].AdID)
	assert.Equal(t, "Новое избранное", cards[0].Title)

	assert.Equal(t, StateUnknown, s.State(staleID))
	assert.Equal(t, StateFavorited, s.State(freshID))
}

func TestCorruptedCacheIsDiscarded(t *testing.T) {
	st := storage.NewMemory()
	st.Set("wishlist", "{не json")

	s := New(&fakeToggler{}, adstore.New(), st)

	assert.Empty(t, s.Cards())
	_, ok := st.Get("wishlist")
	assert.False(t, ok)
}
