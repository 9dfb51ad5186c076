package wishlist

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wafferli/wafferli-api/internal/client/adstore"
	"github.com/wafferli/wafferli-api/internal/client/storage"
	"github.com/wafferli/wafferli-api/internal/models"
)

// State — локальное знание о принадлежности объявления к избранному
type State int

const (
	// StateUnknown — сервер еще не спрашивали
	StateUnknown State = iota
	StateNotFavorited
	StateFavorited
)

const wishlistKey = "wishlist"

// Card — денормализованная карточка избранного. Хранит достаточно данных
// для отрисовки списка без похода за каждым объявлением.
type Card struct {
	AdID     uuid.UUID     `json:"ad_id"`
	Title    string        `json:"title"`
	AdType   models.AdType `json:"ad_type"`
	Price    *float64      `json:"price,omitempty"`
	Currency string        `json:"currency,omitempty"`
	ImageURL string        `json:"image_url,omitempty"`
	AddedAt  time.Time     `json:"added_at"`
}

// Toggler — подмножество клиента API, которое нужно синхронизатору
type Toggler interface {
	ToggleFavorite(ctx context.Context, id uuid.UUID) (models.FavoriteState, error)
	CheckFavoriteStatus(ctx context.Context, id uuid.UUID) (bool, error)
	ListFavorites(ctx context.Context) ([]models.Favorite, error)
}

// Synchronizer согласует избранное между сервером, общим хранилищем
// снимков и локальным кэшем. Переключение применяется оптимистично
// и откатывается при ошибке; ответ сервера всегда перекрывает кэш.
type Synchronizer struct {
	repo    Toggler
	store   *adstore.Store
	storage storage.Storage

	mu     sync.Mutex
	states map[uuid.UUID]State
	cards  map[uuid.UUID]Card
}

func New(repo Toggler, store *adstore.Store, st storage.Storage) *Synchronizer {
	s := &Synchronizer{
		repo:    repo,
		store:   store,
		storage: st,
		states:  make(map[uuid.UUID]State),
		cards:   make(map[uuid.UUID]Card),
	}
	s.hydrate()

	// Удаление объявления из общего хранилища выбрасывает его и из
	// избранного, не дожидаясь следующей синхронизации
	store.Subscribe(func(ev adstore.Event) {
		if ev.Kind != adstore.EventDeleted {
			return
		}
		s.mu.Lock()
		if _, ok := s.cards[ev.AdID]; ok || s.states[ev.AdID] != StateUnknown {
			delete(s.states, ev.AdID)
			delete(s.cards, ev.AdID)
			s.persistLocked()
		}
		s.mu.Unlock()
	})

	return s
}

// State возвращает локальное состояние избранного для объявления
func (s *Synchronizer) State(id uuid.UUID) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[id]
}

// Cards возвращает карточки избранного из кэша
func (s *Synchronizer) Cards() []Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards := make([]Card, 0, len(s.cards))
	for _, c := range s.cards {
		cards = append(cards, c)
	}
	return cards
}

// Toggle переключает избранное. Локальное состояние меняется сразу,
// до ответа сервера; при ошибке изменение откатывается, и откат виден
// всем представлениям через общее хранилище. Ответ сервера — финальная
// истина, даже если она не совпала с оптимистичной догадкой.
func (s *Synchronizer) Toggle(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	prev := s.states[id]
	prevCard, hadCard := s.cards[id]
	optimistic := prev != StateFavorited
	s.applyLocked(id, optimistic)
	s.mu.Unlock()
	s.propagate(id, optimistic)

	state, err := s.repo.ToggleFavorite(ctx, id)
	if err != nil {
		// Откатываем и состояние, и карточку: при срыве снятия отметки
		// карточка должна вернуться в кэш
		s.mu.Lock()
		s.states[id] = prev
		if hadCard {
			s.cards[id] = prevCard
		} else {
			delete(s.cards, id)
		}
		s.persistLocked()
		s.mu.Unlock()
		s.propagate(id, prev == StateFavorited)
		return prev == StateFavorited, err
	}

	s.mu.Lock()
	s.applyLocked(id, state.IsFavorited)
	s.mu.Unlock()
	s.store.SetFavorite(id, state.IsFavorited, state.FavoritesCount)

	return state.IsFavorited, nil
}

// Refresh запрашивает реальное состояние у сервера и перезаписывает кэш
func (s *Synchronizer) Refresh(ctx context.Context, id uuid.UUID) (bool, error) {
	isFavorited, err := s.repo.CheckFavoriteStatus(ctx, id)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.applyLocked(id, isFavorited)
	s.mu.Unlock()
	s.propagate(id, isFavorited)

	return isFavorited, nil
}

// Sync загружает полный список избранного с сервера и замещает им кэш.
// Устаревшие локальные записи при этом исчезают.
func (s *Synchronizer) Sync(ctx context.Context) ([]Card, error) {
	favorites, err := s.repo.ListFavorites(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.states = make(map[uuid.UUID]State)
	s.cards = make(map[uuid.UUID]Card)
	for _, fav := range favorites {
		s.states[fav.AdID] = StateFavorited
		card := Card{AdID: fav.AdID, AddedAt: fav.CreatedAt}
		if fav.Ad != nil {
			card = cardFromAd(*fav.Ad, fav.CreatedAt)
		}
		s.cards[fav.AdID] = card
	}
	s.persistLocked()
	s.mu.Unlock()

	return s.Cards(), nil
}

// applyLocked обновляет состояние и карточку, затем сохраняет кэш.
// Вызывается под s.mu.
func (s *Synchronizer) applyLocked(id uuid.UUID, isFavorited bool) {
	if isFavorited {
		s.states[id] = StateFavorited
		if _, ok := s.cards[id]; !ok {
			card := Card{AdID: id, AddedAt: time.Now()}
			if ad, found := s.store.Get(id); found {
				card = cardFromAd(ad, card.AddedAt)
			}
			s.cards[id] = card
		}
	} else {
		s.states[id] = StateNotFavorited
		delete(s.cards, id)
	}
	s.persistLocked()
}

// propagate разносит изменение по общему хранилищу снимков, чтобы
// счетчик и сердечко обновились во всех представлениях
func (s *Synchronizer) propagate(id uuid.UUID, isFavorited bool) {
	ad, ok := s.store.Get(id)
	if !ok {
		return
	}

	count := ad.FavoritesCount
	if isFavorited && !ad.IsFavorited {
		count++
	} else if !isFavorited && ad.IsFavorited && count > 0 {
		count--
	}
	s.store.SetFavorite(id, isFavorited, count)
}

func (s *Synchronizer) persistLocked() {
	cards := make([]Card, 0, len(s.cards))
	for _, c := range s.cards {
		cards = append(cards, c)
	}

	data, err := json.Marshal(cards)
	if err != nil {
		return
	}
	s.storage.Set(wishlistKey, string(data))
}

func (s *Synchronizer) hydrate() {
	raw, ok := s.storage.Get(wishlistKey)
	if !ok || raw == "" {
		return
	}

	var cards []Card
	if err := json.Unmarshal([]byte(raw), &cards); err != nil {
		// Поврежденный кэш не фатален, сервер все равно главнее
		s.storage.Remove(wishlistKey)
		return
	}

	for _, c := range cards {
		s.cards[c.AdID] = c
		s.states[c.AdID] = StateFavorited
	}
}

func cardFromAd(ad models.Ad, addedAt time.Time) Card {
	card := Card{
		AdID:     ad.ID,
		Title:    ad.Title,
		AdType:   ad.AdType,
		Price:    ad.Price,
		Currency: ad.Currency,
		AddedAt:  addedAt,
	}
	if len(ad.Images) > 0 {
		card.ImageURL = ad.Images[0].URL
	}
	return card
}
