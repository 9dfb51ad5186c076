package adstore

import (
	"sync"

	"github.com/google/uuid"
	"github.com/wafferli/wafferli-api/internal/models"
)

// EventKind — тип события изменения объявления
type EventKind int

const (
	EventUpdated EventKind = iota
	EventDeleted
)

// Event уведомляет подписчиков об изменении объявления в хранилище
type Event struct {
	Kind EventKind
	AdID uuid.UUID
}

// Store — общее хранилище снимков объявлений. Все представления
// (список моих объявлений, детали, избранное) читают из него, поэтому
// удаление или изменение объявления видно везде сразу.
type Store struct {
	mu      sync.RWMutex
	ads     map[uuid.UUID]models.Ad
	subs    map[int]func(Event)
	nextSub int
}

func New() *Store {
	return &Store{
		ads:  make(map[uuid.UUID]models.Ad),
		subs: make(map[int]func(Event)),
	}
}

// Put сохраняет снимок объявления и уведомляет подписчиков
func (s *Store) Put(ad models.Ad) {
	s.mu.Lock()
	s.ads[ad.ID] = ad
	s.mu.Unlock()

	s.notify(Event{Kind: EventUpdated, AdID: ad.ID})
}

// PutAll сохраняет пачку объявлений (результат загрузки списка)
func (s *Store) PutAll(ads []models.Ad) {
	s.mu.Lock()
	for _, ad := range ads {
		s.ads[ad.ID] = ad
	}
	s.mu.Unlock()

	for _, ad := range ads {
		s.notify(Event{Kind: EventUpdated, AdID: ad.ID})
	}
}

// Get возвращает снимок объявления, если он есть в хранилище
func (s *Store) Get(id uuid.UUID) (models.Ad, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ad, ok := s.ads[id]
	return ad, ok
}

// List возвращает все снимки из хранилища
func (s *Store) List() []models.Ad {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ads := make([]models.Ad, 0, len(s.ads))
	for _, ad := range s.ads {
		ads = append(ads, ad)
	}
	return ads
}

// Delete удаляет объявление из хранилища. Подписчики получают событие
// и убирают объявление из своих представлений.
func (s *Store) Delete(id uuid.UUID) {
	s.mu.Lock()
	_, ok := s.ads[id]
	delete(s.ads, id)
	s.mu.Unlock()

	if ok {
		s.notify(Event{Kind: EventDeleted, AdID: id})
	}
}

// SetFavorite обновляет статус избранного у снимка. Если снимка нет,
// ничего не делает: представление это объявление не показывает.
func (s *Store) SetFavorite(id uuid.UUID, isFavorited bool, count int) bool {
	s.mu.Lock()
	ad, ok := s.ads[id]
	if ok {
		ad.IsFavorited = isFavorited
		ad.FavoritesCount = count
		s.ads[id] = ad
	}
	s.mu.Unlock()

	if ok {
		s.notify(Event{Kind: EventUpdated, AdID: id})
	}
	return ok
}

// Subscribe регистрирует обработчик событий. Возвращает функцию отписки.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// notify вызывает обработчики вне блокировки, чтобы подписчик мог
// сам обращаться к хранилищу
func (s *Store) notify(ev Event) {
	s.mu.RLock()
	handlers := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		handlers = append(handlers, fn)
	}
	s.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
