package storage

import (
	"encoding/json"
	"os"
	"sync"
)

// Storage — key-value хранилище клиентского состояния (токен, кэш избранного).
// Get возвращает false, если значения нет.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
}

// Memory — хранилище в памяти, используется в тестах
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *Memory) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

// File — хранилище в JSON-файле. Запись сквозная: каждое изменение
// сразу сохраняется на диск, чтобы состояние переживало перезапуск.
type File struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

func NewFile(path string) (*File, error) {
	f := &File{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, &f.values); err != nil {
		// Поврежденный файл не фатален, начинаем с чистого состояния
		f.values = make(map[string]string)
	}

	return f, nil
}

func (f *File) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *File) Set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	f.flush()
}

func (f *File) Remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	f.flush()
}

func (f *File) flush() {
	data, err := json.Marshal(f.values)
	if err != nil {
		return
	}
	_ = os.WriteFile(f.path, data, 0600)
}
