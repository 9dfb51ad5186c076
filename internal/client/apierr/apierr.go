package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind классифицирует ошибки API. От вида ошибки зависит политика
// обработки: авторизационные ошибки сбрасывают сессию, транзиентные — нет.
type Kind int

const (
	// KindTransient — сетевые сбои и ошибки 5xx; состояние сессии сохраняется
	KindTransient Kind = iota
	// KindAuthorization — 401/403; сессия недействительна
	KindAuthorization
	// KindNotFound — 404
	KindNotFound
	// KindValidation — 400, возможно с пополевыми сообщениями
	KindValidation
)

// Error представляет типизированную ошибку API
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Fields     map[string]string
	cause      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.cause != nil {
		return e.cause.Error()
	}
	return fmt.Sprintf("ошибка API (HTTP %d)", e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// FromResponse строит типизированную ошибку из HTTP-ответа сервера.
// Классификация по статус-кодам фиксирована в одном месте.
func FromResponse(statusCode int, body []byte) *Error {
	var payload struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	// Тело может быть и не JSON, тогда оставляем сообщение пустым
	_ = json.Unmarshal(body, &payload)

	e := &Error{
		StatusCode: statusCode,
		Message:    payload.Error,
		Fields:     payload.Fields,
	}

	switch statusCode {
	case 401, 403:
		e.Kind = KindAuthorization
	case 404:
		e.Kind = KindNotFound
	case 400:
		e.Kind = KindValidation
	default:
		e.Kind = KindTransient
	}

	return e
}

// Transient оборачивает транспортную ошибку (сеть, таймаут)
func Transient(err error) *Error {
	return &Error{Kind: KindTransient, cause: err}
}

// KindOf возвращает вид ошибки. Нетипизированные ошибки считаются
// транзиентными: неизвестный сбой не повод разлогинивать пользователя.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// IsAuthorization сообщает, является ли ошибка авторизационной (401/403)
func IsAuthorization(err error) bool {
	return err != nil && KindOf(err) == KindAuthorization
}

// IsNotFound сообщает, является ли ошибка отсутствием ресурса (404)
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// IsValidation сообщает, является ли ошибка ошибкой валидации (400)
func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// IsTransient сообщает, является ли ошибка транзиентной (сеть, 5xx)
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}
