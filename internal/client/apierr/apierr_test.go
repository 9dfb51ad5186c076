package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromResponseClassifiesByStatus(t *testing.T) {
	assert.Equal(t, KindAuthorization, FromResponse(401, nil).Kind)
	assert.Equal(t, KindAuthorization, FromResponse(403, nil).Kind)
	assert.Equal(t, KindNotFound, FromResponse(404, nil).Kind)
	assert.Equal(t, KindValidation, FromResponse(400, nil).Kind)
	assert.Equal(t, KindTransient, FromResponse(500, nil).Kind)
	assert.Equal(t, KindTransient, FromResponse(503, nil).Kind)
	assert.Equal(t, KindTransient, FromResponse(429, nil).Kind)
}

func TestFromResponseParsesBody(t *testing.T) {
	body := []byte(`{"error": "Название обязательно", "fields": {"title": "required"}}`)
	e := FromResponse(400, body)

	assert.Equal(t, "Название обязательно", e.Message)
	assert.Equal(t, "required", e.Fields["title"])
	assert.Equal(t, "Название обязательно", e.Error())
}

func TestFromResponseToleratesNonJSONBody(t *testing.T) {
	e := FromResponse(502, []byte("Bad Gateway"))

	assert.Equal(t, KindTransient, e.Kind)
	assert.Contains(t, e.Error(), "502")
}

func TestTransientWrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	e := Transient(cause)

	assert.True(t, IsTransient(e))
	assert.ErrorIs(t, e, cause)
	assert.Equal(t, cause.Error(), e.Error())
}

func TestKindOfUnknownErrorIsTransient(t *testing.T) {
	// Неизвестная ошибка не должна разлогинивать пользователя
	assert.Equal(t, KindTransient, KindOf(errors.New("что-то пошло не так")))
	assert.False(t, IsAuthorization(errors.New("boom")))
}

func TestHelpersSeeThroughWrapping(t *testing.T) {
	e := FromResponse(401, []byte(`{"error": "Недействительный токен"}`))
	wrapped := fmt.Errorf("запрос профиля: %w", e)

	require.True(t, IsAuthorization(wrapped))
	assert.False(t, IsNotFound(wrapped))
}

func TestHelpersOnNil(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsAuthorization(nil))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsValidation(nil))
}
