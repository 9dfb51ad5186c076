package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrEmailTaken возвращается при попытке регистрации с занятым email
var ErrEmailTaken = errors.New("email уже зарегистрирован")

// User представляет пользователя в системе
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Name         string
	Phone        string
	Bio          string
	AvatarURL    string
	Location     string
	Locale       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  time.Time
	IsActive     bool
}

// CreateUser создает нового пользователя с email и хешем пароля
func CreateUser(email, passwordHash, name, locale string) (*User, error) {
	ctx, cancel := GetContext()
	defer cancel()

	// Начинаем транзакцию
	tx, err := Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx) // Откатываем транзакцию в случае ошибки

	var userID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, name, locale, last_login_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		RETURNING id
	`, email, passwordHash, name, locale).Scan(&userID)

	if err != nil {
		// 23505 — нарушение уникальности (email занят)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("ошибка при создании пользователя: %w", err)
	}

	// Создаем запись в user_sessions
	_, err = tx.Exec(ctx, `
		INSERT INTO user_sessions (user_id, login_time)
		VALUES ($1, CURRENT_TIMESTAMP)
	`, userID)

	if err != nil {
		return nil, fmt.Errorf("ошибка при создании сессии пользователя: %w", err)
	}

	// Получаем пользователя
	user, err := getUserByID(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении пользователя: %w", err)
	}

	// Фиксируем транзакцию
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}

	return user, nil
}

// GetUserByEmail получает пользователя по email (вместе с хешем пароля)
func GetUserByEmail(email string) (*User, error) {
	ctx, cancel := GetContext()
	defer cancel()

	var userID uuid.UUID
	err := Pool.QueryRow(ctx, `
		SELECT id FROM users WHERE email = $1 AND is_active = true
	`, email).Scan(&userID)

	if err != nil {
		return nil, err
	}

	return GetUserByID(userID)
}

// RecordLogin обновляет время последнего входа и создает запись сессии
func RecordLogin(userID uuid.UUID) error {
	ctx, cancel := GetContext()
	defer cancel()

	tx, err := Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE users
		SET last_login_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`, userID)

	if err != nil {
		return fmt.Errorf("ошибка при обновлении времени входа пользователя: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_sessions (user_id, login_time)
		VALUES ($1, CURRENT_TIMESTAMP)
	`, userID)

	if err != nil {
		return fmt.Errorf("ошибка при создании сессии пользователя: %w", err)
	}

	return tx.Commit(ctx)
}

// GetUserByID получает пользователя по ID
func GetUserByID(userID uuid.UUID) (*User, error) {
	ctx, cancel := GetContext()
	defer cancel()

	return scanUser(Pool.QueryRow(ctx, `
		SELECT id, email, password_hash, name, phone, bio, avatar_url,
			   location, locale, created_at, updated_at, last_login_at, is_active
		FROM users WHERE id = $1
	`, userID))
}

// getUserByID получает пользователя по ID внутри транзакции
func getUserByID(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*User, error) {
	return scanUser(tx.QueryRow(ctx, `
		SELECT id, email, password_hash, name, phone, bio, avatar_url,
			   location, locale, created_at, updated_at, last_login_at, is_active
		FROM users WHERE id = $1
	`, userID))
}

// scanUser сканирует строку пользователя с учетом nullable полей
func scanUser(row pgx.Row) (*User, error) {
	var user User
	var name, phone, bio, avatarURL, location, locale pgtype.Text

	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &name,
		&phone, &bio, &avatarURL, &location, &locale,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt, &user.IsActive,
	)

	if err != nil {
		return nil, err
	}

	// Преобразуем nullable поля
	if name.Valid {
		user.Name = name.String
	}
	if phone.Valid {
		user.Phone = phone.String
	}
	if bio.Valid {
		user.Bio = bio.String
	}
	if avatarURL.Valid {
		user.AvatarURL = avatarURL.String
	}
	if location.Valid {
		user.Location = location.String
	}
	if locale.Valid {
		user.Locale = locale.String
	}

	return &user, nil
}
