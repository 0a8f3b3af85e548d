package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"accounts/internal/domain/models"
	"accounts/internal/lib/idx"
	"accounts/internal/storage"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const userColumns = `id, username, email, fullname, pass_hash, avatar, cover_image, refresh_token, created_at, updated_at`

type Storage struct {
	db *sql.DB
}

// New returns a new instance of the Storage. Call Migrate before use on a
// fresh database.
func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", storagePath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

// Migrate applies all pending schema migrations.
func (s *Storage) Migrate() error {
	const op = "storage.sqlite.Migrate"

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("%s: source: %w", op, err)
	}

	drv, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("%s: driver: %w", op, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: up: %w", op, err)
	}

	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Close(_ context.Context) error {
	return s.db.Close()
}

func (s *Storage) SaveUser(ctx context.Context, u models.NewUser) (*models.User, error) {
	const op = "storage.sqlite.SaveUser"

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT INTO users (id, username, email, fullname, pass_hash, avatar, cover_image, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	user := &models.User{
		ID:         idx.NewAt(now),
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		Avatar:     u.Avatar,
		CoverImage: u.CoverImage,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err = stmt.ExecContext(ctx,
		user.ID, user.Username, user.Email, user.FullName, u.PassHash,
		user.Avatar, user.CoverImage, now, now,
	)
	if err != nil {
		if isConstraintError(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) User(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.sqlite.User"

	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", userID)

	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) UserProfile(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.sqlite.UserProfile"

	user, err := s.User(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return stripCredentials(user), nil
}

func (s *Storage) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.sqlite.UserByUsername"

	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)

	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return stripCredentials(user), nil
}

func (s *Storage) UserByLogin(ctx context.Context, username, email string) (*models.User, error) {
	const op = "storage.sqlite.UserByLogin"

	if username == "" && email == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE (? <> '' AND username = ?) OR (? <> '' AND email = ?) LIMIT 1",
		username, username, email, email,
	)

	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) UserExists(ctx context.Context, username, email string) (bool, error) {
	const op = "storage.sqlite.UserExists"

	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE (? <> '' AND username = ?) OR (? <> '' AND email = ?))",
		username, username, email, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

func (s *Storage) SetRefreshToken(ctx context.Context, userID, token string) error {
	const op = "storage.sqlite.SetRefreshToken"

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ?",
		nullString(token), time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := expectRow(res, storage.ErrUserNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) SwapRefreshToken(ctx context.Context, userID, expected, token string) error {
	const op = "storage.sqlite.SwapRefreshToken"

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ? AND refresh_token = ?",
		nullString(token), time.Now().UTC(), userID, expected,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := expectRow(res, storage.ErrTokenMismatch); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) UpdatePassword(ctx context.Context, userID string, passHash []byte) error {
	const op = "storage.sqlite.UpdatePassword"

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET pass_hash = ?, updated_at = ? WHERE id = ?",
		passHash, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := expectRow(res, storage.ErrUserNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) UpdateAccount(ctx context.Context, userID, fullName, email string) (*models.User, error) {
	const op = "storage.sqlite.UpdateAccount"

	user, err := s.updateUser(ctx, userID, "fullname = ?, email = ?", fullName, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) UpdateAvatar(ctx context.Context, userID, url string) (*models.User, error) {
	const op = "storage.sqlite.UpdateAvatar"

	user, err := s.updateUser(ctx, userID, "avatar = ?", url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) UpdateCoverImage(ctx context.Context, userID, url string) (*models.User, error) {
	const op = "storage.sqlite.UpdateCoverImage"

	user, err := s.updateUser(ctx, userID, "cover_image = ?", url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) SaveSubscription(ctx context.Context, subscriberID, channelID string) error {
	const op = "storage.sqlite.SaveSubscription"

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO subscriptions (subscriber_id, channel_id, created_at, updated_at) VALUES (?, ?, ?, ?)",
		subscriberID, channelID, now, now,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		if isConstraintError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrSubscriptionExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) DeleteSubscription(ctx context.Context, subscriberID, channelID string) error {
	const op = "storage.sqlite.DeleteSubscription"

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM subscriptions WHERE subscriber_id = ? AND channel_id = ?",
		subscriberID, channelID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := expectRow(res, storage.ErrSubscriptionNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) ChannelStats(ctx context.Context, channelID, viewerID string) (subscribers, subscribedTo int64, isSubscribed bool, err error) {
	const op = "storage.sqlite.ChannelStats"

	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM subscriptions WHERE channel_id = ?),
			(SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = ?),
			EXISTS(SELECT 1 FROM subscriptions WHERE subscriber_id = ? AND channel_id = ?)`,
		channelID, channelID, viewerID, channelID,
	).Scan(&subscribers, &subscribedTo, &isSubscribed)
	if err != nil {
		return 0, 0, false, fmt.Errorf("%s: %w", op, err)
	}

	return subscribers, subscribedTo, isSubscribed, nil
}

// updateUser applies a SET clause to one user and returns the result
// without credentials.
func (s *Storage) updateUser(ctx context.Context, userID, set string, args ...any) (*models.User, error) {
	args = append(args, time.Now().UTC(), userID)

	res, err := s.db.ExecContext(ctx, "UPDATE users SET "+set+", updated_at = ? WHERE id = ?", args...)
	if err != nil {
		if isConstraintError(err) {
			return nil, storage.ErrUserAlreadyExists
		}
		return nil, err
	}

	if err := expectRow(res, storage.ErrUserNotFound); err != nil {
		return nil, err
	}

	return s.UserProfile(ctx, userID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user    models.User
		refresh sql.NullString
	)

	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName, &user.PassHash,
		&user.Avatar, &user.CoverImage, &refresh, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}

	user.RefreshToken = refresh.String

	return &user, nil
}

func stripCredentials(u *models.User) *models.User {
	u.PassHash = nil
	u.RefreshToken = ""
	return u
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
