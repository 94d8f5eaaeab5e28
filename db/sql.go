package db

import (
	"context"
	"embed"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/marcus-crane/invitation/guestbook"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect pairs a database/sql driver with the goose dialect and migration
// directory used to build its schema.
type Dialect struct {
	Name          string
	Driver        string
	Goose         goose.Dialect
	MigrationsDir string
}

var (
	Sqlite   = Dialect{Name: "sqlite", Driver: "sqlite", Goose: goose.DialectSQLite3, MigrationsDir: "sqlite"}
	Postgres = Dialect{Name: "postgres", Driver: "postgres", Goose: goose.DialectPostgres, MigrationsDir: "postgres"}
	Mysql    = Dialect{Name: "mysql", Driver: "mysql", Goose: goose.DialectMySQL, MigrationsDir: "mysql"}
)

func DialectFor(name string) (Dialect, error) {
	switch name {
	case Sqlite.Name:
		return Sqlite, nil
	case Postgres.Name:
		return Postgres, nil
	case Mysql.Name:
		return Mysql, nil
	}
	return Dialect{}, fmt.Errorf("unknown sql dialect %q", name)
}

type SQLStore struct {
	DB      *sqlx.DB
	dialect Dialect
	feed    notifier
}

// wishRow mirrors the wishes table. created_at_ms is filled in by the
// database default, never by us.
type wishRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Message     string `db:"message"`
	CreatedAtMs int64  `db:"created_at_ms"`
}

func (r wishRow) toWish() guestbook.Wish {
	return guestbook.Wish{
		ID:        r.ID,
		Name:      r.Name,
		Message:   r.Message,
		CreatedAt: fromMillis(r.CreatedAtMs),
	}
}

func NewSQLStore(dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sqlx.Connect(dialect.Driver, dsn)
	if err != nil {
		return nil, err
	}
	if dialect.Name == Sqlite.Name {
		// sqlite only tolerates one writer at a time
		db.SetMaxOpenConns(1)
	}
	return &SQLStore{DB: db, dialect: dialect}, nil
}

// NewSQLStoreFromDB wraps an existing connection, which is handy for tests
// that bring their own driver.
func NewSQLStoreFromDB(db *sqlx.DB, dialect Dialect) *SQLStore {
	return &SQLStore{DB: db, dialect: dialect}
}

func (s *SQLStore) ApplyMigrations(migrations embed.FS) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(string(s.dialect.Goose)); err != nil {
		return err
	}

	if err := goose.Up(s.DB.DB, s.dialect.MigrationsDir); err != nil {
		return err
	}

	return nil
}

func (s *SQLStore) Append(ctx context.Context, name, message string) (guestbook.Wish, error) {
	id := uuid.NewString()

	_, err := s.DB.ExecContext(ctx,
		s.DB.Rebind("INSERT INTO wishes (id, name, message) VALUES (?, ?, ?)"),
		id, name, message)
	if err != nil {
		return guestbook.Wish{}, fmt.Errorf("failed to insert wish: %w", err)
	}

	var row wishRow
	err = s.DB.GetContext(ctx, &row,
		s.DB.Rebind("SELECT id, name, message, created_at_ms FROM wishes WHERE id = ?"),
		id)
	if err != nil {
		return guestbook.Wish{}, fmt.Errorf("failed to read back wish: %w", err)
	}

	s.feed.notify()
	return row.toWish(), nil
}

func (s *SQLStore) Latest(ctx context.Context, limit int) ([]guestbook.Wish, error) {
	rows := []wishRow{}
	err := s.DB.SelectContext(ctx, &rows,
		s.DB.Rebind("SELECT id, name, message, created_at_ms FROM wishes ORDER BY created_at_ms DESC, seq DESC LIMIT ?"),
		limit)
	if err != nil {
		return nil, err
	}
	wishes := make([]guestbook.Wish, 0, len(rows))
	for _, r := range rows {
		wishes = append(wishes, r.toWish())
	}
	return wishes, nil
}

// Changes only sees writes made through this process.
func (s *SQLStore) Changes(ctx context.Context) (<-chan struct{}, error) {
	return s.feed.subscribe(ctx), nil
}

func (s *SQLStore) Close() error {
	return s.DB.Close()
}
