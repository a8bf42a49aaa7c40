package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"
)

// SQLiteStore implements Store on an embedded SQLite database in WAL mode,
// following the teacher's internal/sync.SQLiteStore shape: one *sql.DB,
// pragmas set at open time, migrations applied before first use.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates a SQLiteStore backed by dsn (a file path, or ":memory:" for
// tests), applying pragmas and migrations before returning.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening store database", "dsn", dsn)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	if dsn == ":memory:" {
		// A single shared in-memory connection, or migrations/writes from
		// one *sql.DB handle would each see a different empty database.
		db.SetMaxOpenConns(1)
	}

	if err := setPragmas(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("store: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", "pragma", p.desc)
	}

	return nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, password_hash) VALUES (?, ?, ?)`,
		u.ID, u.Name, u.PasswordHash)
	if err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}

	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (User, error) {
	var u User

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, password_hash FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.PasswordHash)

	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}

	if err != nil {
		return User{}, fmt.Errorf("store: get user: %w", err)
	}

	return u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, password_hash FROM users`)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	var users []User

	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.PasswordHash); err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}

		users = append(users, u)
	}

	return users, rows.Err()
}

func (s *SQLiteStore) CreateComputer(ctx context.Context, c Computer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO computers (id, user_id, name, online) VALUES (?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.Online)
	if err != nil {
		return fmt.Errorf("store: create computer: %w", err)
	}

	return nil
}

func (s *SQLiteStore) GetComputer(ctx context.Context, id string) (Computer, error) {
	var c Computer

	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, online FROM computers WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserID, &c.Name, &c.Online)

	if errors.Is(err, sql.ErrNoRows) {
		return Computer{}, ErrNotFound
	}

	if err != nil {
		return Computer{}, fmt.Errorf("store: get computer: %w", err)
	}

	return c, nil
}

func (s *SQLiteStore) ListComputersByUser(ctx context.Context, userID string) ([]Computer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, online FROM computers WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list computers: %w", err)
	}
	defer rows.Close()

	var computers []Computer

	for rows.Next() {
		var c Computer
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Online); err != nil {
			return nil, fmt.Errorf("store: scan computer: %w", err)
		}

		computers = append(computers, c)
	}

	return computers, rows.Err()
}

func (s *SQLiteStore) SetComputerOnline(ctx context.Context, id string, online bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE computers SET online = ? WHERE id = ?`, online, id)
	if err != nil {
		return fmt.Errorf("store: set computer online: %w", err)
	}

	return requireRowAffected(res, ErrNotFound)
}

func (s *SQLiteStore) CreateFolder(ctx context.Context, f Folder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: create folder: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO folders (id, name, owner_user_id, origin_computer_id, is_synced, pending_operations)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.Name, f.OwnerUserID, f.OriginComputerID, f.IsSynced, f.PendingOperations)
	if err != nil {
		return fmt.Errorf("store: create folder: %w", err)
	}

	for _, computerID := range f.BackupComputerIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO folder_backups (folder_id, computer_id) VALUES (?, ?)`,
			f.ID, computerID)
		if err != nil {
			return fmt.Errorf("store: create folder backup: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetFolder(ctx context.Context, id string) (Folder, error) {
	var f Folder

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_user_id, origin_computer_id, is_synced, pending_operations
		 FROM folders WHERE id = ?`, id,
	).Scan(&f.ID, &f.Name, &f.OwnerUserID, &f.OriginComputerID, &f.IsSynced, &f.PendingOperations)

	if errors.Is(err, sql.ErrNoRows) {
		return Folder{}, ErrNotFound
	}

	if err != nil {
		return Folder{}, fmt.Errorf("store: get folder: %w", err)
	}

	backups, err := s.folderBackups(ctx, id)
	if err != nil {
		return Folder{}, err
	}

	f.BackupComputerIDs = backups

	return f, nil
}

func (s *SQLiteStore) folderBackups(ctx context.Context, folderID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT computer_id FROM folder_backups WHERE folder_id = ?`, folderID)
	if err != nil {
		return nil, fmt.Errorf("store: list folder backups: %w", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan folder backup: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (s *SQLiteStore) ListFoldersByUser(ctx context.Context, userID string) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, owner_user_id, origin_computer_id, is_synced, pending_operations
		 FROM folders WHERE owner_user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list folders: %w", err)
	}
	defer rows.Close()

	var folders []Folder

	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.OwnerUserID, &f.OriginComputerID, &f.IsSynced, &f.PendingOperations); err != nil {
			return nil, fmt.Errorf("store: scan folder: %w", err)
		}

		folders = append(folders, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range folders {
		backups, err := s.folderBackups(ctx, folders[i].ID)
		if err != nil {
			return nil, err
		}

		folders[i].BackupComputerIDs = backups
	}

	return folders, nil
}

func (s *SQLiteStore) SetFolderOrigin(ctx context.Context, id, originComputerID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE folders SET origin_computer_id = ? WHERE id = ?`, originComputerID, id)
	if err != nil {
		return fmt.Errorf("store: set folder origin: %w", err)
	}

	return requireRowAffected(res, ErrNotFound)
}

func (s *SQLiteStore) SetFolderSyncState(ctx context.Context, id string, isSynced bool, pendingOperations uint64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE folders SET is_synced = ?, pending_operations = ? WHERE id = ?`,
		isSynced, pendingOperations, id)
	if err != nil {
		return fmt.Errorf("store: set folder sync state: %w", err)
	}

	return requireRowAffected(res, ErrNotFound)
}

func (s *SQLiteStore) AddFolderBackup(ctx context.Context, folderID, computerID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO folder_backups (folder_id, computer_id) VALUES (?, ?)`,
		folderID, computerID)
	if err != nil {
		return fmt.Errorf("store: add folder backup: %w", err)
	}

	return nil
}

func (s *SQLiteStore) RemoveFolderBackup(ctx context.Context, folderID, computerID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM folder_backups WHERE folder_id = ? AND computer_id = ?`,
		folderID, computerID)
	if err != nil {
		return fmt.Errorf("store: remove folder backup: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	if err != nil {
		return fmt.Errorf("store: checkpoint: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireRowAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}

	if n == 0 {
		return notFound
	}

	return nil
}
