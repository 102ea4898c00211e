package main

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
)

// DB is the persistence boundary. Lookups return (nil, nil) for "not found";
// mutations of an absent row return ErrNotFound; uniqueness violations come
// back as *ConflictError.
type DB interface {
	Init() error

	// Account operations
	CreateAccount(ctx context.Context, account *Account) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByID(ctx context.Context, id int64) (*Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]*Account, error)
	UpdateAccount(ctx context.Context, account *Account) (*Account, error)
	DeleteAccount(ctx context.Context, id int64) error

	// Novelist operations
	CreateNovelist(ctx context.Context, novelist *Novelist) (*Novelist, error)
	GetNovelistByID(ctx context.Context, id int64) (*Novelist, error)
	ListNovelists(ctx context.Context, filter NovelistFilter) ([]*Novelist, error)
	UpdateNovelist(ctx context.Context, novelist *Novelist) (*Novelist, error)
	DeleteNovelist(ctx context.Context, id int64) error

	// Book operations
	CreateBook(ctx context.Context, book *Book) (*Book, error)
	GetBookByID(ctx context.Context, id int64) (*Book, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]*Book, error)
	UpdateBook(ctx context.Context, book *Book) (*Book, error)
	DeleteBook(ctx context.Context, id int64) error
}

// Memory DB

type MemDB struct {
	mu        sync.Mutex
	accounts  map[int64]*Account
	novelists map[int64]*Novelist
	books     map[int64]*Book
	seq       int64
}

func NewMemoryDB() *MemDB {
	return &MemDB{
		accounts:  map[int64]*Account{},
		novelists: map[int64]*Novelist{},
		books:     map[int64]*Book{},
	}
}

func (m *MemDB) Init() error { return nil }

func (m *MemDB) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *MemDB) CreateAccount(ctx context.Context, account *Account) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Username == account.Username {
			return nil, &ConflictError{Field: "username", Value: account.Username}
		}
		if a.Email == account.Email {
			return nil, &ConflictError{Field: "email", Value: account.Email}
		}
	}
	stored := *account
	stored.ID = m.nextID()
	if stored.State == "" {
		stored.State = StateEnabled
	}
	m.accounts[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (m *MemDB) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email {
			out := *a
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemDB) GetAccountByID(ctx context.Context, id int64) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		out := *a
		return &out, nil
	}
	return nil, nil
}

func (m *MemDB) ListAccounts(ctx context.Context, filter AccountFilter) ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Account
	for _, a := range m.accounts {
		if filter.State != "" && a.State != filter.State {
			continue
		}
		out := *a
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return window(all, filter.Offset, filter.Limit), nil
}

func (m *MemDB) UpdateAccount(ctx context.Context, account *Account) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.accounts[account.ID]
	if !ok {
		return nil, ErrNotFound
	}
	for id, a := range m.accounts {
		if id == account.ID {
			continue
		}
		if a.Username == account.Username {
			return nil, &ConflictError{Field: "username", Value: account.Username}
		}
		if a.Email == account.Email {
			return nil, &ConflictError{Field: "email", Value: account.Email}
		}
	}
	*existing = *account
	out := *existing
	return &out, nil
}

func (m *MemDB) DeleteAccount(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *MemDB) CreateNovelist(ctx context.Context, novelist *Novelist) (*Novelist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.novelists {
		if n.Name == novelist.Name {
			return nil, &ConflictError{Field: "name", Value: novelist.Name}
		}
	}
	stored := *novelist
	stored.ID = m.nextID()
	m.novelists[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (m *MemDB) GetNovelistByID(ctx context.Context, id int64) (*Novelist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.novelists[id]; ok {
		out := *n
		return &out, nil
	}
	return nil, nil
}

func (m *MemDB) ListNovelists(ctx context.Context, filter NovelistFilter) ([]*Novelist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Novelist
	for _, n := range m.novelists {
		if filter.Name != "" && !strings.Contains(n.Name, filter.Name) {
			continue
		}
		out := *n
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return window(all, filter.Offset, filter.Limit), nil
}

func (m *MemDB) UpdateNovelist(ctx context.Context, novelist *Novelist) (*Novelist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.novelists[novelist.ID]
	if !ok {
		return nil, ErrNotFound
	}
	for id, n := range m.novelists {
		if id != novelist.ID && n.Name == novelist.Name {
			return nil, &ConflictError{Field: "name", Value: novelist.Name}
		}
	}
	*existing = *novelist
	out := *existing
	return &out, nil
}

func (m *MemDB) DeleteNovelist(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.novelists[id]; !ok {
		return ErrNotFound
	}
	delete(m.novelists, id)
	for bookID, b := range m.books {
		if b.NovelistID == id {
			delete(m.books, bookID)
		}
	}
	return nil
}

func (m *MemDB) CreateBook(ctx context.Context, book *Book) (*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.Title == book.Title {
			return nil, &ConflictError{Field: "title", Value: book.Title}
		}
	}
	if _, ok := m.novelists[book.NovelistID]; !ok {
		return nil, ErrNotFound
	}
	stored := *book
	stored.ID = m.nextID()
	m.books[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (m *MemDB) GetBookByID(ctx context.Context, id int64) (*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.books[id]; ok {
		out := *b
		return &out, nil
	}
	return nil, nil
}

func (m *MemDB) ListBooks(ctx context.Context, filter BookFilter) ([]*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Book
	for _, b := range m.books {
		if filter.Title != "" && !strings.Contains(b.Title, filter.Title) {
			continue
		}
		if filter.NovelistID != 0 && b.NovelistID != filter.NovelistID {
			continue
		}
		out := *b
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return window(all, filter.Offset, filter.Limit), nil
}

func (m *MemDB) UpdateBook(ctx context.Context, book *Book) (*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.books[book.ID]
	if !ok {
		return nil, ErrNotFound
	}
	for id, b := range m.books {
		if id != book.ID && b.Title == book.Title {
			return nil, &ConflictError{Field: "title", Value: book.Title}
		}
	}
	if _, ok := m.novelists[book.NovelistID]; !ok {
		return nil, ErrNotFound
	}
	*existing = *book
	out := *existing
	return &out, nil
}

func (m *MemDB) DeleteBook(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return ErrNotFound
	}
	delete(m.books, id)
	return nil
}

func window[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }

// SQLite DB. Development adapter: uniqueness is pre-checked with a lookup
// instead of classifying driver errors, which SQLite does not report by
// constraint name.
type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	// enforce foreign keys on every pooled connection
	d, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS accounts (id INTEGER PRIMARY KEY AUTOINCREMENT, username TEXT UNIQUE NOT NULL, email TEXT UNIQUE NOT NULL, password TEXT NOT NULL, state TEXT NOT NULL DEFAULT 'enabled', created_at TEXT, updated_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS novelists (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT UNIQUE NOT NULL, created_at TEXT, updated_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS books (id INTEGER PRIMARY KEY AUTOINCREMENT, year INTEGER NOT NULL, title TEXT UNIQUE NOT NULL, novelist_id INTEGER NOT NULL REFERENCES novelists(id) ON DELETE CASCADE);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteDB) accountConflict(ctx context.Context, account *Account) (*ConflictError, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM accounts WHERE username = ? AND id != ?`, account.Username, account.ID).Scan(&id)
	if err == nil {
		return &ConflictError{Field: "username", Value: account.Username}, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT id FROM accounts WHERE email = ? AND id != ?`, account.Email, account.ID).Scan(&id)
	if err == nil {
		return &ConflictError{Field: "email", Value: account.Email}, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	return nil, nil
}

func (s *SQLiteDB) CreateAccount(ctx context.Context, account *Account) (*Account, error) {
	if conflict, err := s.accountConflict(ctx, account); err != nil {
		return nil, err
	} else if conflict != nil {
		return nil, conflict
	}
	state := account.State
	if state == "" {
		state = StateEnabled
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO accounts(username,email,password,state,created_at,updated_at) VALUES(?,?,?,?,datetime('now'),datetime('now'))`,
		account.Username, account.Email, account.Password, state)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	out := *account
	out.ID = id
	out.State = state
	return &out, nil
}

func (s *SQLiteDB) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `SELECT id,username,email,password,state FROM accounts WHERE email = ?`, email))
}

func (s *SQLiteDB) GetAccountByID(ctx context.Context, id int64) (*Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `SELECT id,username,email,password,state FROM accounts WHERE id = ?`, id))
}

func (s *SQLiteDB) scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Username, &a.Email, &a.Password, &a.State); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteDB) ListAccounts(ctx context.Context, filter AccountFilter) ([]*Account, error) {
	query := `SELECT id,username,email,password,state FROM accounts`
	args := []interface{}{}
	if filter.State != "" {
		query += ` WHERE state = ?`
		args = append(args, filter.State)
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []*Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Username, &a.Email, &a.Password, &a.State); err != nil {
			return nil, err
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

func (s *SQLiteDB) UpdateAccount(ctx context.Context, account *Account) (*Account, error) {
	if conflict, err := s.accountConflict(ctx, account); err != nil {
		return nil, err
	} else if conflict != nil {
		return nil, conflict
	}
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET username = ?, email = ?, password = ?, state = ?, updated_at = datetime('now') WHERE id = ?`,
		account.Username, account.Email, account.Password, account.State, account.ID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	out := *account
	return &out, nil
}

func (s *SQLiteDB) DeleteAccount(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) CreateNovelist(ctx context.Context, novelist *Novelist) (*Novelist, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM novelists WHERE name = ?`, novelist.Name).Scan(&id)
	if err == nil {
		return nil, &ConflictError{Field: "name", Value: novelist.Name}
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO novelists(name,created_at,updated_at) VALUES(?,datetime('now'),datetime('now'))`, novelist.Name)
	if err != nil {
		return nil, err
	}
	newID, _ := res.LastInsertId()
	out := *novelist
	out.ID = newID
	return &out, nil
}

func (s *SQLiteDB) GetNovelistByID(ctx context.Context, id int64) (*Novelist, error) {
	var n Novelist
	err := s.db.QueryRowContext(ctx, `SELECT id,name FROM novelists WHERE id = ?`, id).Scan(&n.ID, &n.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *SQLiteDB) ListNovelists(ctx context.Context, filter NovelistFilter) ([]*Novelist, error) {
	query := `SELECT id,name FROM novelists`
	args := []interface{}{}
	if filter.Name != "" {
		query += ` WHERE name LIKE ?`
		args = append(args, "%"+filter.Name+"%")
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var novelists []*Novelist
	for rows.Next() {
		var n Novelist
		if err := rows.Scan(&n.ID, &n.Name); err != nil {
			return nil, err
		}
		novelists = append(novelists, &n)
	}
	return novelists, rows.Err()
}

func (s *SQLiteDB) UpdateNovelist(ctx context.Context, novelist *Novelist) (*Novelist, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM novelists WHERE name = ? AND id != ?`, novelist.Name, novelist.ID).Scan(&id)
	if err == nil {
		return nil, &ConflictError{Field: "name", Value: novelist.Name}
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE novelists SET name = ?, updated_at = datetime('now') WHERE id = ?`, novelist.Name, novelist.ID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	out := *novelist
	return &out, nil
}

func (s *SQLiteDB) DeleteNovelist(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM novelists WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) CreateBook(ctx context.Context, book *Book) (*Book, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM books WHERE title = ?`, book.Title).Scan(&id)
	if err == nil {
		return nil, &ConflictError{Field: "title", Value: book.Title}
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO books(year,title,novelist_id) VALUES(?,?,?)`, book.Year, book.Title, book.NovelistID)
	if err != nil {
		return nil, err
	}
	newID, _ := res.LastInsertId()
	out := *book
	out.ID = newID
	return &out, nil
}

func (s *SQLiteDB) GetBookByID(ctx context.Context, id int64) (*Book, error) {
	var b Book
	err := s.db.QueryRowContext(ctx, `SELECT id,year,title,novelist_id FROM books WHERE id = ?`, id).Scan(&b.ID, &b.Year, &b.Title, &b.NovelistID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *SQLiteDB) ListBooks(ctx context.Context, filter BookFilter) ([]*Book, error) {
	query := `SELECT id,year,title,novelist_id FROM books`
	args := []interface{}{}
	var where []string
	if filter.Title != "" {
		where = append(where, `title LIKE ?`)
		args = append(args, "%"+filter.Title+"%")
	}
	if filter.NovelistID != 0 {
		where = append(where, `novelist_id = ?`)
		args = append(args, filter.NovelistID)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var books []*Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Year, &b.Title, &b.NovelistID); err != nil {
			return nil, err
		}
		books = append(books, &b)
	}
	return books, rows.Err()
}

func (s *SQLiteDB) UpdateBook(ctx context.Context, book *Book) (*Book, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM books WHERE title = ? AND id != ?`, book.Title, book.ID).Scan(&id)
	if err == nil {
		return nil, &ConflictError{Field: "title", Value: book.Title}
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE books SET year = ?, title = ?, novelist_id = ? WHERE id = ?`, book.Year, book.Title, book.NovelistID, book.ID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	out := *book
	return &out, nil
}

func (s *SQLiteDB) DeleteBook(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
