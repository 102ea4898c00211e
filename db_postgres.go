package main

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init() error {
	// tables come from migrations; just verify connectivity
	return p.db.Ping()
}

// uniqueConstraintFields maps schema constraint names to the API field they
// protect. Unknown unique constraints classify as a generic conflict.
var uniqueConstraintFields = map[string]string{
	"accounts_username_key": "username",
	"accounts_email_key":    "email",
	"novelists_name_key":    "name",
	"books_title_key":       "title",
}

// classifyConflict turns SQLSTATE 23505 into a *ConflictError keyed by
// constraint name. Anything else passes through unchanged.
func classifyConflict(err error, valueFor func(field string) string) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	if pqErr.Code != "23505" { // unique_violation
		return err
	}
	field := uniqueConstraintFields[strings.ToLower(pqErr.Constraint)]
	conflict := &ConflictError{Field: field}
	if field != "" && valueFor != nil {
		conflict.Value = valueFor(field)
	}
	return conflict
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23503" // foreign_key_violation
}

func (p *PostgresDB) CreateAccount(ctx context.Context, account *Account) (*Account, error) {
	state := account.State
	if state == "" {
		state = StateEnabled
	}
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO accounts(username,email,password,state,created_at,updated_at) VALUES($1,$2,$3,$4,now(),now()) RETURNING id`,
		account.Username, account.Email, account.Password, state).Scan(&id)
	if err != nil {
		return nil, classifyConflict(err, account.fieldValue)
	}
	out := *account
	out.ID = id
	out.State = state
	return &out, nil
}

func (a *Account) fieldValue(field string) string {
	switch field {
	case "username":
		return a.Username
	case "email":
		return a.Email
	}
	return ""
}

func (p *PostgresDB) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccountRow(p.db.QueryRowContext(ctx,
		`SELECT id,username,email,password,state FROM accounts WHERE email = $1`, email))
}

func (p *PostgresDB) GetAccountByID(ctx context.Context, id int64) (*Account, error) {
	return scanAccountRow(p.db.QueryRowContext(ctx,
		`SELECT id,username,email,password,state FROM accounts WHERE id = $1`, id))
}

func scanAccountRow(row *sql.Row) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Username, &a.Email, &a.Password, &a.State); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (p *PostgresDB) ListAccounts(ctx context.Context, filter AccountFilter) ([]*Account, error) {
	query := `SELECT id,username,email,password,state FROM accounts`
	args := []interface{}{}
	if filter.State != "" {
		query += ` WHERE state = $1 ORDER BY id LIMIT $2 OFFSET $3`
		args = append(args, filter.State, filter.Limit, filter.Offset)
	} else {
		query += ` ORDER BY id LIMIT $1 OFFSET $2`
		args = append(args, filter.Limit, filter.Offset)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
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

func (p *PostgresDB) UpdateAccount(ctx context.Context, account *Account) (*Account, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE accounts SET username = $1, email = $2, password = $3, state = $4, updated_at = now() WHERE id = $5`,
		account.Username, account.Email, account.Password, account.State, account.ID)
	if err != nil {
		return nil, classifyConflict(err, account.fieldValue)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	out := *account
	return &out, nil
}

func (p *PostgresDB) DeleteAccount(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) CreateNovelist(ctx context.Context, novelist *Novelist) (*Novelist, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO novelists(name,created_at,updated_at) VALUES($1,now(),now()) RETURNING id`,
		novelist.Name).Scan(&id)
	if err != nil {
		return nil, classifyConflict(err, func(string) string { return novelist.Name })
	}
	out := *novelist
	out.ID = id
	return &out, nil
}

func (p *PostgresDB) GetNovelistByID(ctx context.Context, id int64) (*Novelist, error) {
	var n Novelist
	err := p.db.QueryRowContext(ctx, `SELECT id,name FROM novelists WHERE id = $1`, id).Scan(&n.ID, &n.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (p *PostgresDB) ListNovelists(ctx context.Context, filter NovelistFilter) ([]*Novelist, error) {
	query := `SELECT id,name FROM novelists`
	args := []interface{}{}
	if filter.Name != "" {
		query += ` WHERE name LIKE $1 ORDER BY id LIMIT $2 OFFSET $3`
		args = append(args, "%"+filter.Name+"%", filter.Limit, filter.Offset)
	} else {
		query += ` ORDER BY id LIMIT $1 OFFSET $2`
		args = append(args, filter.Limit, filter.Offset)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
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

func (p *PostgresDB) UpdateNovelist(ctx context.Context, novelist *Novelist) (*Novelist, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE novelists SET name = $1, updated_at = now() WHERE id = $2`, novelist.Name, novelist.ID)
	if err != nil {
		return nil, classifyConflict(err, func(string) string { return novelist.Name })
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	out := *novelist
	return &out, nil
}

func (p *PostgresDB) DeleteNovelist(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM novelists WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) CreateBook(ctx context.Context, book *Book) (*Book, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO books(year,title,novelist_id) VALUES($1,$2,$3) RETURNING id`,
		book.Year, book.Title, book.NovelistID).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, classifyConflict(err, func(string) string { return book.Title })
	}
	out := *book
	out.ID = id
	return &out, nil
}

func (p *PostgresDB) GetBookByID(ctx context.Context, id int64) (*Book, error) {
	var b Book
	err := p.db.QueryRowContext(ctx,
		`SELECT id,year,title,novelist_id FROM books WHERE id = $1`, id).Scan(&b.ID, &b.Year, &b.Title, &b.NovelistID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (p *PostgresDB) ListBooks(ctx context.Context, filter BookFilter) ([]*Book, error) {
	query := `SELECT id,year,title,novelist_id FROM books`
	var where []string
	args := []interface{}{}
	next := func(arg interface{}) string {
		args = append(args, arg)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Title != "" {
		where = append(where, `title LIKE `+next("%"+filter.Title+"%"))
	}
	if filter.NovelistID != 0 {
		where = append(where, `novelist_id = `+next(filter.NovelistID))
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY id LIMIT ` + next(filter.Limit) + ` OFFSET ` + next(filter.Offset)

	rows, err := p.db.QueryContext(ctx, query, args...)
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

func (p *PostgresDB) UpdateBook(ctx context.Context, book *Book) (*Book, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE books SET year = $1, title = $2, novelist_id = $3 WHERE id = $4`,
		book.Year, book.Title, book.NovelistID, book.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, classifyConflict(err, func(string) string { return book.Title })
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	out := *book
	return &out, nil
}

func (p *PostgresDB) DeleteBook(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
