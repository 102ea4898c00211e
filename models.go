package main

import "time"

// Account states.
const (
	StateEnabled  = "enabled"
	StateDisabled = "disabled"
)

// Account represents a registered user of the catalog.
type Account struct {
	ID        int64
	Username  string
	Email     string
	Password  string // bcrypt hash, never plaintext
	State     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Novelist represents an author whose books are tracked in the catalog.
// Deleting a novelist deletes their books.
type Novelist struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Book belongs to exactly one novelist.
type Book struct {
	ID         int64
	Year       int
	Title      string
	NovelistID int64
}

// AccountFilter narrows account listings.
type AccountFilter struct {
	Offset int
	Limit  int
	State  string
}

// NovelistFilter narrows novelist listings. Name matches as a substring.
type NovelistFilter struct {
	Offset int
	Limit  int
	Name   string
}

// BookFilter narrows book listings.
type BookFilter struct {
	Offset     int
	Limit      int
	Title      string
	NovelistID int64
}
