package main

import (
	"net/mail"
	"unicode/utf8"
)

const (
	usernameMinLen = 5
	usernameMaxLen = 15
	passwordMinLen = 10
	titleMinLen    = 5
)

func validUsername(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= usernameMinLen && n <= usernameMaxLen
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func validPassword(s string) bool {
	return utf8.RuneCountInString(s) >= passwordMinLen
}

func validState(s string) bool {
	return s == StateEnabled || s == StateDisabled
}

func validYear(y int) bool {
	return y >= 1000 && y <= 9999
}

func validTitle(s string) bool {
	return utf8.RuneCountInString(s) >= titleMinLen
}

type accountRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *accountRequest) validate() ValidationErrors {
	var errs ValidationErrors
	if !validUsername(r.Username) {
		errs = append(errs, FieldError{Field: "username", Message: "must be between 5 and 15 characters"})
	}
	if !validEmail(r.Email) {
		errs = append(errs, FieldError{Field: "email", Message: "must be a valid email address"})
	}
	if !validPassword(r.Password) {
		errs = append(errs, FieldError{Field: "password", Message: "must be at least 10 characters"})
	}
	return errs
}

// accountUpdate is a sparse patch: nil fields stay untouched.
type accountUpdate struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	State    *string `json:"state"`
}

func (r *accountUpdate) validate() ValidationErrors {
	var errs ValidationErrors
	if r.Username != nil && !validUsername(*r.Username) {
		errs = append(errs, FieldError{Field: "username", Message: "must be between 5 and 15 characters"})
	}
	if r.Email != nil && !validEmail(*r.Email) {
		errs = append(errs, FieldError{Field: "email", Message: "must be a valid email address"})
	}
	if r.Password != nil && !validPassword(*r.Password) {
		errs = append(errs, FieldError{Field: "password", Message: "must be at least 10 characters"})
	}
	if r.State != nil && !validState(*r.State) {
		errs = append(errs, FieldError{Field: "state", Message: "must be enabled or disabled"})
	}
	return errs
}

// applyTo merges the present fields onto the account. The password is
// re-hashed by the caller before this point.
func (r *accountUpdate) applyTo(account *Account) {
	if r.Username != nil {
		account.Username = *r.Username
	}
	if r.Email != nil {
		account.Email = *r.Email
	}
	if r.Password != nil {
		account.Password = *r.Password
	}
	if r.State != nil {
		account.State = *r.State
	}
}

type novelistRequest struct {
	Name string `json:"name"`
}

func (r *novelistRequest) validate() ValidationErrors {
	var errs ValidationErrors
	if r.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "is required"})
	}
	return errs
}

type novelistUpdate struct {
	Name *string `json:"name"`
}

func (r *novelistUpdate) validate() ValidationErrors {
	var errs ValidationErrors
	if r.Name != nil && *r.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "must not be empty"})
	}
	return errs
}

type bookRequest struct {
	Year       int    `json:"year"`
	Title      string `json:"title"`
	NovelistID int64  `json:"novelistId"`
}

func (r *bookRequest) validate() ValidationErrors {
	var errs ValidationErrors
	if !validYear(r.Year) {
		errs = append(errs, FieldError{Field: "year", Message: "must be a four-digit year"})
	}
	if !validTitle(r.Title) {
		errs = append(errs, FieldError{Field: "title", Message: "must be at least 5 characters"})
	}
	if r.NovelistID <= 0 {
		errs = append(errs, FieldError{Field: "novelistId", Message: "must be a positive id"})
	}
	return errs
}

type bookUpdate struct {
	Year       *int    `json:"year"`
	Title      *string `json:"title"`
	NovelistID *int64  `json:"novelistId"`
}

func (r *bookUpdate) validate() ValidationErrors {
	var errs ValidationErrors
	if r.Year != nil && !validYear(*r.Year) {
		errs = append(errs, FieldError{Field: "year", Message: "must be a four-digit year"})
	}
	if r.Title != nil && !validTitle(*r.Title) {
		errs = append(errs, FieldError{Field: "title", Message: "must be at least 5 characters"})
	}
	if r.NovelistID != nil && *r.NovelistID <= 0 {
		errs = append(errs, FieldError{Field: "novelistId", Message: "must be a positive id"})
	}
	return errs
}

func (r *bookUpdate) applyTo(book *Book) {
	if r.Year != nil {
		book.Year = *r.Year
	}
	if r.Title != nil {
		book.Title = *r.Title
	}
	if r.NovelistID != nil {
		book.NovelistID = *r.NovelistID
	}
}
