package server

import (
	"strings"
	"sync"
)

// User is a demo account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
}

// Directory is an in-memory user table keyed by lower-cased email.
type Directory struct {
	mu      sync.RWMutex
	byEmail map[string]User
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{byEmail: make(map[string]User)}
}

// Put inserts or replaces u.
func (d *Directory) Put(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byEmail[strings.ToLower(u.Email)] = u
}

// Lookup finds a user by email, ignoring case.
func (d *Directory) Lookup(email string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	return u, ok
}
