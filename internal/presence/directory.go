package presence

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// OnlineUser is one authenticated, not yet disconnected connection.
type OnlineUser struct {
	ConnectionID string `json:"connectionId"`
	Email        string `json:"email"`
}

// Directory is the in-process set of online users, kept in admission order.
// All methods are safe for concurrent use and return copies.
type Directory struct {
	mu    sync.RWMutex
	users []OnlineUser
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{}
}

// Add admits user and returns the full listing including it. Adding a
// connection that is already listed replaces its entry.
func (d *Directory) Add(user OnlineUser) []OnlineUser {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.users = append(lo.Reject(d.users, func(u OnlineUser, _ int) bool {
		return u.ConnectionID == user.ConnectionID
	}), user)
	return slices.Clone(d.users)
}

// Remove drops the entry for connectionID and reports whether one existed.
func (d *Directory) Remove(connectionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, index, found := lo.FindIndexOf(d.users, func(u OnlineUser) bool {
		return u.ConnectionID == connectionID
	})
	if !found {
		return false
	}
	d.users = slices.Delete(d.users, index, index+1)
	return true
}

// List returns the current listing.
func (d *Directory) List() []OnlineUser {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.users)
}

// Len returns the number of online connections.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}
