// Package users maps between user names and UIDs.
package users

import (
	"fmt"
	"os/user"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 1024

// Lookup is the subset of os/user used here, swappable in tests.
type Lookup struct {
	ByID   func(uid string) (*user.User, error)
	ByName func(name string) (*user.User, error)
}

// System resolves against the host user database.
var System = Lookup{ByID: user.LookupId, ByName: user.Lookup}

// Cache memoizes UID to name resolution for one run. It is safe for
// concurrent use.
type Cache struct {
	lookup Lookup
	names  *lru.Cache[uint32, string]
}

// NewCache returns a Cache backed by lookup.
func NewCache(lookup Lookup) *Cache {
	names, _ := lru.New[uint32, string](defaultCacheSize)
	return &Cache{lookup: lookup, names: names}
}

// Name returns the user name for uid, or the decimal UID when the user
// database has no entry.
func (c *Cache) Name(uid uint32) string {
	if name, ok := c.names.Get(uid); ok {
		return name
	}
	id := strconv.FormatUint(uint64(uid), 10)
	name := id
	if u, err := c.lookup.ByID(id); err == nil && u.Username != "" {
		name = u.Username
	}
	c.names.Add(uid, name)
	return name
}

// UID resolves a user name. A name unknown to the user database that parses
// as a decimal uint32 is taken as a UID.
func (l Lookup) UID(name string) (uint32, error) {
	if u, err := l.ByName(name); err == nil {
		uid, err := strconv.ParseUint(u.Uid, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("user %q has non-numeric uid %q", name, u.Uid)
		}
		return uint32(uid), nil
	}
	if uid, err := strconv.ParseUint(name, 10, 32); err == nil {
		return uint32(uid), nil
	}
	return 0, fmt.Errorf("invalid user %q", name)
}
