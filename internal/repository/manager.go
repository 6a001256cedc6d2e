package repository

import (
	"sync"

	"mcsr-tracker/internal/api"
	"mcsr-tracker/internal/cache"

	"github.com/rs/zerolog"
)

// Manager hands out one MatchRepository per username and serializes access
// to it. Repositories themselves are not internally locked, so every caller
// goes through Acquire.
type Manager struct {
	client *api.MCSRClient
	store  *cache.Store
	logger zerolog.Logger

	mu    sync.Mutex
	users map[string]*userEntry
}

type userEntry struct {
	mu   sync.Mutex
	repo *MatchRepository
}

func NewManager(client *api.MCSRClient, store *cache.Store, logger zerolog.Logger) *Manager {
	return &Manager{
		client: client,
		store:  store,
		logger: logger,
		users:  map[string]*userEntry{},
	}
}

// Acquire returns the repository for username with its lock held. The
// release func must be called when the caller is done with the repository
// and any match records obtained from it.
func (m *Manager) Acquire(username string) (*MatchRepository, func()) {
	m.mu.Lock()
	entry, ok := m.users[username]
	if !ok {
		entry = &userEntry{repo: NewMatchRepository(username, m.client, m.store, m.logger)}
		m.users[username] = entry
	}
	m.mu.Unlock()

	entry.mu.Lock()
	return entry.repo, entry.mu.Unlock
}
