package badger

import "github.com/poiesic/knowbank/storage"

// NewMemoryRepository creates an in-memory repository for testing.
// Caller must close both the repository and the backend when done.
func NewMemoryRepository() (storage.Repository, *Backend, error) {
	backend, err := OpenBackend("", true, nil)
	if err != nil {
		return nil, nil, err
	}
	return NewRepository(backend), backend, nil
}
