package mock

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Authorizer keeps a fixed admin set in memory.
type Authorizer struct {
	mu     sync.RWMutex
	admins map[common.Address]struct{}
}

// NewAuthorizer returns an authorizer granting admin rights to the given
// addresses.
func NewAuthorizer(admins ...common.Address) *Authorizer {
	a := &Authorizer{admins: make(map[common.Address]struct{}, len(admins))}
	for _, admin := range admins {
		a.admins[admin] = struct{}{}
	}
	return a
}

// Grant adds an admin.
func (a *Authorizer) Grant(admin common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.admins[admin] = struct{}{}
}

func (a *Authorizer) IsAdministrator(caller common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.admins[caller]
	return ok
}
