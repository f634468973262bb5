// Package guard holds the external-collaborator gates the ledger consults
// before touching state: role authorization, emergency pause, and
// relay-aware caller identity resolution. None of these know anything
// about position accounting.
package guard

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Role names an authorization level checked before restricted operations.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleKeeper Role = "KEEPER"
)

// Roles is the authorization collaborator boundary.
type Roles interface {
	HasRole(addr common.Address, role Role) bool
}

// StaticRoles is a fixed grant table loaded from configuration.
// Governance of role assignment is out of scope; grants only change
// through explicit Grant/Revoke calls by the host.
type StaticRoles struct {
	mu     sync.RWMutex
	grants map[Role]map[common.Address]bool
}

func NewStaticRoles() *StaticRoles {
	return &StaticRoles{grants: make(map[Role]map[common.Address]bool)}
}

func (r *StaticRoles) Grant(role Role, addr common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.grants[role] == nil {
		r.grants[role] = make(map[common.Address]bool)
	}
	r.grants[role][addr] = true
}

func (r *StaticRoles) Revoke(role Role, addr common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants[role], addr)
}

func (r *StaticRoles) HasRole(addr common.Address, role Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grants[role][addr]
}

// Pause is the emergency-halt collaborator. Open/close/liquidate reject
// while it is engaged; recovery operations (payout claims) still run.
type Pause struct {
	mu     sync.RWMutex
	paused bool
}

func NewPause() *Pause { return &Pause{} }

func (p *Pause) IsPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

func (p *Pause) SetPaused(paused bool) {
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
}

// Resolver maps a raw transport caller to the logical account identifier.
// Trusted-forwarder pattern: when the raw caller is a registered relay and
// the call carries an appended sender tag, the tag is the logical caller.
// For any other caller the appended tag is ignored.
type Resolver struct {
	mu         sync.RWMutex
	forwarders map[common.Address]bool
}

func NewResolver() *Resolver {
	return &Resolver{forwarders: make(map[common.Address]bool)}
}

// RegisterForwarder marks an address as a trusted relay.
func (r *Resolver) RegisterForwarder(addr common.Address) {
	r.mu.Lock()
	r.forwarders[addr] = true
	r.mu.Unlock()
}

// Resolve returns the logical caller for a raw caller plus optional
// appended sender. Applied once at the entry of every public operation.
func (r *Resolver) Resolve(raw, appended common.Address) common.Address {
	r.mu.RLock()
	trusted := r.forwarders[raw]
	r.mu.RUnlock()

	if trusted && appended != (common.Address{}) {
		return appended
	}
	return raw
}
