package permission

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Grant gives an approver a permission level, until ExpiresAt when set.
type Grant struct {
	Approver  string     `json:"approver" yaml:"approver"`
	Level     Level      `json:"level" yaml:"level"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

// Active reports whether the grant is in force at the given time.
func (g *Grant) Active(at time.Time) bool {
	return g != nil && (g.ExpiresAt == nil || at.Before(*g.ExpiresAt))
}

// Validate checks the approver name and level.
func (g *Grant) Validate() error {
	if g == nil {
		return fmt.Errorf("grant was nil")
	}
	if ApproverKey(g.Approver) == "" {
		return fmt.Errorf("grant approver was empty")
	}
	if !g.Level.Valid() {
		return fmt.Errorf("grant %v: invalid level %v", g.Approver, g.Level)
	}
	return nil
}

// ApproverKey normalises approver names; they compare case-insensitively.
func ApproverKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Grants is a concurrency safe approver grant table.
type Grants struct {
	mux   sync.RWMutex
	items map[string]*Grant
}

// Put adds or replaces the grant of its approver.
func (g *Grants) Put(grant *Grant) error {
	if err := grant.Validate(); err != nil {
		return err
	}
	clone := *grant
	g.mux.Lock()
	defer g.mux.Unlock()
	if g.items == nil {
		g.items = make(map[string]*Grant)
	}
	g.items[ApproverKey(grant.Approver)] = &clone
	return nil
}

// Revoke removes the approver's grant and reports whether one existed.
func (g *Grants) Revoke(approver string) bool {
	g.mux.Lock()
	defer g.mux.Unlock()
	key := ApproverKey(approver)
	_, ok := g.items[key]
	delete(g.items, key)
	return ok
}

// Lookup returns the approver's grant, including an expired one.
func (g *Grants) Lookup(approver string) (*Grant, bool) {
	g.mux.RLock()
	defer g.mux.RUnlock()
	grant, ok := g.items[ApproverKey(approver)]
	if !ok {
		return nil, false
	}
	clone := *grant
	return &clone, true
}

// Prune removes grants expired at the given time and returns their approvers.
func (g *Grants) Prune(at time.Time) []string {
	g.mux.Lock()
	defer g.mux.Unlock()
	var ret []string
	for key, grant := range g.items {
		if !grant.Active(at) {
			ret = append(ret, grant.Approver)
			delete(g.items, key)
		}
	}
	sort.Strings(ret)
	return ret
}

// List returns grants ordered by approver key.
func (g *Grants) List() []*Grant {
	g.mux.RLock()
	defer g.mux.RUnlock()
	keys := make([]string, 0, len(g.items))
	for key := range g.items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	ret := make([]*Grant, 0, len(keys))
	for _, key := range keys {
		clone := *g.items[key]
		ret = append(ret, &clone)
	}
	return ret
}
