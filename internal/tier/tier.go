// Package tier defines the ranked service tiers that gate ticket visibility.
//
// A ticket carries the tier its requester selected; staff roles are bound to
// tiers, and a role may see and act on tickets at its own rank or below. The
// maximum-rank tier is "universal": its holders see every ticket no matter
// how ranks are numbered.
package tier

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrTierNotFound = errors.New("tier not found")
)

// RoleRef identifies a staff role on the chat platform.
type RoleRef string

// Tier is an immutable service class.
type Tier struct {
	Key         string  `json:"key"`
	DisplayName string  `json:"displayName"`
	RangeLabel  string  `json:"rangeLabel"`
	Rank        int     `json:"rank"`
	StaffRole   RoleRef `json:"staffRole"`
}

// Catalog holds the fixed tier set, resolved once at startup.
type Catalog struct {
	byKey     map[string]Tier
	ordered   []Tier // rank ascending
	universal Tier
}

// NewCatalog validates and indexes the tier set. Duplicate keys, duplicate
// ranks, and empty role references are configuration errors and fail here
// rather than at request time.
func NewCatalog(tiers []Tier) (*Catalog, error) {
	if len(tiers) == 0 {
		return nil, errors.New("tier catalog is empty")
	}

	byKey := make(map[string]Tier, len(tiers))
	byRank := make(map[int]string, len(tiers))
	for _, t := range tiers {
		if t.Key == "" {
			return nil, errors.New("tier with empty key")
		}
		if t.StaffRole == "" {
			return nil, fmt.Errorf("tier %q has no staff role", t.Key)
		}
		if _, dup := byKey[t.Key]; dup {
			return nil, fmt.Errorf("duplicate tier key %q", t.Key)
		}
		if other, dup := byRank[t.Rank]; dup {
			return nil, fmt.Errorf("tiers %q and %q share rank %d", other, t.Key, t.Rank)
		}
		byKey[t.Key] = t
		byRank[t.Rank] = t.Key
	}

	ordered := make([]Tier, len(tiers))
	copy(ordered, tiers)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	return &Catalog{
		byKey:     byKey,
		ordered:   ordered,
		universal: ordered[len(ordered)-1],
	}, nil
}

// Get resolves a tier by key.
func (c *Catalog) Get(key string) (Tier, error) {
	t, ok := c.byKey[key]
	if !ok {
		return Tier{}, fmt.Errorf("%w: %q", ErrTierNotFound, key)
	}
	return t, nil
}

// All returns the tiers ordered by rank ascending.
func (c *Catalog) All() []Tier {
	out := make([]Tier, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Universal returns the maximum-rank tier.
func (c *Catalog) Universal() Tier {
	return c.universal
}

// EligibleRoles returns the staff roles that may see a ticket of tier t:
// every role whose tier rank is >= t.Rank, and always the universal role.
// The universal tier is matched by key, not by rank comparison, so its
// omniscience survives any renumbering of the other tiers.
func (c *Catalog) EligibleRoles(t Tier) []RoleRef {
	var roles []RoleRef
	for _, candidate := range c.ordered {
		if candidate.Key == c.universal.Key || candidate.Rank >= t.Rank {
			roles = append(roles, candidate.StaffRole)
		}
	}
	return roles
}

// CanActOn reports whether an actor holding the given roles may claim or act
// on a ticket of tier t. Admin override bypasses the tier check entirely.
func (c *Catalog) CanActOn(actorRoles []RoleRef, t Tier, adminOverride bool) bool {
	if adminOverride {
		return true
	}
	held := make(map[RoleRef]bool, len(actorRoles))
	for _, r := range actorRoles {
		held[r] = true
	}
	for _, candidate := range c.ordered {
		if !held[candidate.StaffRole] {
			continue
		}
		if candidate.Key == c.universal.Key {
			return true
		}
		if candidate.Rank >= t.Rank {
			return true
		}
	}
	return false
}
