// Package ticket implements the tiered ticket lifecycle: creation, claiming,
// unclaiming, closing, and completion tracking, with channel access managed
// through the platform gateway.
package ticket

import (
	"errors"
	"fmt"
	"time"

	"github.com/kmills/brokerdesk/internal/intake"
	"github.com/kmills/brokerdesk/internal/tier"
)

var (
	// ErrTicketNotFound is returned when no ticket is registered for a channel.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrDuplicateChannel is returned when a channel already has a ticket.
	ErrDuplicateChannel = errors.New("channel already has a ticket")

	// ErrAlreadyClaimed is returned when a claim races with an existing one.
	ErrAlreadyClaimed = errors.New("ticket already claimed")

	// ErrNotClaimed is returned when an unclaim targets an unclaimed ticket.
	ErrNotClaimed = errors.New("ticket is not claimed")

	// ErrForbidden is returned when the actor lacks the rank or identity
	// required for the operation.
	ErrForbidden = errors.New("not permitted for this ticket")
)

// AlreadyClaimedError carries the current claimant so callers can surface
// who holds the ticket.
type AlreadyClaimedError struct {
	ClaimantID string
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("ticket already claimed by %s", e.ClaimantID)
}

func (e *AlreadyClaimedError) Is(target error) bool {
	return target == ErrAlreadyClaimed
}

// Ticket is the record for one active support or brokerage request. A ticket
// is keyed by the channel created for it.
type Ticket struct {
	ChannelRef  string            `json:"channelRef"`
	RequesterID string            `json:"requesterId"`
	CreatedAt   time.Time         `json:"createdAt"`
	TierKey     string            `json:"tierKey"`
	Kind        intake.Kind       `json:"kind"`
	Payload     map[string]string `json:"payload,omitempty"`
	ClaimantID  string            `json:"claimantId,omitempty"`
}

// Claimed reports whether the ticket currently has a claimant.
func (t *Ticket) Claimed() bool { return t.ClaimantID != "" }

// Actor identifies whoever is invoking a ticket operation, with the roles
// used for rank checks.
type Actor struct {
	ID    string         `json:"id"`
	Roles []tier.RoleRef `json:"roles"`
	Admin bool           `json:"admin"`
}

// Store holds active tickets and their claims. Implementations must be safe
// for concurrent use.
type Store interface {
	// Register adds a new ticket. Returns ErrDuplicateChannel if the channel
	// already has one.
	Register(t *Ticket) error

	// Get returns the ticket for a channel, or ErrTicketNotFound.
	Get(channelRef string) (*Ticket, error)

	// SetClaim records staffID as the claimant if and only if the ticket
	// exists and is unclaimed. The check and the write are atomic. Returns
	// ErrTicketNotFound, or an *AlreadyClaimedError naming the holder.
	SetClaim(channelRef, staffID string) error

	// ClearClaim removes the claim on a ticket. Returns ErrNotClaimed if
	// there is none, ErrTicketNotFound if the ticket is gone.
	ClearClaim(channelRef string) error

	// Remove deletes the ticket and any claim on it. Removing an absent
	// ticket is a no-op.
	Remove(channelRef string)

	// List returns all active tickets ordered by creation time.
	List() []*Ticket

	// Len returns the number of active tickets.
	Len() int

	// Export returns copies of the ticket and claim maps for snapshotting.
	Export() (tickets map[string]*Ticket, claims map[string]string)

	// Import replaces store contents from a snapshot. Claims naming a
	// channel without a ticket are dropped.
	Import(tickets map[string]*Ticket, claims map[string]string)
}
