// Package platform talks to the chat platform's channel API.
//
// The ticket engine only depends on the Gateway interface; Client is the
// REST implementation used in production, and tests substitute mocks.
package platform

import (
	"context"
	"errors"
)

// ErrGateway is the sentinel for any failed platform call. Callers match it
// with errors.Is; the wrapped error carries the HTTP detail.
var ErrGateway = errors.New("channel gateway call failed")

// PrincipalKind distinguishes member grants from role grants.
type PrincipalKind string

const (
	PrincipalMember PrincipalKind = "member"
	PrincipalRole   PrincipalKind = "role"
)

// Permissions is the access level granted to a principal on a channel.
type Permissions string

const (
	PermParticipant Permissions = "participant" // view, send, read history
	PermStaff       Permissions = "staff"       // participant + manage messages
	PermOperator    Permissions = "operator"    // staff + manage channel
)

// AccessGrant names a principal and the permissions it receives.
type AccessGrant struct {
	Principal string        `json:"principal"`
	Kind      PrincipalKind `json:"kind"`
	Perms     Permissions   `json:"perms"`
}

// Gateway is the channel surface the ticket engine consumes. All calls are
// network-bound; no timeout is imposed here beyond the ctx the caller holds.
type Gateway interface {
	// CreateChannel provisions a private channel visible only to the given
	// grants and returns its channel reference.
	CreateChannel(ctx context.Context, name string, grants []AccessGrant) (string, error)

	// SetAccess adds or replaces a principal's grant on a channel.
	SetAccess(ctx context.Context, channelRef string, grant AccessGrant) error

	// RevokeAccess removes a principal's grant from a channel.
	RevokeAccess(ctx context.Context, channelRef, principal string) error

	// RenameChannel changes the channel's display name.
	RenameChannel(ctx context.Context, channelRef, newName string) error

	// DeleteChannel removes the channel entirely.
	DeleteChannel(ctx context.Context, channelRef string) error

	// PostMessage posts a notice into the channel. Lifecycle transitions
	// treat its failure as non-fatal.
	PostMessage(ctx context.Context, channelRef string, msg Message) error
}

// Message is a structured notice posted into a channel.
type Message struct {
	Content string            `json:"content,omitempty"`
	Title   string            `json:"title,omitempty"`
	Body    string            `json:"body,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Mention string            `json:"mention,omitempty"` // role to ping, if any
}
