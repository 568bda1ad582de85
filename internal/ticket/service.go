package ticket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kmills/brokerdesk/internal/intake"
	"github.com/kmills/brokerdesk/internal/metrics"
	"github.com/kmills/brokerdesk/internal/persist"
	"github.com/kmills/brokerdesk/internal/platform"
	"github.com/kmills/brokerdesk/internal/stats"
	"github.com/kmills/brokerdesk/internal/tier"
	"github.com/kmills/brokerdesk/internal/traces"
)

const claimedSuffix = "-claimed"

// SnapshotSaver persists the full service state as one durable document.
type SnapshotSaver interface {
	Save(snap *persist.Snapshot) error
}

// EventEmitter receives lifecycle events for fan-out to subscribers.
type EventEmitter interface {
	Emit(event string, data map[string]any)
}

// Service is the lifecycle engine. All state transitions for a channel run
// under that channel's lock, so gateway effects and store writes for one
// ticket never interleave.
type Service struct {
	store   Store
	catalog *tier.Catalog
	gw      platform.Gateway
	ledger  *stats.Ledger
	logger  *slog.Logger

	saver        SnapshotSaver
	events       EventEmitter
	operator     string
	proofChannel string
	closeGrace   time.Duration

	locks     sync.Map // channelRef -> *sync.Mutex
	persistMu sync.Mutex
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithSaver sets the durable snapshot writer. Without one the service runs
// purely in memory.
func WithSaver(s SnapshotSaver) Option {
	return func(svc *Service) { svc.saver = s }
}

// WithEvents sets the lifecycle event emitter.
func WithEvents(e EventEmitter) Option {
	return func(svc *Service) { svc.events = e }
}

// WithProofChannel sets the channel completion proofs are posted to.
func WithProofChannel(ref string) Option {
	return func(svc *Service) { svc.proofChannel = ref }
}

// WithCloseGrace overrides the delay between closing a ticket and deleting
// its channel.
func WithCloseGrace(d time.Duration) Option {
	return func(svc *Service) { svc.closeGrace = d }
}

// NewService creates the lifecycle engine. The operator principal is granted
// on every ticket channel and may override rank checks.
func NewService(store Store, catalog *tier.Catalog, gw platform.Gateway, ledger *stats.Ledger, operator string, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		catalog:    catalog,
		gw:         gw,
		ledger:     ledger,
		logger:     logger,
		operator:   operator,
		closeGrace: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockFor returns the mutex serializing operations on one channel.
func (s *Service) lockFor(channelRef string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(channelRef, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Create validates the intake request, provisions the ticket channel, and
// registers the ticket. The channel starts visible to the requester, the
// operator, and every staff role at or above the requested tier's rank.
func (s *Service) Create(ctx context.Context, req intake.Request) (t *Ticket, err error) {
	ctx, span := traces.StartSpan(ctx, "ticket.Create",
		traces.RequesterID(req.RequesterID), traces.TierKey(req.TierKey))
	defer span.End()

	done := metrics.ObserveOp("create")
	defer func() { done(err) }()

	payload, err := req.Validate()
	if err != nil {
		return nil, err
	}
	tr, err := s.catalog.Get(req.TierKey)
	if err != nil {
		return nil, err
	}

	grants := []platform.AccessGrant{
		{Principal: req.RequesterID, Kind: platform.PrincipalMember, Perms: platform.PermParticipant},
		{Principal: s.operator, Kind: platform.PrincipalMember, Perms: platform.PermOperator},
	}
	for _, role := range s.catalog.EligibleRoles(tr) {
		grants = append(grants, platform.AccessGrant{
			Principal: string(role), Kind: platform.PrincipalRole, Perms: platform.PermStaff,
		})
	}

	name := channelName(req.RequesterID)
	channelRef, err := s.gw.CreateChannel(ctx, name, grants)
	if err != nil {
		metrics.GatewayCallsTotal.WithLabelValues("create_channel", "error").Inc()
		return nil, fmt.Errorf("creating ticket channel: %w", err)
	}
	metrics.GatewayCallsTotal.WithLabelValues("create_channel", "ok").Inc()

	t = &Ticket{
		ChannelRef:  channelRef,
		RequesterID: req.RequesterID,
		CreatedAt:   time.Now().UTC(),
		TierKey:     tr.Key,
		Kind:        req.Kind,
		Payload:     payload,
	}
	if err := s.store.Register(t); err != nil {
		// The channel exists but the record could not be kept. Take the
		// channel back down so no orphan remains.
		if delErr := s.gw.DeleteChannel(ctx, channelRef); delErr != nil {
			s.logger.Error("failed to delete orphaned channel",
				"channel", channelRef, "error", delErr)
		}
		return nil, err
	}

	s.persist(ctx)
	s.postNotice(ctx, channelRef, intakeNotice(t, tr))

	metrics.TicketsCreatedTotal.WithLabelValues(tr.Key).Inc()
	metrics.TicketsOpen.Set(float64(s.store.Len()))
	s.emit("ticket_created", map[string]any{
		"channelRef":  channelRef,
		"requesterId": t.RequesterID,
		"tierKey":     t.TierKey,
		"kind":        string(t.Kind),
	})
	s.logger.Info("ticket created",
		"channel", channelRef, "requester", t.RequesterID, "tier", tr.Key, "kind", t.Kind)
	return t, nil
}

// Claim assigns the ticket to the actor. On success the channel narrows to
// the requester and the claimant and is renamed with the claimed suffix.
// Any gateway failure while narrowing rolls the claim back.
func (s *Service) Claim(ctx context.Context, channelRef string, actor Actor) (t *Ticket, err error) {
	ctx, span := traces.StartSpan(ctx, "ticket.Claim",
		traces.ChannelRef(channelRef), traces.StaffID(actor.ID))
	defer span.End()

	done := metrics.ObserveOp("claim")
	defer func() { done(err) }()

	mu := s.lockFor(channelRef)
	mu.Lock()
	defer mu.Unlock()

	t, err = s.store.Get(channelRef)
	if err != nil {
		return nil, err
	}
	tr, err := s.catalog.Get(t.TierKey)
	if err != nil {
		return nil, err
	}
	if !s.catalog.CanActOn(actor.Roles, tr, actor.Admin) {
		return nil, ErrForbidden
	}

	if err := s.store.SetClaim(channelRef, actor.ID); err != nil {
		return nil, err
	}

	if err := s.narrowAccess(ctx, channelRef, actor.ID, tr); err != nil {
		if clearErr := s.store.ClearClaim(channelRef); clearErr != nil {
			s.logger.Error("failed to roll back claim", "channel", channelRef, "error", clearErr)
		}
		metrics.GatewayCallsTotal.WithLabelValues("narrow_access", "error").Inc()
		return nil, fmt.Errorf("narrowing channel access: %w", err)
	}
	metrics.GatewayCallsTotal.WithLabelValues("narrow_access", "ok").Inc()

	// The rename is cosmetic; a failure here does not undo the claim.
	if err := s.gw.RenameChannel(ctx, channelRef, channelName(t.RequesterID)+claimedSuffix); err != nil {
		s.logger.Warn("failed to rename claimed channel", "channel", channelRef, "error", err)
	}

	t.ClaimantID = actor.ID
	s.persist(ctx)
	s.postNotice(ctx, channelRef, platform.Message{
		Title:   "Ticket Claimed",
		Body:    fmt.Sprintf("This ticket is now handled by <@%s>.", actor.ID),
		Mention: t.RequesterID,
	})
	s.emit("ticket_claimed", map[string]any{
		"channelRef": channelRef,
		"claimantId": actor.ID,
	})
	s.logger.Info("ticket claimed", "channel", channelRef, "claimant", actor.ID)
	return t, nil
}

// Unclaim releases the claim. Only the claimant or an admin may release.
// The channel widens back to the tier's eligible staff roles and the
// claimed suffix is removed.
func (s *Service) Unclaim(ctx context.Context, channelRef string, actor Actor) (t *Ticket, err error) {
	ctx, span := traces.StartSpan(ctx, "ticket.Unclaim",
		traces.ChannelRef(channelRef), traces.StaffID(actor.ID))
	defer span.End()

	done := metrics.ObserveOp("unclaim")
	defer func() { done(err) }()

	mu := s.lockFor(channelRef)
	mu.Lock()
	defer mu.Unlock()

	t, err = s.store.Get(channelRef)
	if err != nil {
		return nil, err
	}
	if !t.Claimed() {
		return nil, ErrNotClaimed
	}
	if t.ClaimantID != actor.ID && !actor.Admin {
		return nil, ErrForbidden
	}
	claimant := t.ClaimantID

	if err := s.store.ClearClaim(channelRef); err != nil {
		return nil, err
	}

	tr, err := s.catalog.Get(t.TierKey)
	if err != nil {
		return nil, err
	}
	if err := s.widenAccess(ctx, channelRef, tr); err != nil {
		if setErr := s.store.SetClaim(channelRef, claimant); setErr != nil {
			s.logger.Error("failed to roll back unclaim", "channel", channelRef, "error", setErr)
		}
		metrics.GatewayCallsTotal.WithLabelValues("widen_access", "error").Inc()
		return nil, fmt.Errorf("widening channel access: %w", err)
	}
	metrics.GatewayCallsTotal.WithLabelValues("widen_access", "ok").Inc()

	if err := s.gw.RenameChannel(ctx, channelRef, channelName(t.RequesterID)); err != nil {
		s.logger.Warn("failed to rename unclaimed channel", "channel", channelRef, "error", err)
	}

	t.ClaimantID = ""
	s.persist(ctx)
	s.postNotice(ctx, channelRef, platform.Message{
		Title: "Ticket Released",
		Body:  "This ticket is open for any eligible staff member to claim.",
	})
	s.emit("ticket_unclaimed", map[string]any{
		"channelRef": channelRef,
		"staffId":    claimant,
	})
	s.logger.Info("ticket unclaimed", "channel", channelRef, "staff", claimant)
	return t, nil
}

// Close removes the ticket and schedules the channel for deletion after the
// grace delay. Closing a channel with no ticket still schedules deletion, so
// a half-torn-down channel can always be cleared.
func (s *Service) Close(ctx context.Context, channelRef string, actor Actor) error {
	ctx, span := traces.StartSpan(ctx, "ticket.Close",
		traces.ChannelRef(channelRef), traces.StaffID(actor.ID))
	defer span.End()

	done := metrics.ObserveOp("close")
	defer done(nil)

	mu := s.lockFor(channelRef)
	mu.Lock()
	defer mu.Unlock()

	s.store.Remove(channelRef)
	s.persist(ctx)
	s.postNotice(ctx, channelRef, platform.Message{
		Title: "Ticket Closed",
		Body:  fmt.Sprintf("Closed by <@%s>. This channel will be removed shortly.", actor.ID),
	})

	metrics.TicketsOpen.Set(float64(s.store.Len()))
	s.emit("ticket_closed", map[string]any{
		"channelRef": channelRef,
		"closedBy":   actor.ID,
	})
	s.logger.Info("ticket closed", "channel", channelRef, "actor", actor.ID)

	// Deletion runs detached so a slow or failing gateway cannot block the
	// close. The channel is already gone from the store either way.
	time.AfterFunc(s.closeGrace, func() {
		if err := s.gw.DeleteChannel(context.Background(), channelRef); err != nil {
			metrics.GatewayCallsTotal.WithLabelValues("delete_channel", "error").Inc()
			s.logger.Error("failed to delete closed channel", "channel", channelRef, "error", err)
			return
		}
		metrics.GatewayCallsTotal.WithLabelValues("delete_channel", "ok").Inc()
		s.locks.Delete(channelRef)
	})
	return nil
}

// RecordCompletion increments the staff member's completed count and returns
// the new total. When details are given and a proof channel is configured,
// a proof notice is posted there. The count moves regardless of whether the
// ticket still exists.
func (s *Service) RecordCompletion(ctx context.Context, staffID string, details map[string]string) int {
	ctx, span := traces.StartSpan(ctx, "ticket.RecordCompletion", traces.StaffID(staffID))
	defer span.End()

	done := metrics.ObserveOp("record_completion")
	defer done(nil)

	count := s.ledger.Increment(staffID)
	s.persist(ctx)

	if s.proofChannel != "" && details != nil {
		s.postNotice(ctx, s.proofChannel, platform.Message{
			Title:  "Trade Completed",
			Body:   fmt.Sprintf("Completed by <@%s> (total: %d).", staffID, count),
			Fields: details,
		})
	}

	metrics.CompletionsTotal.Inc()
	s.emit("completion_recorded", map[string]any{
		"staffId": staffID,
		"count":   count,
	})
	s.logger.Info("completion recorded", "staff", staffID, "count", count)
	return count
}

// AddParticipant grants participant access to a member on the ticket channel.
// The ticket record itself is untouched.
func (s *Service) AddParticipant(ctx context.Context, channelRef, memberID string) error {
	done := metrics.ObserveOp("add_participant")
	var err error
	defer func() { done(err) }()

	if _, err = s.store.Get(channelRef); err != nil {
		return err
	}
	err = s.gw.SetAccess(ctx, channelRef, platform.AccessGrant{
		Principal: memberID, Kind: platform.PrincipalMember, Perms: platform.PermParticipant,
	})
	if err != nil {
		return fmt.Errorf("adding participant: %w", err)
	}
	s.logger.Info("participant added", "channel", channelRef, "member", memberID)
	return nil
}

// RemoveParticipant revokes a member's access to the ticket channel.
func (s *Service) RemoveParticipant(ctx context.Context, channelRef, memberID string) error {
	done := metrics.ObserveOp("remove_participant")
	var err error
	defer func() { done(err) }()

	if _, err = s.store.Get(channelRef); err != nil {
		return err
	}
	if err = s.gw.RevokeAccess(ctx, channelRef, memberID); err != nil {
		return fmt.Errorf("removing participant: %w", err)
	}
	s.logger.Info("participant removed", "channel", channelRef, "member", memberID)
	return nil
}

// Get returns one ticket.
func (s *Service) Get(channelRef string) (*Ticket, error) {
	return s.store.Get(channelRef)
}

// List returns all active tickets ordered by creation time.
func (s *Service) List() []*Ticket {
	return s.store.List()
}

// Stats exposes the completion ledger for read-side handlers.
func (s *Service) Stats() *stats.Ledger {
	return s.ledger
}

// Restore loads previously saved state into the store and the ledger.
func (s *Service) Restore(snap *persist.Snapshot) error {
	tickets := make(map[string]*Ticket, len(snap.Tickets))
	for ref, rec := range snap.Tickets {
		createdAt, err := time.Parse(time.RFC3339, rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("ticket %s: parsing createdAt: %w", ref, err)
		}
		tickets[ref] = &Ticket{
			ChannelRef:  rec.ChannelRef,
			RequesterID: rec.RequesterID,
			CreatedAt:   createdAt,
			TierKey:     rec.TierKey,
			Kind:        intake.Kind(rec.Kind),
			Payload:     rec.Payload,
		}
	}
	s.store.Import(tickets, snap.Claims)
	s.ledger.Restore(snap.Stats, snap.StatsOrder)
	metrics.TicketsOpen.Set(float64(s.store.Len()))
	s.logger.Info("state restored", "tickets", len(tickets), "staff", s.ledger.Len())
	return nil
}

// narrowAccess revokes the tier's staff roles and grants the claimant, so
// only the requester, the claimant, and the operator can see the channel.
func (s *Service) narrowAccess(ctx context.Context, channelRef, claimantID string, tr tier.Tier) error {
	for _, role := range s.catalog.EligibleRoles(tr) {
		if err := s.gw.RevokeAccess(ctx, channelRef, string(role)); err != nil {
			return err
		}
	}
	return s.gw.SetAccess(ctx, channelRef, platform.AccessGrant{
		Principal: claimantID, Kind: platform.PrincipalMember, Perms: platform.PermStaff,
	})
}

// widenAccess re-grants the tier's staff roles after an unclaim.
func (s *Service) widenAccess(ctx context.Context, channelRef string, tr tier.Tier) error {
	for _, role := range s.catalog.EligibleRoles(tr) {
		err := s.gw.SetAccess(ctx, channelRef, platform.AccessGrant{
			Principal: string(role), Kind: platform.PrincipalRole, Perms: platform.PermStaff,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// persist writes the current snapshot. Failures are logged and do not fail
// the operation that triggered them.
func (s *Service) persist(ctx context.Context) {
	if s.saver == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	tickets, claims := s.store.Export()
	records := make(map[string]persist.TicketRecord, len(tickets))
	for ref, t := range tickets {
		records[ref] = persist.TicketRecord{
			ChannelRef:  t.ChannelRef,
			RequesterID: t.RequesterID,
			CreatedAt:   t.CreatedAt.Format(time.RFC3339),
			TierKey:     t.TierKey,
			Kind:        string(t.Kind),
			Payload:     t.Payload,
		}
	}
	counts, order := s.ledger.Snapshot()
	snap := &persist.Snapshot{
		Tickets:    records,
		Claims:     claims,
		Stats:      counts,
		StatsOrder: order,
	}
	if err := s.saver.Save(snap); err != nil {
		metrics.SnapshotSavesTotal.WithLabelValues("error").Inc()
		s.logger.Error("failed to save snapshot", "error", err)
		return
	}
	metrics.SnapshotSavesTotal.WithLabelValues("ok").Inc()
}

// postNotice posts a channel message, logging instead of failing when the
// gateway rejects it.
func (s *Service) postNotice(ctx context.Context, channelRef string, msg platform.Message) {
	if err := s.gw.PostMessage(ctx, channelRef, msg); err != nil {
		metrics.GatewayCallsTotal.WithLabelValues("post_message", "error").Inc()
		s.logger.Warn("failed to post notice", "channel", channelRef, "error", err)
		return
	}
	metrics.GatewayCallsTotal.WithLabelValues("post_message", "ok").Inc()
}

func (s *Service) emit(event string, data map[string]any) {
	if s.events != nil {
		s.events.Emit(event, data)
	}
}

func channelName(requesterID string) string {
	return "ticket-" + requesterID
}

// intakeNotice builds the opening message for a new ticket channel.
func intakeNotice(t *Ticket, tr tier.Tier) platform.Message {
	body := fmt.Sprintf("Thanks <@%s>, a %s will be with you shortly.", t.RequesterID, tr.DisplayName)
	return platform.Message{
		Title:   "New Ticket",
		Body:    body,
		Fields:  t.Payload,
		Mention: string(tr.StaffRole),
	}
}
