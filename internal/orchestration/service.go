// Package orchestration composes the cutover engines over storage.
//
// Every exported method is one unit of work: inputs are validated, the
// relevant rows are read inside a single transaction, the engine packages
// (taskgraph, lifecycle, readiness, sla, escalation) decide, and the
// resulting writes commit together. Status writes are compare-and-swap, so
// two concurrent transitions from the same source state cannot both win;
// the loser observes the new state and gets an InvalidTransitionError.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/cutover/internal/eventbus"
	"github.com/steveyegge/cutover/internal/idgen"
	"github.com/steveyegge/cutover/internal/lifecycle"
	"github.com/steveyegge/cutover/internal/readiness"
	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/telemetry"
	"github.com/steveyegge/cutover/internal/types"
)

// SystemActor is recorded when no caller identity is supplied.
const SystemActor = "system"

// Options configure a Service. The zero value is usable.
type Options struct {
	Logger   *slog.Logger
	Recorder *telemetry.Recorder

	// Now returns the current instant; defaults to time.Now.
	Now func() time.Time
	// NewID generates entity identifiers; defaults to random UUIDs.
	NewID func() string

	// CodePrefix is the plan code prefix (default "CUT").
	CodePrefix string
	// HypercareWeeks is used when a new plan does not set its own window.
	HypercareWeeks int
	// SLADefaults returns installation-wide SLA targets. It is called for
	// every new incident so configuration reloads apply to later incidents.
	SLADefaults func() map[types.Severity]types.SLATarget
	// ExitSLAThreshold is the default sla_compliance threshold in percent.
	ExitSLAThreshold float64
	// Events receives committed state changes. Nil disables publishing.
	Events Publisher
}

// Publisher receives events after the change they describe has committed.
type Publisher interface {
	Publish(ctx context.Context, event *eventbus.Event)
}

// Service exposes every cutover operation.
type Service struct {
	store  storage.Storage
	log    *slog.Logger
	rec    *telemetry.Recorder
	now    func() time.Time
	newID  func() string
	prefix string
	weeks  int
	slaFn  func() map[types.Severity]types.SLATarget
	exitTh float64
	events Publisher
}

// New builds a Service over store.
func New(store storage.Storage, opts Options) (*Service, error) {
	if store == nil {
		return nil, errors.New("orchestration: storage is required")
	}
	prefix := opts.CodePrefix
	if prefix == "" {
		prefix = idgen.DefaultPlanPrefix
	}
	prefix, err := idgen.NormalizePrefix(prefix)
	if err != nil {
		return nil, fmt.Errorf("orchestration: %w", err)
	}
	s := &Service{
		store:  store,
		log:    opts.Logger,
		rec:    opts.Recorder,
		now:    opts.Now,
		newID:  opts.NewID,
		prefix: prefix,
		weeks:  opts.HypercareWeeks,
		slaFn:  opts.SLADefaults,
		exitTh: opts.ExitSLAThreshold,
		events: opts.Events,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.rec == nil {
		s.rec = telemetry.NewRecorder()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.weeks < 1 {
		s.weeks = lifecycle.DefaultHypercareWeeks
	}
	if s.exitTh <= 0 || s.exitTh > 100 {
		s.exitTh = 95
	}
	return s, nil
}

// Store returns the underlying storage.
func (s *Service) Store() storage.Storage { return s.store }

func (s *Service) clock() time.Time { return s.now().UTC() }

func (s *Service) emit(ctx context.Context, scope types.Scope, typ eventbus.EventType, planID, subject, actor string, data map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, &eventbus.Event{
		Type:    typ,
		Scope:   scope,
		PlanID:  planID,
		Subject: subject,
		Actor:   actor,
		At:      s.clock(),
		Data:    data,
	})
}

// write runs fn inside one transaction under an operation span.
func (s *Service) write(ctx context.Context, op string, scope types.Scope, fn func(ctx context.Context, tx storage.Transaction) error) (err error) {
	if err := scope.Validate(); err != nil {
		return err
	}
	ctx, end := s.rec.Start(ctx, op, telemetry.Scope(scope)...)
	defer func() { end(err) }()
	err = s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return fn(ctx, tx)
	})
	if err != nil && types.KindOf(err) != types.KindInternal {
		s.log.Debug("operation rejected", "op", op, "scope", scope.String(), "kind", types.KindOf(err), "error", err)
	}
	return err
}

// read runs fn against the store without a transaction.
func (s *Service) read(ctx context.Context, op string, scope types.Scope, fn func(ctx context.Context, q storage.Queries) error) (err error) {
	if err := scope.Validate(); err != nil {
		return err
	}
	ctx, end := s.rec.Start(ctx, op, telemetry.Scope(scope)...)
	defer func() { end(err) }()
	return fn(ctx, s.store)
}

func actorOr(actor string) string {
	if a := strings.TrimSpace(actor); a != "" {
		return a
	}
	return SystemActor
}

// lostRace converts a failed compare-and-swap into the transition error the
// caller would have seen had it arrived second.
func lostRace(entity, id, current, to string) error {
	return &types.InvalidTransitionError{Entity: entity, ID: id, From: current, To: to}
}

// planFacts answers lifecycle guard questions from inside the transition's
// transaction.
type planFacts struct {
	q      storage.Queries
	scope  types.Scope
	planID string
	now    time.Time
}

var _ lifecycle.Facts = planFacts{}

func (f planFacts) CompletedRehearsals(ctx context.Context) (int, error) {
	return f.q.CountRehearsals(ctx, f.scope, f.planID, types.RehearsalCompleted)
}

func (f planFacts) PendingGoNoGoItems(ctx context.Context) (int, error) {
	items, err := f.q.ListGoNoGoItems(ctx, f.scope, f.planID)
	if err != nil {
		return 0, err
	}
	return readiness.Aggregate(items).Pending, nil
}

// CloseBlockers refreshes auto criteria against current incidents before
// checking, so a stale "met" cannot close hypercare.
func (f planFacts) CloseBlockers(ctx context.Context) ([]string, error) {
	criteria, err := refreshAutoCriteria(ctx, f.q, f.scope, f.planID, f.now, SystemActor)
	if err != nil {
		return nil, err
	}
	signoffs, err := f.q.ListSignoffs(ctx, f.scope, f.planID)
	if err != nil {
		return nil, err
	}
	return readiness.CloseBlockers(criteria, signoffs), nil
}
