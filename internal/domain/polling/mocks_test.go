package polling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ehr/hie/internal/domain/authorization"
	"github.com/ehr/hie/internal/domain/claims"
	"github.com/ehr/hie/internal/domain/comms"
	"github.com/ehr/hie/internal/domain/provider"
	"github.com/ehr/hie/internal/platform/db"
	"github.com/ehr/hie/internal/platform/exchange"
	"github.com/ehr/hie/internal/platform/fhir"
)

// In-memory repositories backing the pipeline tests.

type fakeAuthRepo struct {
	records map[uuid.UUID]*authorization.PriorAuthorization
	items   map[uuid.UUID][]*authorization.Item
	history []*authorization.ResponseRecord
	applies int
}

func newFakeAuthRepo() *fakeAuthRepo {
	return &fakeAuthRepo{
		records: map[uuid.UUID]*authorization.PriorAuthorization{},
		items:   map[uuid.UUID][]*authorization.Item{},
	}
}

func (f *fakeAuthRepo) add(a *authorization.PriorAuthorization) *authorization.PriorAuthorization {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = authorization.StatusQueued
	}
	f.records[a.ID] = a
	return a
}

func (f *fakeAuthRepo) Create(ctx context.Context, a *authorization.PriorAuthorization) error {
	f.add(a)
	return nil
}

func (f *fakeAuthRepo) GetByID(ctx context.Context, id uuid.UUID) (*authorization.PriorAuthorization, error) {
	a, ok := f.records[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return a, nil
}

func (f *fakeAuthRepo) FindByOutboundBundleID(ctx context.Context, id string) ([]*authorization.PriorAuthorization, error) {
	var out []*authorization.PriorAuthorization
	for _, a := range f.records {
		if a.OutboundBundleID != nil && *a.OutboundBundleID == id {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAuthRepo) FindByRequestFHIRID(ctx context.Context, id string) ([]*authorization.PriorAuthorization, error) {
	var out []*authorization.PriorAuthorization
	for _, a := range f.records {
		if a.RequestFHIRID != nil && *a.RequestFHIRID == id {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAuthRepo) ApplyResponse(ctx context.Context, a *authorization.PriorAuthorization) error {
	f.records[a.ID] = a
	f.applies++
	return nil
}

func (f *fakeAuthRepo) ReplaceItems(ctx context.Context, authID uuid.UUID, items []*authorization.Item) error {
	f.items[authID] = items
	return nil
}

func (f *fakeAuthRepo) GetItems(ctx context.Context, authID uuid.UUID) ([]*authorization.Item, error) {
	return f.items[authID], nil
}

func (f *fakeAuthRepo) AddResponseRecord(ctx context.Context, rec *authorization.ResponseRecord) error {
	f.history = append(f.history, rec)
	return nil
}

func (f *fakeAuthRepo) ListResponseRecords(ctx context.Context, authID uuid.UUID) ([]*authorization.ResponseRecord, error) {
	var out []*authorization.ResponseRecord
	for _, rec := range f.history {
		if rec.AuthID == authID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeAdvancedRepo struct {
	byIdentifier map[string]*authorization.AdvancedAuthorization
	upserts      int
}

func newFakeAdvancedRepo() *fakeAdvancedRepo {
	return &fakeAdvancedRepo{byIdentifier: map[string]*authorization.AdvancedAuthorization{}}
}

func (f *fakeAdvancedRepo) Upsert(ctx context.Context, a *authorization.AdvancedAuthorization) (bool, error) {
	f.upserts++
	if existing, ok := f.byIdentifier[a.Identifier]; ok {
		a.ID = existing.ID
		f.byIdentifier[a.Identifier] = a
		return false, nil
	}
	a.ID = uuid.New()
	f.byIdentifier[a.Identifier] = a
	return true, nil
}

func (f *fakeAdvancedRepo) GetByIdentifier(ctx context.Context, identifier string) (*authorization.AdvancedAuthorization, error) {
	a, ok := f.byIdentifier[identifier]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return a, nil
}

type fakeClaimRepo struct {
	records map[uuid.UUID]*claims.ClaimSubmission
	items   map[uuid.UUID][]*claims.Item
	history []*claims.ResponseRecord
}

func newFakeClaimRepo() *fakeClaimRepo {
	return &fakeClaimRepo{
		records: map[uuid.UUID]*claims.ClaimSubmission{},
		items:   map[uuid.UUID][]*claims.Item{},
	}
}

func (f *fakeClaimRepo) add(c *claims.ClaimSubmission) *claims.ClaimSubmission {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = authorization.StatusQueued
	}
	f.records[c.ID] = c
	return c
}

func (f *fakeClaimRepo) Create(ctx context.Context, c *claims.ClaimSubmission) error {
	f.add(c)
	return nil
}

func (f *fakeClaimRepo) GetByID(ctx context.Context, id uuid.UUID) (*claims.ClaimSubmission, error) {
	c, ok := f.records[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return c, nil
}

func (f *fakeClaimRepo) FindByOutboundBundleID(ctx context.Context, id string) ([]*claims.ClaimSubmission, error) {
	var out []*claims.ClaimSubmission
	for _, c := range f.records {
		if c.OutboundBundleID != nil && *c.OutboundBundleID == id {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeClaimRepo) FindByRequestFHIRID(ctx context.Context, id string) ([]*claims.ClaimSubmission, error) {
	var out []*claims.ClaimSubmission
	for _, c := range f.records {
		if c.RequestFHIRID != nil && *c.RequestFHIRID == id {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeClaimRepo) ApplyResponse(ctx context.Context, c *claims.ClaimSubmission) error {
	f.records[c.ID] = c
	return nil
}

func (f *fakeClaimRepo) ReplaceItems(ctx context.Context, claimID uuid.UUID, items []*claims.Item) error {
	f.items[claimID] = items
	return nil
}

func (f *fakeClaimRepo) GetItems(ctx context.Context, claimID uuid.UUID) ([]*claims.Item, error) {
	return f.items[claimID], nil
}

func (f *fakeClaimRepo) AddResponseRecord(ctx context.Context, rec *claims.ResponseRecord) error {
	f.history = append(f.history, rec)
	return nil
}

func (f *fakeClaimRepo) ListResponseRecords(ctx context.Context, claimID uuid.UUID) ([]*claims.ResponseRecord, error) {
	var out []*claims.ResponseRecord
	for _, rec := range f.history {
		if rec.ClaimID == claimID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeCommsRepo struct {
	requests       map[string]*comms.CommunicationRequest
	communications map[string]*comms.Communication
}

func newFakeCommsRepo() *fakeCommsRepo {
	return &fakeCommsRepo{
		requests:       map[string]*comms.CommunicationRequest{},
		communications: map[string]*comms.Communication{},
	}
}

func (f *fakeCommsRepo) InsertRequestOnce(ctx context.Context, cr *comms.CommunicationRequest) (bool, error) {
	if _, ok := f.requests[cr.Identifier]; ok {
		return true, nil
	}
	cr.ID = uuid.New()
	f.requests[cr.Identifier] = cr
	return false, nil
}

func (f *fakeCommsRepo) GetRequestByIdentifier(ctx context.Context, identifier string) (*comms.CommunicationRequest, error) {
	cr, ok := f.requests[identifier]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cr, nil
}

func (f *fakeCommsRepo) MarkAcknowledged(ctx context.Context, identifier string) error {
	if cr, ok := f.requests[identifier]; ok {
		cr.Acknowledged = true
	}
	return nil
}

func (f *fakeCommsRepo) InsertCommunicationOnce(ctx context.Context, c *comms.Communication) (bool, error) {
	if _, ok := f.communications[c.Identifier]; ok {
		return true, nil
	}
	c.ID = uuid.New()
	f.communications[c.Identifier] = c
	return false, nil
}

func (f *fakeCommsRepo) GetCommunicationByIdentifier(ctx context.Context, identifier string) (*comms.Communication, error) {
	c, ok := f.communications[identifier]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return c, nil
}

type fakePollRepo struct {
	runs     map[uuid.UUID]*PollRun
	messages []*PollMessage
}

func newFakePollRepo() *fakePollRepo {
	return &fakePollRepo{runs: map[uuid.UUID]*PollRun{}}
}

func (f *fakePollRepo) CreateRun(ctx context.Context, run *PollRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = RunInProgress
	stored := *run
	f.runs[run.ID] = &stored
	return nil
}

func (f *fakePollRepo) FinalizeRun(ctx context.Context, run *PollRun) error {
	now := time.Now().UTC()
	run.CompletedAt = &now
	stored := *run
	f.runs[run.ID] = &stored
	return nil
}

func (f *fakePollRepo) GetRun(ctx context.Context, id uuid.UUID) (*PollRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return run, nil
}

func (f *fakePollRepo) ListRuns(ctx context.Context, limit, offset int) ([]*PollRun, int, error) {
	var out []*PollRun
	for _, run := range f.runs {
		out = append(out, run)
	}
	return out, len(out), nil
}

func (f *fakePollRepo) AddMessage(ctx context.Context, msg *PollMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	stored := *msg
	f.messages = append(f.messages, &stored)
	return nil
}

func (f *fakePollRepo) ListMessages(ctx context.Context, runID uuid.UUID) ([]*PollMessage, error) {
	var out []*PollMessage
	for _, m := range f.messages {
		if m.RunID == runID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakePollRepo) MarkAbandoned(ctx context.Context, maxAge time.Duration) (int64, error) {
	var n int64
	for _, run := range f.runs {
		if run.Status == RunInProgress && time.Since(run.StartedAt) > maxAge {
			run.Status = RunError
			n++
		}
	}
	return n, nil
}

type fakeGateway struct {
	result exchange.PollResult
	sent   []*fhir.Bundle
}

func (g *fakeGateway) SendPoll(ctx context.Context, scope string, envelope *fhir.Bundle) exchange.PollResult {
	g.sent = append(g.sent, envelope)
	return g.result
}

// blockingGateway parks inside SendPoll until released, so tests can hold
// a run in flight while a second caller races for the lease.
type blockingGateway struct {
	entered chan struct{}
	release chan struct{}
	result  exchange.PollResult
}

func newBlockingGateway(result exchange.PollResult) *blockingGateway {
	return &blockingGateway{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		result:  result,
	}
}

func (g *blockingGateway) SendPoll(ctx context.Context, scope string, envelope *fhir.Bundle) exchange.PollResult {
	close(g.entered)
	<-g.release
	return g.result
}

// scopeLease mimics the advisory-lock lease in memory: one holder per
// scope, a second acquirer gets db.ErrLeaseHeld.
type scopeLease struct {
	mu   sync.Mutex
	held map[string]bool
}

func newScopeLease() *scopeLease {
	return &scopeLease{held: map[string]bool{}}
}

func (l *scopeLease) acquire(ctx context.Context, scope string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[scope] {
		return nil, db.ErrLeaseHeld
	}
	l.held[scope] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, scope)
	}, nil
}

type fakeProviderRepo struct{ identity *provider.Identity }

func (f *fakeProviderRepo) Create(ctx context.Context, p *provider.Identity) error { return nil }

func (f *fakeProviderRepo) GetActive(ctx context.Context) (*provider.Identity, error) {
	if f.identity == nil {
		return nil, pgx.ErrNoRows
	}
	return f.identity, nil
}

func (f *fakeProviderRepo) GetByLicense(ctx context.Context, license string) (*provider.Identity, error) {
	if f.identity == nil || f.identity.License != license {
		return nil, pgx.ErrNoRows
	}
	return f.identity, nil
}

// testEnv bundles the fakes behind a ready-to-use Service.
type testEnv struct {
	auths    *fakeAuthRepo
	advanced *fakeAdvancedRepo
	claims   *fakeClaimRepo
	comms    *fakeCommsRepo
	polls    *fakePollRepo
	gateway  *fakeGateway
	svc      *Service
}

func newTestEnv(result exchange.PollResult) *testEnv {
	env := &testEnv{
		auths:    newFakeAuthRepo(),
		advanced: newFakeAdvancedRepo(),
		claims:   newFakeClaimRepo(),
		comms:    newFakeCommsRepo(),
		polls:    newFakePollRepo(),
		gateway:  &fakeGateway{result: result},
	}

	logger := zerolog.Nop()
	providers := provider.NewService(&fakeProviderRepo{}, "PR-1000", logger)
	correlator := NewCorrelator(env.auths, env.claims, logger)
	updater := NewUpdater(env.auths, env.advanced, env.claims, env.comms, logger)

	env.svc = NewService(nil, providers, env.gateway, correlator, updater, env.polls, 50, logger)
	// No database in these tests: run each message guard directly.
	env.svc.inTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
		return fn(ctx)
	}
	return env
}

func strPtr(s string) *string { return &s }
