package polling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/hie/internal/domain/provider"
	"github.com/ehr/hie/internal/platform/db"
	"github.com/ehr/hie/internal/platform/exchange"
	"github.com/ehr/hie/internal/platform/fhir"
)

// ErrPollAlreadyRunning reports that another run holds the scope's lease.
// Callers skip, they never queue.
var ErrPollAlreadyRunning = errors.New("a poll is already running for this scope")

// Gateway is the exchange boundary the orchestrator calls. Satisfied by
// *exchange.Client.
type Gateway interface {
	SendPoll(ctx context.Context, scope string, envelope *fhir.Bundle) exchange.PollResult
}

// Service owns the end-to-end poll sequence: build envelope, call the
// gateway, extract messages, drive classify/correlate/update per message,
// and persist the run plus one audit row per message.
type Service struct {
	pool       *pgxpool.Pool
	providers  *provider.Service
	gateway    Gateway
	correlator *Correlator
	updater    *Updater
	repo       Repository
	pageSize   int
	logger     zerolog.Logger

	// inTx wraps each message's mutation, history row and audit row in one
	// transaction. Overridable so service tests run without a database.
	inTx func(ctx context.Context, fn func(ctx context.Context) error) error

	// acquireLease takes the scope's run lease before any other work.
	// Overridable so tests can exercise the busy path without a database.
	acquireLease func(ctx context.Context, scope string) (release func(), err error)
}

func NewService(pool *pgxpool.Pool, providers *provider.Service, gateway Gateway, correlator *Correlator, updater *Updater, repo Repository, pageSize int, logger zerolog.Logger) *Service {
	s := &Service{
		pool:       pool,
		providers:  providers,
		gateway:    gateway,
		correlator: correlator,
		updater:    updater,
		repo:       repo,
		pageSize:   pageSize,
		logger:     logger,
		inTx:       db.InTx,
	}
	s.acquireLease = s.leaseFromPool
	return s
}

// leaseFromPool backs acquireLease with the per-scope advisory lock. A nil
// pool means no cross-process exclusion is available.
func (s *Service) leaseFromPool(ctx context.Context, scope string) (func(), error) {
	if s.pool == nil {
		return func() {}, nil
	}
	lease, err := db.AcquireLease(ctx, s.pool, scope)
	if err != nil {
		return nil, err
	}
	return func() { lease.Release(ctx) }, nil
}

// ExecutePoll performs one polling run for the tenant scope carried by ctx.
// It returns a structured result for every run that got far enough to
// create a PollRun row; an error return is reserved for infrastructure
// failures (lease, directory, database) that prevented the run entirely.
// Concurrent calls for the same scope: the second gets
// ErrPollAlreadyRunning.
func (s *Service) ExecutePoll(ctx context.Context, scope, trigger string) (*PollRunResult, error) {
	release, err := s.acquireLease(ctx, scope)
	if err != nil {
		if errors.Is(err, db.ErrLeaseHeld) {
			return nil, ErrPollAlreadyRunning
		}
		return nil, err
	}
	defer release()

	identity, err := s.providers.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve provider identity: %w", err)
	}

	envelope, err := BuildPollEnvelope(identity, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("build poll envelope: %w", err)
	}
	outbound, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode poll envelope: %w", err)
	}

	run := &PollRun{
		TriggerKind:      trigger,
		OutboundEnvelope: outbound,
		Summary:          map[string]*KindSummary{},
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create poll run: %w", err)
	}

	s.logger.Info().Str("run_id", run.ID.String()).Str("scope", scope).Str("trigger", trigger).Msg("poll run started")

	result := s.gateway.SendPoll(ctx, scope, envelope)
	if result.ResponseCode != "" {
		run.ResponseCode = &result.ResponseCode
	}
	if result.Data != nil {
		if raw, err := json.Marshal(result.Data); err == nil {
			run.InboundEnvelope = raw
		}
	}

	if !result.Success {
		for _, e := range result.Errors {
			run.Errors = append(run.Errors, fmt.Sprintf("%s: %s", e.Code, e.Message))
		}
		run.Status = RunError
		s.finalize(ctx, run)
		s.logger.Warn().Str("run_id", run.ID.String()).Strs("errors", run.Errors).Msg("poll run failed at gateway")
		return s.result(run), nil
	}

	envelopes := ExtractMessages(result.Data)
	for _, res := range ExtractDirectResources(result.Data) {
		envelopes = append(envelopes, SynthesizeEnvelope(res))
	}
	if result.Data == nil {
		// A 2xx with an undecodable body is treated like an empty one;
		// the raw envelope (when any) is already persisted for audit.
		s.logger.Warn().Str("run_id", run.ID.String()).Msg("poll response had no decodable envelope")
	}

	run.MessagesReceived = len(envelopes)
	if len(envelopes) == 0 {
		run.Status = RunNoMessages
		s.finalize(ctx, run)
		return s.result(run), nil
	}

	for _, env := range envelopes {
		msg := s.processMessage(ctx, run, env)

		summary := run.Summary[string(msg.PayloadKind)]
		if summary == nil {
			summary = &KindSummary{}
			run.Summary[string(msg.PayloadKind)] = summary
		}
		switch msg.Status {
		case MsgProcessed:
			run.MessagesProcessed++
			run.MessagesMatched++
			summary.Matched++
		case MsgNewRecord:
			run.MessagesProcessed++
			run.MessagesMatched++
			summary.Matched++
			summary.NewRecords++
		case MsgUnmatched:
			run.MessagesUnmatched++
			summary.Unmatched++
		case MsgError:
			summary.Errors++
		}
	}

	run.Status = RunSuccess
	s.finalize(ctx, run)
	s.logger.Info().
		Str("run_id", run.ID.String()).
		Int("received", run.MessagesReceived).
		Int("matched", run.MessagesMatched).
		Int("unmatched", run.MessagesUnmatched).
		Msg("poll run completed")
	return s.result(run), nil
}

// processMessage runs one message through classify, correlate and update.
// The domain mutation, its history row and the audit row commit in one
// transaction; on any failure the transaction rolls back and a standalone
// audit row with the error is written instead, so every message leaves
// exactly one PollMessage row and a failure never touches its siblings.
func (s *Service) processMessage(ctx context.Context, run *PollRun, envelope map[string]interface{}) *PollMessage {
	cls := Classify(envelope)

	msg := &PollMessage{
		RunID:          run.ID,
		HeaderID:       strOrNil(cls.HeaderID),
		ResponseID:     strOrNil(cls.ResponseID),
		EventCode:      strOrNil(cls.EventCode),
		PayloadKind:    string(cls.Kind),
		Classification: cls.Classification,
		Status:         MsgUnmatched,
	}
	if cls.Payload != nil {
		msg.Payload = rawJSON(cls.Payload.Raw())
	} else {
		msg.Payload = rawJSON(envelope)
	}

	err := s.guarded(ctx, func(txCtx context.Context) error {
		if cls.Payload == nil {
			// Unrecognized payload kinds are logged, never dispatched.
			msg.Status = MsgUnmatched
			msg.Error = strOrNil("no recognized payload resource in message")
			return s.repo.AddMessage(txCtx, msg)
		}

		var cor *CorrelationResult
		var err error
		if cls.Classification == ClassSolicited {
			cor, err = s.correlator.CorrelateToOutboundRequest(txCtx, cls.ResponseID, cls.Payload)
		} else {
			cor, err = s.correlator.HandleNewInboundEvent(txCtx, cls)
		}
		if err != nil {
			return err
		}

		if !cor.Matched {
			msg.Status = MsgUnmatched
			msg.Error = strOrNil(cor.Reason)
			return s.repo.AddMessage(txCtx, msg)
		}

		status, err := s.updater.Apply(txCtx, cls, cor)
		if err != nil {
			return err
		}

		msg.Status = status
		msg.Matched = true
		msg.MatchedTable = strOrNil(cor.Table)
		msg.MatchedRecordID = strOrNil(cor.RecordID)
		msg.MatchStrategy = strOrNil(cor.Strategy)
		return s.repo.AddMessage(txCtx, msg)
	})

	if err != nil {
		msg.Status = MsgError
		msg.Matched = false
		msg.MatchedTable = nil
		msg.MatchedRecordID = nil
		msg.MatchStrategy = nil
		msg.Error = strOrNil(err.Error())
		if aerr := s.repo.AddMessage(ctx, msg); aerr != nil {
			s.logger.Error().Err(aerr).Str("run_id", run.ID.String()).Msg("failed to write audit row for errored message")
		}
		s.logger.Error().Err(err).Str("run_id", run.ID.String()).Str("kind", msg.PayloadKind).Msg("message processing failed")
	}
	return msg
}

// guarded runs fn inside a transaction and converts panics into errors, so
// one poisoned message cannot take down the batch.
func (s *Service) guarded(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing message: %v", r)
		}
	}()
	return s.inTx(ctx, fn)
}

func (s *Service) finalize(ctx context.Context, run *PollRun) {
	if err := s.repo.FinalizeRun(ctx, run); err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID.String()).Msg("failed to finalize poll run")
	}
}

func (s *Service) result(run *PollRun) *PollRunResult {
	return &PollRunResult{
		RunID:     run.ID,
		Status:    run.Status,
		Received:  run.MessagesReceived,
		Processed: run.MessagesProcessed,
		Matched:   run.MessagesMatched,
		Unmatched: run.MessagesUnmatched,
		Summary:   run.Summary,
		Errors:    run.Errors,
	}
}
