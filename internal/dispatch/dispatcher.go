// Package dispatch runs one execution cycle of a synthetic test.
//
// A cycle moves through resolving, dispatching, recording and completed.
// It fails before any work when the test or its API is missing, when the
// parameters do not match the API, or when the target resolves to no nodes.
// Once dispatching starts every resolved node yields exactly one outcome,
// whatever happens to its invocation.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/invoker"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo"
)

type TargetResolver interface {
	Resolve(ctx context.Context, t domain.SyntheticTest) ([]domain.Node, error)
}

type Config struct {
	// MaxFanout bounds concurrent invocations across all cycles.
	MaxFanout int
	// CycleTimeout caps a whole cycle; 0 disables the cap.
	CycleTimeout time.Duration
}

type Dispatcher struct {
	Logger   *zap.Logger
	Tests    repo.TestStore
	APIs     repo.APIStore
	Resolver TargetResolver
	Invoker  invoker.Invoker
	History  repo.HistoryStore

	pool         pond.Pool
	cycleTimeout time.Duration
	now          func() time.Time
}

func New(
	logger *zap.Logger,
	tests repo.TestStore,
	apis repo.APIStore,
	res TargetResolver,
	inv invoker.Invoker,
	history repo.HistoryStore,
	cfg Config,
) *Dispatcher {
	if cfg.MaxFanout < 1 {
		cfg.MaxFanout = 1
	}
	return &Dispatcher{
		Logger:       logger,
		Tests:        tests,
		APIs:         apis,
		Resolver:     res,
		Invoker:      inv,
		History:      history,
		pool:         pond.NewPool(cfg.MaxFanout),
		cycleTimeout: cfg.CycleTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Close waits for in-flight work and stops the worker pool.
func (d *Dispatcher) Close() {
	d.pool.StopAndWait()
}

// Execute runs one cycle of the test. A nil report means the cycle never
// started (not found, validation, no targets). A non-nil report with an
// error wrapping domain.ErrPersistence means the cycle ran but some outcomes
// were not stored.
func (d *Dispatcher) Execute(ctx context.Context, testID int64, override domain.Parameters) (*domain.ExecutionReport, error) {
	test, err := d.Tests.GetTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("load test %d: %w", testID, err)
	}
	if test == nil {
		return nil, &domain.NotFoundError{Kind: "test", ID: testID}
	}
	api, err := d.APIs.GetAPI(ctx, test.APIID)
	if err != nil {
		return nil, fmt.Errorf("load api %d: %w", test.APIID, err)
	}
	if api == nil {
		return nil, &domain.NotFoundError{Kind: "api", ID: test.APIID}
	}

	params := test.LastParams.Merge(override)
	if err := api.ValidateParams(params); err != nil {
		return nil, err
	}

	log := d.Logger.With(zap.Int64("test_id", test.ID), zap.String("test", test.Name))
	log.Debug("dispatch_state", zap.String("state", string(domain.CycleResolving)))

	nodes, err := d.Resolver.Resolve(ctx, *test)
	if err != nil {
		return nil, fmt.Errorf("resolve targets: %w", err)
	}
	if len(nodes) == 0 {
		log.Warn("dispatch_no_targets",
			zap.String("target_kind", string(test.Target.Kind)),
			zap.Int64("target_id", test.Target.ID))
		return nil, fmt.Errorf("test %d: %w", test.ID, domain.ErrNoTargets)
	}

	if len(override) > 0 {
		if err := d.Tests.SetLastParams(ctx, test.ID, params); err != nil {
			log.Warn("dispatch_last_params_error", zap.Error(err))
		}
	}

	report := &domain.ExecutionReport{
		CycleID:    uuid.NewString(),
		TestID:     test.ID,
		TestName:   test.Name,
		ExecutedAt: d.now(),
		Total:      len(nodes),
	}
	log = log.With(zap.String("cycle_id", report.CycleID))
	log.Info("dispatch_started", zap.Int("targets", len(nodes)))

	report.State = domain.CycleDispatching
	outcomes := d.dispatch(ctx, log, report.CycleID, *test, *api, nodes, params)

	report.State = domain.CycleRecording
	persistErr := d.record(ctx, log, outcomes)

	report.Outcomes = make([]domain.NodeOutcome, len(nodes))
	for i, n := range nodes {
		report.Outcomes[i] = domain.NodeOutcome{NodeName: n.Name, Outcome: outcomes[i]}
		if outcomes[i].Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	report.State = domain.CycleCompleted
	report.Persisted = persistErr == nil

	log.Info("dispatch_completed",
		zap.Int("total", report.Total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Bool("persisted", report.Persisted),
	)

	if persistErr != nil {
		report.PersistErr = persistErr.Error()
		return report, fmt.Errorf("%w: %w", domain.ErrPersistence, persistErr)
	}
	return report, nil
}

// dispatch invokes the API on every node through the pool. The result slice
// is indexed like nodes.
func (d *Dispatcher) dispatch(
	ctx context.Context,
	log *zap.Logger,
	cycleID string,
	test domain.SyntheticTest,
	api domain.APIDefinition,
	nodes []domain.Node,
	params domain.Parameters,
) []domain.ExecutionOutcome {
	cctx := ctx
	if d.cycleTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, d.cycleTimeout)
		defer cancel()
	}

	input := params.Encode()
	outcomes := make([]domain.ExecutionOutcome, len(nodes))
	group := d.pool.NewGroup()
	for i, node := range nodes {
		i, node := i, node
		group.Submit(func() {
			outcomes[i] = d.invokeOne(cctx, log, cycleID, test, api, node, params, input)
		})
	}
	if err := group.Wait(); err != nil {
		log.Warn("dispatch_group_error", zap.Error(err))
	}
	return outcomes
}

func (d *Dispatcher) invokeOne(
	ctx context.Context,
	log *zap.Logger,
	cycleID string,
	test domain.SyntheticTest,
	api domain.APIDefinition,
	node domain.Node,
	params domain.Parameters,
	input string,
) (out domain.ExecutionOutcome) {
	out = domain.ExecutionOutcome{
		ID:         uuid.NewString(),
		CycleID:    cycleID,
		TestID:     test.ID,
		NodeID:     node.ID,
		Input:      input,
		ExecutedAt: d.now(),
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch_node_panic", zap.Int64("node_id", node.ID), zap.Any("panic", r))
			out.Success = false
			out.StatusCode = 0
			out.ResponseTimeMs = 0
			out.Output = errorPayload(fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		out.Output = errorPayload("cycle deadline exceeded before dispatch: " + err.Error())
		log.Warn("dispatch_node_failed", zap.Int64("node_id", node.ID), zap.Error(err))
		return out
	}

	res := d.Invoker.Invoke(ctx, api, node, params)
	out.Success = res.Success
	out.StatusCode = res.StatusCode
	out.ResponseTimeMs = res.ResponseTimeMs
	switch {
	case len(res.Payload) > 0:
		out.Output = string(res.Payload)
	case res.Error != "":
		out.Output = errorPayload(res.Error)
	}

	if !res.Success {
		log.Warn("dispatch_node_failed",
			zap.Int64("node_id", node.ID),
			zap.String("node", node.Name),
			zap.Int("status", res.StatusCode),
			zap.String("error", res.Error),
		)
	}
	return out
}

// record appends every outcome concurrently. Appends run detached from
// cancellation of ctx so a cancelled caller does not lose history rows.
func (d *Dispatcher) record(ctx context.Context, log *zap.Logger, outcomes []domain.ExecutionOutcome) error {
	wctx := context.WithoutCancel(ctx)
	var mu sync.Mutex
	var errs error
	group := d.pool.NewGroup()
	for i := range outcomes {
		o := &outcomes[i]
		group.Submit(func() {
			if err := d.History.Append(wctx, o); err != nil {
				log.Error("history_append_error",
					zap.String("outcome_id", o.ID),
					zap.Int64("node_id", o.NodeID),
					zap.Error(err),
				)
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("node %d: %w", o.NodeID, err))
				mu.Unlock()
			}
		})
	}
	if err := group.Wait(); err != nil {
		mu.Lock()
		errs = multierr.Append(errs, err)
		mu.Unlock()
	}
	return errs
}

func errorPayload(msg string) string {
	b, _ := json.Marshal(map[string]string{"message": msg})
	return string(b)
}
