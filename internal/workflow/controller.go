package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mlauria/lexflow/internal/jobs"
	"github.com/mlauria/lexflow/internal/observability"
	"github.com/mlauria/lexflow/internal/plan"
	"github.com/mlauria/lexflow/internal/queue"
	"github.com/mlauria/lexflow/internal/research"
	"github.com/mlauria/lexflow/internal/session"
)

var (
	ErrEmptyQuery   = errors.New("query is required")
	ErrInvalidPhase = errors.New("operation not valid in current phase")
	ErrNoPlan       = errors.New("no plan is loaded")
	ErrTermsNeeded  = errors.New("terms must be accepted before queue execution")
	ErrQueueRunning = errors.New("queue execution has not finished")
)

// jobKind tells terminal-outcome handling which operation the job belongs to.
type jobKind int

const (
	jobPlan jobKind = iota
	jobExecute
	jobBatchPlan
	jobBatchExecute
)

// Controller drives one analysis workflow through its phases. It owns the
// phase, the loaded plan, and the in-memory session state; everything the
// presentation layer sees is a Snapshot copy. At most one job subscription
// is open at any instant.
type Controller struct {
	id          string
	client      research.Client
	persistence *session.Persistence
	metrics     *observability.Metrics
	debounce    time.Duration

	mu           sync.Mutex
	phase        Phase
	query        string
	mutator      *plan.Mutator
	tasks        *queue.Manager
	jobID        string
	jobProgress  jobs.StatusUpdate
	result       json.RawMessage
	lastError    string
	isQueueMode  bool
	queueDone    bool
	sub          *jobs.Handle
	subGen       uint64
	lastActivity time.Time

	// persistMu serializes store writes for this workflow; persistGen is
	// bumped when persisted state is discarded so saves snapshotted
	// before the discard never land after it.
	persistMu  sync.Mutex
	persistGen uint64

	subscribers map[int]chan struct{}
	nextWatchID int
}

func NewController(id string, client research.Client, persistence *session.Persistence, metrics *observability.Metrics, debounce time.Duration) *Controller {
	return &Controller{
		id:           id,
		client:       client,
		persistence:  persistence,
		metrics:      metrics,
		debounce:     debounce,
		phase:        PhaseInput,
		tasks:        queue.NewManager(client),
		lastActivity: time.Now().UTC(),
		subscribers:  make(map[int]chan struct{}),
	}
}

func (c *Controller) ID() string { return c.id }

// Snapshot is the read-only projection consumed by the presentation layer.
type Snapshot struct {
	WorkflowID      string               `json:"workflow_id"`
	Phase           Phase                `json:"phase"`
	Query           string               `json:"query,omitempty"`
	Plan            *plan.Data           `json:"plan,omitempty"`
	Tasks           []queue.AnalysisTask `json:"tasks,omitempty"`
	Result          json.RawMessage      `json:"result,omitempty"`
	Error           string               `json:"error,omitempty"`
	JobID           string               `json:"job_id,omitempty"`
	JobPosition     int                  `json:"job_position,omitempty"`
	JobTotal        int                  `json:"job_total,omitempty"`
	IsQueueMode     bool                 `json:"is_queue_mode"`
	Busy            bool                 `json:"busy"`
	IsAdjustingPlan bool                 `json:"is_adjusting_plan"`
	QueueDone       bool                 `json:"queue_done"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		WorkflowID:  c.id,
		Phase:       c.phase,
		Query:       c.query,
		Tasks:       c.tasks.Tasks(),
		Error:       c.lastError,
		JobID:       c.jobID,
		JobPosition: c.jobProgress.Position,
		JobTotal:    c.jobProgress.Total,
		IsQueueMode: c.isQueueMode,
		Busy:        c.phase == PhaseCreatingPlan || c.phase == PhaseExecuting || c.phase == PhaseExecutingQueue,
		QueueDone:   c.queueDone,
	}
	// A finished execution shows its result in place, so the phase alone
	// does not mean work is in flight.
	if c.phase == PhaseExecuting && c.result != nil {
		snap.Busy = false
	}
	if c.phase == PhaseExecutingQueue && c.queueDone {
		snap.Busy = false
	}
	if c.mutator != nil {
		p := c.mutator.Plan()
		snap.Plan = &p
		snap.IsAdjustingPlan = c.mutator.IsUpdating()
	}
	if c.result != nil {
		snap.Result = append(json.RawMessage(nil), c.result...)
	}
	return snap
}

// Watch returns a channel that signals after every meaningful state change,
// plus a cancel func. The channel is coalescing: a slow reader sees at least
// one signal per burst.
func (c *Controller) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	c.nextWatchID++
	id := c.nextWatchID
	c.subscribers[id] = ch
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

// LastActivity reports when the workflow last changed, for idle expiry.
func (c *Controller) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// CreatePlan submits a planning job for query. A blank query performs no
// submission and no phase change.
func (c *Controller) CreatePlan(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return ErrEmptyQuery
	}
	c.mu.Lock()
	if _, err := nextPhase(c.phase, EventPlanRequested); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	res, err := c.client.CreatePlan(ctx, query)
	if err != nil {
		c.failInline(err)
		return err
	}

	c.mu.Lock()
	to, terr := nextPhase(c.phase, EventPlanRequested)
	if terr != nil {
		c.mu.Unlock()
		return terr
	}
	c.query = query
	c.mutator = nil
	c.result = nil
	c.lastError = ""
	c.jobID = res.JobID
	c.jobProgress = jobs.StatusUpdate{}
	c.setPhaseLocked(to)
	c.openSubscriptionLocked(res.JobID, jobPlan)
	c.persistLocked()
	c.notifyLocked()
	c.mu.Unlock()
	return nil
}

// ExecutePlan submits an execution job for the loaded plan.
func (c *Controller) ExecutePlan(ctx context.Context, planID string, prefs *research.NotificationPrefs) error {
	c.mu.Lock()
	if c.mutator == nil {
		c.mu.Unlock()
		return ErrNoPlan
	}
	if current := c.mutator.Plan(); current.PlanID != planID {
		c.mu.Unlock()
		return ErrNoPlan
	}
	if _, err := nextPhase(c.phase, EventExecuteRequested); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	res, err := c.client.ExecutePlan(ctx, planID, prefs)
	if err != nil {
		c.failInline(err)
		return err
	}

	c.mu.Lock()
	to, terr := nextPhase(c.phase, EventExecuteRequested)
	if terr != nil {
		c.mu.Unlock()
		return terr
	}
	c.lastError = ""
	c.result = nil
	c.jobID = res.JobID
	c.jobProgress = jobs.StatusUpdate{}
	c.setPhaseLocked(to)
	c.openSubscriptionLocked(res.JobID, jobExecute)
	c.persistLocked()
	c.notifyLocked()
	c.mu.Unlock()
	return nil
}

// AdjustCaseLimit forwards to the plan mutator; no-op without a plan.
func (c *Controller) AdjustCaseLimit(newValue int) error {
	c.mu.Lock()
	m := c.mutator
	c.mu.Unlock()
	if m == nil {
		return ErrNoPlan
	}
	m.AdjustCaseLimit(newValue)
	return nil
}

// AddToQueue adds a task to the server queue, switches to queue mode, and
// lands on queue management.
func (c *Controller) AddToQueue(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return ErrEmptyQuery
	}
	c.mu.Lock()
	if _, err := nextPhase(c.phase, EventQueueEntered); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if _, err := c.tasks.AddTask(ctx, query); err != nil {
		c.failInline(err)
		return err
	}
	if err := c.tasks.Refresh(ctx); err != nil {
		log.Printf("workflow %s: queue refresh after add: %v", c.id, err)
	}

	c.mu.Lock()
	to, terr := nextPhase(c.phase, EventQueueEntered)
	if terr != nil {
		c.mu.Unlock()
		return terr
	}
	c.isQueueMode = true
	c.lastError = ""
	c.setPhaseLocked(to)
	c.persistLocked()
	c.notifyLocked()
	c.mu.Unlock()
	return nil
}

// RemoveFromQueue removes one task server-side and refreshes the mirror.
func (c *Controller) RemoveFromQueue(ctx context.Context, taskID string) error {
	if err := c.tasks.RemoveTask(ctx, taskID); err != nil {
		c.failInline(err)
		return err
	}
	if err := c.tasks.Refresh(ctx); err != nil {
		log.Printf("workflow %s: queue refresh after remove: %v", c.id, err)
	}
	c.mu.Lock()
	c.lastError = ""
	c.notifyLocked()
	c.mu.Unlock()
	return nil
}

// GenerateAllPlans submits one batch planning job covering all pending
// tasks.
func (c *Controller) GenerateAllPlans(ctx context.Context) error {
	c.mu.Lock()
	if _, err := nextPhase(c.phase, EventBatchPlanRequested); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	jobID, err := c.tasks.GeneratePlansBatch(ctx)
	if err != nil {
		c.failInline(err)
		return err
	}

	c.mu.Lock()
	to, terr := nextPhase(c.phase, EventBatchPlanRequested)
	if terr != nil {
		c.mu.Unlock()
		return terr
	}
	c.lastError = ""
	c.jobID = jobID
	c.jobProgress = jobs.StatusUpdate{}
	c.setPhaseLocked(to)
	c.openSubscriptionLocked(jobID, jobBatchPlan)
	c.persistLocked()
	c.notifyLocked()
	c.mu.Unlock()
	return nil
}

// ExecuteQueue submits one batch execution job. After it reaches a terminal
// state the controller stays on executing_queue; ViewQueueResults is the
// only way forward.
func (c *Controller) ExecuteQueue(ctx context.Context, notificationEmail string, termsAccepted bool) error {
	if !termsAccepted {
		return ErrTermsNeeded
	}
	c.mu.Lock()
	if _, err := nextPhase(c.phase, EventBatchExecuteRequested); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	jobID, err := c.tasks.ExecuteQueue(ctx, notificationEmail, termsAccepted)
	if err != nil {
		c.failInline(err)
		return err
	}

	c.mu.Lock()
	to, terr := nextPhase(c.phase, EventBatchExecuteRequested)
	if terr != nil {
		c.mu.Unlock()
		return terr
	}
	c.lastError = ""
	c.queueDone = false
	c.jobID = jobID
	c.jobProgress = jobs.StatusUpdate{}
	c.setPhaseLocked(to)
	c.openSubscriptionLocked(jobID, jobBatchExecute)
	c.persistLocked()
	c.notifyLocked()
	c.mu.Unlock()
	return nil
}

// ViewQueueResults advances to the results step after batch execution has
// finished. It never happens automatically.
func (c *Controller) ViewQueueResults() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseExecutingQueue && !c.queueDone {
		return ErrQueueRunning
	}
	to, err := nextPhase(c.phase, EventResultsRequested)
	if err != nil {
		return err
	}
	c.setPhaseLocked(to)
	c.persistLocked()
	c.notifyLocked()
	return nil
}

// NewAnalysis discards all workflow state and returns to input.
func (c *Controller) NewAnalysis(ctx context.Context) error {
	return c.CloseSession(ctx)
}

// CloseSession closes any open subscription, cancels pending plan mutation,
// discards in-memory and persisted state, and returns to input. Server-side
// jobs are not cancelled; they can be reconciled on a later restore.
func (c *Controller) CloseSession(ctx context.Context) error {
	c.mu.Lock()
	c.closeSubscriptionLocked()
	if c.mutator != nil {
		c.mutator.Cancel()
	}
	c.mutator = nil
	c.query = ""
	c.jobID = ""
	c.jobProgress = jobs.StatusUpdate{}
	c.result = nil
	c.lastError = ""
	c.isQueueMode = false
	c.queueDone = false
	c.tasks.Clear()
	c.setPhaseLocked(PhaseInput)
	// Invalidate saves snapshotted before this point; they must not
	// resurrect the session after the clear below.
	c.persistGen++
	c.notifyLocked()
	c.mu.Unlock()

	c.persistMu.Lock()
	err := c.persistence.Clear(ctx, c.id)
	c.persistMu.Unlock()
	if err != nil {
		log.Printf("workflow %s: clear persisted session: %v", c.id, err)
	}
	c.metrics.ObserveSessionOp("clear")
	return nil
}

// ClearAndCloseQueue removes every queued task server-side, then closes the
// session.
func (c *Controller) ClearAndCloseQueue(ctx context.Context) error {
	for _, task := range c.tasks.Tasks() {
		if err := c.tasks.RemoveTask(ctx, task.ID); err != nil {
			log.Printf("workflow %s: remove task %s on close: %v", c.id, task.ID, err)
		}
	}
	return c.CloseSession(ctx)
}

// Shutdown stops background work without touching persisted state, so the
// workflow can be restored later.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeSubscriptionLocked()
	if c.mutator != nil {
		c.mutator.Cancel()
	}
}

// failInline records a submission rejection on the current step without a
// phase transition.
func (c *Controller) failInline(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = err.Error()
	c.notifyLocked()
}

func (c *Controller) setPhaseLocked(to Phase) {
	if c.phase == to {
		return
	}
	c.metrics.ObservePhaseTransition(string(c.phase), string(to))
	c.phase = to
}

func (c *Controller) notifyLocked() {
	c.lastActivity = time.Now().UTC()
	for _, ch := range c.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// persistLocked mirrors the current state into the session store. Writes
// happen off the lock on a snapshot, so a slow store never blocks the
// workflow. Writes are serialized on persistMu and re-checked against
// persistGen, so a save launched before CloseSession can never land after
// its Clear and resurrect the discarded session.
func (c *Controller) persistLocked() {
	sess := session.WorkflowSession{
		Query:       c.query,
		CurrentStep: string(c.phase),
		JobID:       c.jobID,
		IsQueueMode: c.isQueueMode,
	}
	if c.mutator != nil {
		p := c.mutator.Plan()
		sess.PlanData = &p
	}
	if c.result != nil {
		sess.Result = append(json.RawMessage(nil), c.result...)
	}
	gen := c.persistGen

	go func() {
		c.persistMu.Lock()
		defer c.persistMu.Unlock()
		c.mu.Lock()
		stale := gen != c.persistGen
		c.mu.Unlock()
		if stale {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.persistence.Save(ctx, c.id, sess); err != nil {
			log.Printf("workflow %s: persist session: %v", c.id, err)
			return
		}
		c.metrics.ObserveSessionOp("save")
	}()
}
