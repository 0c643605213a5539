package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nick-gallo-ethico/approvalflow/internal/application/port"
	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
	"github.com/nick-gallo-ethico/approvalflow/internal/domain/rule"
	"go.uber.org/zap"
)

// In-memory fakes for the repository ports. They copy on read like a real
// store would, so engine-side mutations never alias stored state, and they
// are safe for concurrent use.

type memDefinitions struct {
	mu   sync.Mutex
	defs []*entity.WorkflowDefinition
}

func (m *memDefinitions) Create(_ context.Context, def *entity.WorkflowDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	def.ID = int64(len(m.defs) + 1)
	def.CreatedAt = time.Now()
	stored := *def
	m.defs = append(m.defs, &stored)
	return nil
}

func (m *memDefinitions) GetLatest(_ context.Context, organizationID, entityType string) (*entity.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *entity.WorkflowDefinition
	for _, d := range m.defs {
		if d.OrganizationID == organizationID && d.EntityType == entityType {
			if best == nil || d.Version > best.Version {
				best = d
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	out := *best
	return &out, nil
}

func (m *memDefinitions) GetVersion(_ context.Context, organizationID, entityType string, version int) (*entity.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.defs {
		if d.OrganizationID == organizationID && d.EntityType == entityType && d.Version == version {
			out := *d
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memDefinitions) MaxVersion(_ context.Context, organizationID, entityType string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, d := range m.defs {
		if d.OrganizationID == organizationID && d.EntityType == entityType && d.Version > max {
			max = d.Version
		}
	}
	return max, nil
}

type memInstances struct {
	mu        sync.Mutex
	instances []*entity.WorkflowInstance
}

func copyInstance(in *entity.WorkflowInstance) *entity.WorkflowInstance {
	out := *in
	out.Steps = nil
	if in.CompletedAt != nil {
		t := *in.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func (m *memInstances) Create(_ context.Context, instance *entity.WorkflowInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	instance.ID = int64(len(m.instances) + 1)
	instance.CreatedAt = time.Now()
	m.instances = append(m.instances, copyInstance(instance))
	return nil
}

func (m *memInstances) GetByID(_ context.Context, id int64) (*entity.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.instances {
		if i.ID == id {
			return copyInstance(i), nil
		}
	}
	return nil, nil
}

func (m *memInstances) GetActiveByEntity(_ context.Context, organizationID, entityType, entityID string) (*entity.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.instances {
		if i.OrganizationID == organizationID && i.EntityType == entityType && i.EntityID == entityID && !entity.IsTerminalStatus(i.Status) {
			return copyInstance(i), nil
		}
	}
	return nil, nil
}

func (m *memInstances) GetLatestByEntity(_ context.Context, organizationID, entityType, entityID string) (*entity.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *entity.WorkflowInstance
	for _, i := range m.instances {
		if i.OrganizationID == organizationID && i.EntityType == entityType && i.EntityID == entityID {
			if latest == nil || i.ID > latest.ID {
				latest = i
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyInstance(latest), nil
}

func (m *memInstances) UpdateStatus(_ context.Context, id int64, status string, currentStep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.instances {
		if i.ID == id {
			i.Status = status
			i.CurrentStep = currentStep
			return nil
		}
	}
	return fmt.Errorf("instance %d not found", id)
}

func (m *memInstances) SetCompleted(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.instances {
		if i.ID == id {
			now := time.Now()
			i.CompletedAt = &now
			return nil
		}
	}
	return fmt.Errorf("instance %d not found", id)
}

type memSteps struct {
	mu    sync.Mutex
	steps []*entity.StepState
}

func copyStep(in *entity.StepState) *entity.StepState {
	out := *in
	out.ApprovedSlots = append([]string(nil), in.ApprovedSlots...)
	if in.Delegations != nil {
		out.Delegations = make(map[string]string, len(in.Delegations))
		for k, v := range in.Delegations {
			out.Delegations[k] = v
		}
	}
	return &out
}

func (m *memSteps) Create(_ context.Context, step *entity.StepState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	step.ID = int64(len(m.steps) + 1)
	step.UpdatedAt = time.Now()
	m.steps = append(m.steps, copyStep(step))
	return nil
}

func (m *memSteps) GetByInstanceID(_ context.Context, instanceID int64) ([]*entity.StepState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.StepState
	for _, s := range m.steps {
		if s.InstanceID == instanceID {
			out = append(out, copyStep(s))
		}
	}
	return out, nil
}

func (m *memSteps) GetBySequence(_ context.Context, instanceID int64, sequence int) (*entity.StepState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.steps {
		if s.InstanceID == instanceID && s.Sequence == sequence {
			return copyStep(s), nil
		}
	}
	return nil, nil
}

func (m *memSteps) UpdateStatus(_ context.Context, id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.steps {
		if s.ID == id {
			s.Status = status
			return nil
		}
	}
	return fmt.Errorf("step %d not found", id)
}

func (m *memSteps) UpdateProgress(_ context.Context, id int64, approvedSlots []string, delegations map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.steps {
		if s.ID == id {
			s.ApprovedSlots = append([]string(nil), approvedSlots...)
			s.Delegations = make(map[string]string, len(delegations))
			for k, v := range delegations {
				s.Delegations[k] = v
			}
			return nil
		}
	}
	return fmt.Errorf("step %d not found", id)
}

type memDecisions struct {
	mu        sync.Mutex
	decisions []*entity.Decision
}

func (m *memDecisions) Create(_ context.Context, decision *entity.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	decision.ID = int64(len(m.decisions) + 1)
	decision.CreatedAt = time.Now()
	stored := *decision
	m.decisions = append(m.decisions, &stored)
	return nil
}

func (m *memDecisions) GetByInstanceID(_ context.Context, instanceID int64) ([]*entity.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Decision
	for _, d := range m.decisions {
		if d.InstanceID == instanceID {
			c := *d
			out = append(out, &c)
		}
	}
	return out, nil
}

type memTransitions struct {
	mu          sync.Mutex
	transitions []*entity.Transition
}

func (m *memTransitions) Create(_ context.Context, transition *entity.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	transition.ID = int64(len(m.transitions) + 1)
	transition.CreatedAt = time.Now()
	stored := *transition
	m.transitions = append(m.transitions, &stored)
	return nil
}

func (m *memTransitions) GetByInstanceID(_ context.Context, instanceID int64) ([]*entity.Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Transition
	for _, t := range m.transitions {
		if t.InstanceID == instanceID {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

// nopTxManager runs the function directly; the fakes apply writes
// immediately, which is fine for the behaviors under test.
type nopTxManager struct{}

func (nopTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// mapResolver is a test identity resolver.
type mapResolver map[string]*port.Identity

func (m mapResolver) Resolve(_ context.Context, actorID string) (*port.Identity, error) {
	id, ok := m[actorID]
	if !ok {
		return nil, fmt.Errorf("unknown actor %q", actorID)
	}
	return id, nil
}

// recordingNotifier captures engine callbacks.
type recordingNotifier struct {
	mu        sync.Mutex
	activated []int
	completed []string
}

func (n *recordingNotifier) OnStepActivated(_ context.Context, _ *entity.WorkflowInstance, step *entity.StepState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.activated = append(n.activated, step.Sequence)
}

func (n *recordingNotifier) OnInstanceCompleted(_ context.Context, _ *entity.WorkflowInstance, finalStatus string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, finalStatus)
}

type fixture struct {
	engine      Engine
	definitions *memDefinitions
	instances   *memInstances
	steps       *memSteps
	decisions   *memDecisions
	transitions *memTransitions
	notifier    *recordingNotifier
}

func newFixture(resolver port.IdentityResolver) *fixture {
	f := &fixture{
		definitions: &memDefinitions{},
		instances:   &memInstances{},
		steps:       &memSteps{},
		decisions:   &memDecisions{},
		transitions: &memTransitions{},
		notifier:    &recordingNotifier{},
	}
	f.engine = New(
		f.definitions,
		f.instances,
		f.steps,
		f.decisions,
		f.transitions,
		nopTxManager{},
		resolver,
		zap.NewNop(),
		WithNotifier(f.notifier),
	)
	return f
}

func defaultResolver() mapResolver {
	return mapResolver{
		"alice": {ActorID: "alice", OrganizationID: "acme", Roles: []string{"manager"}},
		"bob":   {ActorID: "bob", OrganizationID: "acme", Roles: []string{"finance"}},
		"carol": {ActorID: "carol", OrganizationID: "acme", Roles: []string{"legal"}},
		"dave":  {ActorID: "dave", OrganizationID: "acme", Roles: nil},
		"eve":   {ActorID: "eve", OrganizationID: "other", Roles: []string{"manager"}},
	}
}

// twoStepDefinition is a sequential manager step followed by a finance step.
func twoStepDefinition() *entity.WorkflowDefinition {
	return &entity.WorkflowDefinition{
		OrganizationID: "acme",
		EntityType:     entity.EntityTypePolicy,
		Version:        1,
		Steps: []entity.StepTemplate{
			{Sequence: 0, Rule: rule.ApproverRule{Kind: rule.KindRoleSet, Roles: []string{"manager"}}},
			{Sequence: 1, Rule: rule.ApproverRule{Kind: rule.KindRoleSet, Roles: []string{"finance"}}},
		},
	}
}

func seedDefinition(f *fixture, def *entity.WorkflowDefinition) {
	if err := f.definitions.Create(context.Background(), def); err != nil {
		panic(err)
	}
}
