package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
	"github.com/nick-gallo-ethico/approvalflow/internal/domain/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTwoStep(t *testing.T, f *fixture) *entity.WorkflowInstance {
	t.Helper()
	seedDefinition(f, twoStepDefinition())
	instance, err := f.engine.Start(context.Background(), StartInput{
		OrganizationID: "acme",
		EntityType:     entity.EntityTypePolicy,
		EntityID:       "pol-1",
		InitiatorID:    "alice",
	})
	require.NoError(t, err)
	return instance
}

func TestSequentialApprovalToCompletion(t *testing.T) {
	f := newFixture(defaultResolver())
	instance := startTwoStep(t, f)

	after, err := f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "alice",
		StepSequence: 0,
		Action:       entity.ActionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusInProgress, after.Status)
	assert.Equal(t, 1, after.CurrentStep)
	assert.Equal(t, entity.StepStatusSatisfied, after.StepAt(0).Status)
	assert.Equal(t, entity.StepStatusActive, after.StepAt(1).Status)

	after, err = f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "bob",
		StepSequence: 1,
		Action:       entity.ActionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, after.Status)
	require.NotNil(t, after.CompletedAt)

	// Steps activated in order, then one completion callback.
	assert.Equal(t, []int{0, 1}, f.notifier.activated)
	assert.Equal(t, []string{entity.StatusApproved}, f.notifier.completed)
}

func TestRejectionHaltsWorkflow(t *testing.T) {
	f := newFixture(defaultResolver())
	instance := startTwoStep(t, f)

	after, err := f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "alice",
		StepSequence: 0,
		Action:       entity.ActionReject,
		Comment:      "insufficient detail",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRejected, after.Status)
	require.NotNil(t, after.CompletedAt)

	// The second step never activates.
	loaded, err := f.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StepStatusLocked, loaded.StepAt(1).Status)

	// Nothing further is accepted.
	_, err = f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "bob",
		StepSequence: 1,
		Action:       entity.ActionApprove,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidState))
}

func TestDecisionOnWrongStep(t *testing.T) {
	f := newFixture(defaultResolver())
	instance := startTwoStep(t, f)

	// Step 1 is still LOCKED.
	_, err := f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "bob",
		StepSequence: 1,
		Action:       entity.ActionApprove,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepNotActive))

	// Step 7 does not exist.
	_, err = f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "alice",
		StepSequence: 7,
		Action:       entity.ActionApprove,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepNotActive))
}

func TestUnauthorizedActors(t *testing.T) {
	f := newFixture(defaultResolver())
	instance := startTwoStep(t, f)

	tests := []struct {
		name    string
		actorID string
	}{
		{name: "actor without the role", actorID: "dave"},
		{name: "actor from another organization", actorID: "eve"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.SubmitDecision(context.Background(), DecisionInput{
				InstanceID:   instance.ID,
				ActorID:      tt.actorID,
				StepSequence: 0,
				Action:       entity.ActionApprove,
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnauthorizedAction))
		})
	}

	// Failed validation leaves no decision record behind.
	decisions, err := f.decisions.GetByInstanceID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

func TestUnknownActionRejected(t *testing.T) {
	f := newFixture(defaultResolver())
	instance := startTwoStep(t, f)

	_, err := f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "alice",
		StepSequence: 0,
		Action:       "ESCALATE",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown decision action")
}

func parallelDefinition(threshold int, users ...string) *entity.WorkflowDefinition {
	return &entity.WorkflowDefinition{
		OrganizationID: "acme",
		EntityType:     entity.EntityTypeInvestigation,
		Version:        1,
		Steps: []entity.StepTemplate{
			{
				Sequence: 0,
				Parallel: true,
				Rule:     rule.ApproverRule{Kind: rule.KindUserSet, Users: users, Threshold: threshold},
			},
		},
	}
}

func startParallel(t *testing.T, f *fixture, def *entity.WorkflowDefinition) *entity.WorkflowInstance {
	t.Helper()
	seedDefinition(f, def)
	instance, err := f.engine.Start(context.Background(), StartInput{
		OrganizationID: "acme",
		EntityType:     def.EntityType,
		EntityID:       "inv-1",
		InitiatorID:    "alice",
	})
	require.NoError(t, err)
	return instance
}

func TestParallelThresholdSatisfaction(t *testing.T) {
	f := newFixture(defaultResolver())
	instance := startParallel(t, f, parallelDefinition(1, "alice", "bob"))

	// 1-of-2: the first approval completes the workflow.
	after, err := f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "bob",
		StepSequence: 0,
		Action:       entity.ActionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, after.Status)
}

func TestParallelUnanimousDefault(t *testing.T) {
	f := newFixture(defaultResolver())
	instance := startParallel(t, f, parallelDefinition(0, "alice", "bob", "carol"))

	for _, actor := range []string{"alice", "bob"} {
		after, err := f.engine.SubmitDecision(context.Background(), DecisionInput{
			InstanceID:   instance.ID,
			ActorID:      actor,
			StepSequence: 0,
			Action:       entity.ActionApprove,
		})
		require.NoError(t, err)
		assert.Equal(t, entity.StatusInProgress, after.Status)
	}

	after, err := f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "carol",
		StepSequence: 0,
		Action:       entity.ActionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, after.Status)
}

func TestDuplicateApprovalSameActor(t *testing.T) {
	f := newFixture(defaultResolver())
	instance := startParallel(t, f, parallelDefinition(0, "alice", "bob"))

	_, err := f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "alice",
		StepSequence: 0,
		Action:       entity.ActionApprove,
	})
	require.NoError(t, err)

	// The same slot cannot approve twice; the count stays at one.
	_, err = f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "alice",
		StepSequence: 0,
		Action:       entity.ActionApprove,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepNotActive))

	loaded, err := f.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.StepAt(0).ApprovedSlots, 1)
}

func TestLateApprovalOnSatisfiedParallelStep(t *testing.T) {
	f := newFixture(defaultResolver())
	def := &entity.WorkflowDefinition{
		OrganizationID: "acme",
		EntityType:     entity.EntityTypeInvestigation,
		Version:        1,
		Steps: []entity.StepTemplate{
			{
				Sequence: 0,
				Parallel: true,
				Rule:     rule.ApproverRule{Kind: rule.KindUserSet, Users: []string{"alice", "bob"}, Threshold: 1},
			},
			{
				Sequence: 1,
				Rule:     rule.ApproverRule{Kind: rule.KindRoleSet, Roles: []string{"legal"}},
			},
		},
	}
	instance := startParallel(t, f, def)

	_, err := f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "alice",
		StepSequence: 0,
		Action:       entity.ActionApprove,
	})
	require.NoError(t, err)

	// Bob's approval arrives after the group is satisfied: recorded for
	// audit, no state change.
	after, err := f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "bob",
		StepSequence: 0,
		Action:       entity.ActionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, after.CurrentStep)
	assert.Equal(t, entity.StepStatusSatisfied, after.StepAt(0).Status)

	decisions, err := f.decisions.GetByInstanceID(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Len(t, decisions, 2)

	// A late reject is not accepted.
	_, err = f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "bob",
		StepSequence: 0,
		Action:       entity.ActionReject,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepNotActive))
}

func TestDelegation(t *testing.T) {
	f := newFixture(defaultResolver())
	instance := startParallel(t, f, parallelDefinition(0, "alice", "bob"))

	// Alice hands her slot to dave.
	_, err := f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "alice",
		StepSequence: 0,
		Action:       entity.ActionDelegate,
		DelegateTo:   "dave",
	})
	require.NoError(t, err)

	// Alice may no longer act on this step.
	_, err = f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "alice",
		StepSequence: 0,
		Action:       entity.ActionApprove,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorizedAction))

	// Dave approves in alice's slot.
	after, err := f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "dave",
		StepSequence: 0,
		Action:       entity.ActionApprove,
	})
	require.NoError(t, err)
	assert.Contains(t, after.StepAt(0).ApprovedSlots, "alice")

	// Bob completes the unanimous group.
	after, err = f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "bob",
		StepSequence: 0,
		Action:       entity.ActionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, after.Status)
}

func TestDelegateRequiresTarget(t *testing.T) {
	f := newFixture(defaultResolver())
	instance := startTwoStep(t, f)

	_, err := f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID:   instance.ID,
		ActorID:      "alice",
		StepSequence: 0,
		Action:       entity.ActionDelegate,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delegate_to is required")
}

func TestConcurrentDecisionsSerialize(t *testing.T) {
	f := newFixture(defaultResolver())
	seedDefinition(f, &entity.WorkflowDefinition{
		OrganizationID: "acme",
		EntityType:     entity.EntityTypePolicy,
		Version:        1,
		Steps: []entity.StepTemplate{
			{Sequence: 0, Rule: rule.ApproverRule{Kind: rule.KindUserSet, Users: []string{"alice", "bob"}, Threshold: 1}, Parallel: true},
		},
	})
	instance, err := f.engine.Start(context.Background(), StartInput{
		OrganizationID: "acme",
		EntityType:     entity.EntityTypePolicy,
		EntityID:       "pol-1",
		InitiatorID:    "alice",
	})
	require.NoError(t, err)

	// Two actors race a 1-of-2 step. Per-instance serialization means the
	// loser observes the advanced state instead of double-completing.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actor := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(i int, actor string) {
			defer wg.Done()
			_, errs[i] = f.engine.SubmitDecision(context.Background(), DecisionInput{
				InstanceID:   instance.ID,
				ActorID:      actor,
				StepSequence: 0,
				Action:       entity.ActionApprove,
			})
		}(i, actor)
	}
	wg.Wait()

	// Exactly one decision wins. The loser re-reads the now-terminal
	// instance and fails with ErrInvalidState; the instance completes
	// exactly once.
	winners := 0
	for _, e := range errs {
		if e == nil {
			winners++
		} else {
			assert.True(t, errors.Is(e, ErrInvalidState))
		}
	}
	assert.Equal(t, 1, winners)

	loaded, err := f.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, loaded.Status)
	assert.Len(t, f.notifier.completed, 1)
}
