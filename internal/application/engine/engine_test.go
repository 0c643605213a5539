package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/nick-gallo-ethico/approvalflow/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCreatesInProgressInstance(t *testing.T) {
	f := newFixture(defaultResolver())
	seedDefinition(f, twoStepDefinition())

	instance, err := f.engine.Start(context.Background(), StartInput{
		OrganizationID: "acme",
		EntityType:     entity.EntityTypePolicy,
		EntityID:       "pol-1",
		InitiatorID:    "alice",
	})
	require.NoError(t, err)

	assert.Equal(t, entity.StatusInProgress, instance.Status)
	assert.Equal(t, 1, instance.DefinitionVersion)
	assert.Equal(t, 0, instance.CurrentStep)
	require.Len(t, instance.Steps, 2)
	assert.Equal(t, entity.StepStatusActive, instance.Steps[0].Status)
	assert.Equal(t, entity.StepStatusLocked, instance.Steps[1].Status)

	// Starting notifies the first step's approvers.
	assert.Equal(t, []int{0}, f.notifier.activated)
}

func TestStartWithoutDefinition(t *testing.T) {
	f := newFixture(defaultResolver())

	_, err := f.engine.Start(context.Background(), StartInput{
		OrganizationID: "acme",
		EntityType:     entity.EntityTypePolicy,
		EntityID:       "pol-1",
		InitiatorID:    "alice",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStartConflictsWithActiveInstance(t *testing.T) {
	f := newFixture(defaultResolver())
	seedDefinition(f, twoStepDefinition())

	in := StartInput{
		OrganizationID: "acme",
		EntityType:     entity.EntityTypePolicy,
		EntityID:       "pol-1",
		InitiatorID:    "alice",
	}
	_, err := f.engine.Start(context.Background(), in)
	require.NoError(t, err)

	_, err = f.engine.Start(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestStartAllowedAfterTerminalInstance(t *testing.T) {
	f := newFixture(defaultResolver())
	seedDefinition(f, twoStepDefinition())

	in := StartInput{
		OrganizationID: "acme",
		EntityType:     entity.EntityTypePolicy,
		EntityID:       "pol-1",
		InitiatorID:    "alice",
	}
	first, err := f.engine.Start(context.Background(), in)
	require.NoError(t, err)

	_, err = f.engine.Cancel(context.Background(), first.ID, "alice", "superseded")
	require.NoError(t, err)

	second, err := f.engine.Start(context.Background(), in)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, entity.StatusInProgress, second.Status)
}

func TestStartPinsDefinitionVersion(t *testing.T) {
	f := newFixture(defaultResolver())
	seedDefinition(f, twoStepDefinition())

	instance, err := f.engine.Start(context.Background(), StartInput{
		OrganizationID: "acme",
		EntityType:     entity.EntityTypePolicy,
		EntityID:       "pol-1",
		InitiatorID:    "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, instance.DefinitionVersion)

	// A later definition version does not touch the running instance.
	v2 := twoStepDefinition()
	v2.Version = 2
	seedDefinition(f, v2)

	loaded, err := f.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.DefinitionVersion)
}

func TestDeferredStartAndActivate(t *testing.T) {
	f := newFixture(defaultResolver())
	seedDefinition(f, twoStepDefinition())

	instance, err := f.engine.Start(context.Background(), StartInput{
		OrganizationID: "acme",
		EntityType:     entity.EntityTypePolicy,
		EntityID:       "pol-1",
		InitiatorID:    "alice",
		Deferred:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, instance.Status)
	for _, step := range instance.Steps {
		assert.Equal(t, entity.StepStatusLocked, step.Status)
	}
	// No approver notification until activation.
	assert.Empty(t, f.notifier.activated)

	// Decisions are rejected while PENDING.
	_, err = f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID: instance.ID,
		ActorID:    "alice",
		Action:     entity.ActionApprove,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepNotActive))

	activated, err := f.engine.Activate(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusInProgress, activated.Status)
	assert.Equal(t, entity.StepStatusActive, activated.StepAt(0).Status)
	assert.Equal(t, []int{0}, f.notifier.activated)

	// Activate is single-shot.
	_, err = f.engine.Activate(context.Background(), instance.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidState))
}

func TestCancel(t *testing.T) {
	f := newFixture(defaultResolver())
	seedDefinition(f, twoStepDefinition())

	instance, err := f.engine.Start(context.Background(), StartInput{
		OrganizationID: "acme",
		EntityType:     entity.EntityTypePolicy,
		EntityID:       "pol-1",
		InitiatorID:    "alice",
	})
	require.NoError(t, err)

	cancelled, err := f.engine.Cancel(context.Background(), instance.ID, "alice", "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CompletedAt)
	assert.Equal(t, []string{entity.StatusCancelled}, f.notifier.completed)

	// A second cancel reports the state without error.
	again, err := f.engine.Cancel(context.Background(), instance.ID, "bob", "race")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, again.Status)

	// Only one cancel transition was recorded.
	transitions, err := f.transitions.GetByInstanceID(context.Background(), instance.ID)
	require.NoError(t, err)
	cancels := 0
	for _, tr := range transitions {
		if tr.Cause == entity.CauseCancel {
			cancels++
			assert.Equal(t, "no longer needed", tr.Reason)
		}
	}
	assert.Equal(t, 1, cancels)
}

func TestCancelTerminalInstance(t *testing.T) {
	f := newFixture(defaultResolver())
	seedDefinition(f, twoStepDefinition())

	instance, err := f.engine.Start(context.Background(), StartInput{
		OrganizationID: "acme",
		EntityType:     entity.EntityTypePolicy,
		EntityID:       "pol-1",
		InitiatorID:    "alice",
	})
	require.NoError(t, err)

	_, err = f.engine.SubmitDecision(context.Background(), DecisionInput{
		InstanceID: instance.ID,
		ActorID:    "alice",
		Action:     entity.ActionReject,
	})
	require.NoError(t, err)

	_, err = f.engine.Cancel(context.Background(), instance.ID, "alice", "late")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidState))
}

func TestGetStatus(t *testing.T) {
	f := newFixture(defaultResolver())
	seedDefinition(f, twoStepDefinition())

	// Unknown entity: nil, no error.
	status, err := f.engine.GetStatus(context.Background(), "acme", entity.EntityTypePolicy, "pol-9")
	require.NoError(t, err)
	assert.Nil(t, status)

	instance, err := f.engine.Start(context.Background(), StartInput{
		OrganizationID: "acme",
		EntityType:     entity.EntityTypePolicy,
		EntityID:       "pol-1",
		InitiatorID:    "alice",
	})
	require.NoError(t, err)

	status, err = f.engine.GetStatus(context.Background(), "acme", entity.EntityTypePolicy, "pol-1")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, instance.ID, status.ID)
	assert.Equal(t, entity.StatusInProgress, status.Status)
	require.Len(t, status.Steps, 2)

	// After a terminal transition the most recent instance is still
	// reported.
	_, err = f.engine.Cancel(context.Background(), instance.ID, "alice", "")
	require.NoError(t, err)

	status, err = f.engine.GetStatus(context.Background(), "acme", entity.EntityTypePolicy, "pol-1")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, entity.StatusCancelled, status.Status)
}

func TestGetInstanceNotFound(t *testing.T) {
	f := newFixture(defaultResolver())

	_, err := f.engine.GetInstance(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}
