package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateflow/stateflow/pkg/models"
	"github.com/stateflow/stateflow/pkg/service"
	"github.com/stateflow/stateflow/pkg/storage"
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) InvalidateEntityState() { c.calls++ }

func TestRunDueFiresScheduledTransition(t *testing.T) {
	f := newFixture()
	ec := service.NewExecutionContext()

	sched := f.transition("draft", "review", "editor")
	sched.Timestamp = 2000
	result, err := f.svc.Schedule(ec, sched, false)
	require.NoError(t, err)
	assert.Equal(t, "draft", result, "scheduling does not change the current state")
	assert.Empty(t, f.entityState("a1"))

	require.NoError(t, f.svc.RunDue(1000, 3000))

	assert.Equal(t, "review", f.entityState("a1"))
	history, err := f.svc.History("article", "a1", "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "draft-review", history[0].StateLabel())
	assert.True(t, history[0].Forced, "scheduled transitions execute forced")
	assert.Contains(t, history[0].Comment, "Scheduled by system", "a default comment is synthesized")

	_, err = f.svc.ScheduledFor("article", "a1", "")
	assert.ErrorIs(t, err, storage.ErrNotFound, "no scheduled record remains after firing")
}

func TestRunDueDiscardsStaleTransition(t *testing.T) {
	f := newFixture()
	ec := service.NewExecutionContext()

	sched := f.transition("draft", "review", "editor")
	sched.Timestamp = 2000
	_, err := f.svc.Schedule(ec, sched, false)
	require.NoError(t, err)

	// The world moves on before the schedule fires.
	_, err = f.svc.Execute(ec, f.transition("draft", "published", "admin"), false)
	require.NoError(t, err)
	require.Equal(t, "published", f.entityState("a1"))

	require.NoError(t, f.svc.RunDue(1000, 3000))

	assert.Equal(t, "published", f.entityState("a1"), "stale schedule must not fire")
	history, err := f.svc.History("article", "a1", "")
	require.NoError(t, err)
	assert.Len(t, history, 1, "only the direct transition is recorded")

	_, err = f.svc.ScheduledFor("article", "a1", "")
	assert.ErrorIs(t, err, storage.ErrNotFound, "the stale record is deleted")
}

func TestRunDueWindowIsHalfOpen(t *testing.T) {
	f := newFixture()
	ec := service.NewExecutionContext()

	sched := f.transition("draft", "review", "editor")
	sched.Timestamp = 2000
	_, err := f.svc.Schedule(ec, sched, false)
	require.NoError(t, err)

	// Due time equal to the window start is excluded.
	require.NoError(t, f.svc.RunDue(2000, 3000))
	assert.Empty(t, f.entityState("a1"))

	// Due time equal to the window end is included.
	require.NoError(t, f.svc.RunDue(1000, 2000))
	assert.Equal(t, "review", f.entityState("a1"))
}

func TestRunDueProcessesAscendingDueOrder(t *testing.T) {
	f := newFixture()
	f.adapter.Add("a2", "owner1", false)
	ec := service.NewExecutionContext()

	late := models.NewTransition("editorial", "draft", "review", "article", "a2", "", "editor", 0, false)
	late.Timestamp = 2500
	_, err := f.svc.Schedule(ec, late, true)
	require.NoError(t, err)

	early := f.transition("draft", "review", "editor")
	early.Timestamp = 1500
	_, err = f.svc.Schedule(ec, early, true)
	require.NoError(t, err)

	var fired []string
	f.svc.RegisterPostObserver(service.PostTransitionFunc(func(t *models.Transition, actorID string) {
		fired = append(fired, t.EntityID)
	}))

	require.NoError(t, f.svc.RunDue(1000, 3000))
	assert.Equal(t, []string{"a1", "a2"}, fired)
}

func TestRunDueSupersededSchedule(t *testing.T) {
	f := newFixture()
	ec := service.NewExecutionContext()

	first := f.transition("draft", "review", "editor")
	first.Timestamp = 1500
	_, err := f.svc.Schedule(ec, first, false)
	require.NoError(t, err)

	// A later schedule for the same (entity, field) replaces the first.
	second := f.transition("draft", "review", "editor")
	second.Timestamp = 2500
	_, err = f.svc.Schedule(service.NewExecutionContext(), second, false)
	require.NoError(t, err)

	pending, err := f.svc.ScheduledFor("article", "a1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), pending.Timestamp)

	// The original due time no longer fires anything.
	require.NoError(t, f.svc.RunDue(1000, 2000))
	assert.Empty(t, f.entityState("a1"))
}

func TestRunDueKeepsCommentWhenPresent(t *testing.T) {
	f := newFixture()

	sched := f.transition("draft", "review", "editor")
	sched.Timestamp = 2000
	sched.Comment = "go live as planned"
	_, err := f.svc.Schedule(service.NewExecutionContext(), sched, false)
	require.NoError(t, err)

	require.NoError(t, f.svc.RunDue(1000, 3000))
	history, err := f.svc.History("article", "a1", "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "go live as planned", history[0].Comment)
}

func TestRunDueInvalidatesGenericFieldCaches(t *testing.T) {
	f := newFixture()
	inv := &countingInvalidator{}
	f.svc.SetCacheInvalidator(inv)

	sched := f.transition("draft", "review", "editor")
	sched.Timestamp = 2000
	_, err := f.svc.Schedule(service.NewExecutionContext(), sched, false)
	require.NoError(t, err)

	require.NoError(t, f.svc.RunDue(1000, 3000))
	assert.Equal(t, 1, inv.calls, "generic-field transitions invalidate entity-state caches once per run")

	// A field-scoped schedule does not trigger invalidation.
	f2 := newFixture()
	inv2 := &countingInvalidator{}
	f2.svc.SetCacheInvalidator(inv2)
	scoped := models.NewTransition("editorial", "draft", "review", "article", "a1", "body", "editor", 2000, false)
	_, err = f2.svc.Schedule(service.NewExecutionContext(), scoped, false)
	require.NoError(t, err)
	require.NoError(t, f2.svc.RunDue(1000, 3000))
	assert.Zero(t, inv2.calls)
}

func TestRunDueConsumesRecordWhenExecutionRefused(t *testing.T) {
	f := newFixture()

	sched := f.transition("draft", "review", "editor")
	sched.Timestamp = 2000
	_, err := f.svc.Schedule(service.NewExecutionContext(), sched, false)
	require.NoError(t, err)

	// The veto arrives after scheduling, so only the due execution sees it.
	f.svc.RegisterPreObserver(&vetoObserver{})

	require.NoError(t, f.svc.RunDue(1000, 3000))
	assert.Empty(t, f.entityState("a1"), "vetoed due transition does not fire")

	// Later windows exclude the past due time, so the record must not stay.
	_, err = f.svc.ScheduledFor("article", "a1", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScheduleDisabledWorkflow(t *testing.T) {
	wt := editorialType()
	wt.Settings.ScheduleEnabled = false
	f := newFixture(wt)

	sched := f.transition("draft", "review", "editor")
	sched.Timestamp = 2000
	result, err := f.svc.Schedule(service.NewExecutionContext(), sched, false)
	require.NoError(t, err)
	assert.Equal(t, "draft", result)

	_, err = f.svc.ScheduledFor("article", "a1", "")
	assert.ErrorIs(t, err, storage.ErrNotFound, "nothing is stored when scheduling is disabled")
}
