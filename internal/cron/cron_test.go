package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateflow/stateflow/pkg/models"
	"github.com/stateflow/stateflow/pkg/service"
	"github.com/stateflow/stateflow/pkg/storage"
)

type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Warnf(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

func newService() (*service.WorkflowService, *service.MemoryAdapter) {
	wt := models.WorkflowType{
		ID: "editorial",
		States: []models.State{
			{ID: "draft", CreationState: true, Active: true},
			{ID: "published", Active: true, Weight: 1},
		},
		Transitions: []models.ConfigTransition{
			{From: "draft", To: "published", Capabilities: []string{"publish"}},
		},
		Settings: models.Settings{ScheduleEnabled: true},
	}
	svc := service.NewWorkflowService(storage.NewMockStore(), service.CapabilityMap{}, []models.WorkflowType{wt}, noopLogger{})
	adapter := service.NewMemoryAdapter(true)
	svc.RegisterAdapter("article", adapter)
	return svc, adapter
}

func TestTickProcessesWindowSinceLastRun(t *testing.T) {
	svc, adapter := newService()

	due := time.Now().Unix() - 10
	sched := models.NewTransition("editorial", "draft", "published", "article", "a1", "", "editor", due, false)
	_, err := svc.Schedule(service.NewExecutionContext(), sched, true)
	require.NoError(t, err)

	r, err := NewRunner(svc, noopLogger{}, "@every 1m")
	require.NoError(t, err)
	r.SetLastRun(due - 100)

	r.tick()

	ent, err := adapter.Resolve("a1")
	require.NoError(t, err)
	assert.Equal(t, "published", ent.StateValue(""))

	// The window advanced; the next tick has nothing to do.
	_, err = svc.ScheduledFor("article", "a1", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTickAdvancesWindow(t *testing.T) {
	svc, _ := newService()

	r, err := NewRunner(svc, noopLogger{}, "@every 1m")
	require.NoError(t, err)
	r.SetLastRun(0)

	r.tick()

	r.mu.Lock()
	last := r.lastRun
	r.mu.Unlock()
	assert.InDelta(t, time.Now().Unix(), last, 2)
}

func TestNewRunnerRejectsBadSpec(t *testing.T) {
	svc, _ := newService()
	_, err := NewRunner(svc, noopLogger{}, "not a cron spec")
	assert.Error(t, err)
}
