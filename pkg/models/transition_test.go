package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stateflow/stateflow/pkg/models"
)

func editorialType() *models.WorkflowType {
	return &models.WorkflowType{
		ID: "editorial",
		States: []models.State{
			{ID: "draft", Label: "Draft", Weight: 0, CreationState: true, Active: true},
			{ID: "review", Label: "In review", Weight: 1, Active: true},
			{ID: "published", Label: "Published", Weight: 2, Active: true},
			{ID: "retired", Label: "Retired", Weight: 3, Active: false},
		},
		Transitions: []models.ConfigTransition{
			{From: "draft", To: "review", Capabilities: []string{"submit"}},
			{From: "review", To: "published", Capabilities: []string{"publish"}},
		},
	}
}

func TestTransitionStateChange(t *testing.T) {
	tr := models.NewTransition("editorial", "draft", "review", "article", "a1", "", "u1", 100, false)
	assert.True(t, tr.HasStateChange())
	assert.False(t, tr.IsEmpty())

	noop := models.NewTransition("editorial", "draft", "draft", "article", "a1", "", "u1", 100, false)
	assert.False(t, noop.HasStateChange())
	assert.True(t, noop.IsEmpty())

	noop.Comment = "just a note"
	assert.False(t, noop.IsEmpty(), "comment-only transitions are not empty")

	noop.Comment = ""
	noop.AttachedChanged = true
	assert.False(t, noop.IsEmpty(), "attached field changes are not empty")
}

func TestTransitionRevertable(t *testing.T) {
	wt := editorialType()

	tr := models.NewTransition("editorial", "review", "published", "article", "a1", "", "u1", 100, false)
	assert.True(t, tr.IsRevertable(wt))

	t.Run("NoStateChange", func(t *testing.T) {
		same := models.NewTransition("editorial", "review", "review", "article", "a1", "", "u1", 100, false)
		assert.False(t, same.IsRevertable(wt))
	})

	t.Run("FromCreationState", func(t *testing.T) {
		fromDraft := models.NewTransition("editorial", "draft", "review", "article", "a1", "", "u1", 100, false)
		assert.False(t, fromDraft.IsRevertable(wt))
	})

	t.Run("FromInactiveState", func(t *testing.T) {
		fromRetired := models.NewTransition("editorial", "retired", "review", "article", "a1", "", "u1", 100, false)
		assert.False(t, fromRetired.IsRevertable(wt))
	})

	t.Run("UnknownFromState", func(t *testing.T) {
		unknown := models.NewTransition("editorial", "ghost", "review", "article", "a1", "", "u1", 100, false)
		assert.False(t, unknown.IsRevertable(wt))
	})
}

func TestTransitionExecutedImmutable(t *testing.T) {
	tr := models.NewTransition("editorial", "draft", "review", "article", "a1", "", "u1", 100, false)
	assert.NoError(t, tr.SetStatePair("review", "published"))

	tr.Executed = true
	err := tr.SetStatePair("published", "draft")
	assert.ErrorIs(t, err, models.ErrExecutedImmutable)
	assert.Equal(t, "review", tr.FromState)
	assert.Equal(t, "published", tr.ToState)

	// Only the comment may still change.
	tr.Comment = "amended after the fact"
	assert.Equal(t, "amended after the fact", tr.Comment)
}

func TestTransitionReverse(t *testing.T) {
	tr := models.NewTransition("editorial", "review", "published", "article", "a1", "body", "u1", 100, true)
	tr.RevisionID = "r7"

	rt := tr.Reverse("u2", 200)
	assert.Equal(t, "published", rt.FromState)
	assert.Equal(t, "review", rt.ToState)
	assert.Equal(t, "u2", rt.ActorID)
	assert.Equal(t, int64(200), rt.Timestamp)
	assert.Equal(t, "r7", rt.RevisionID)
	assert.Equal(t, "body", rt.Field)
	assert.False(t, rt.Scheduled)
	assert.False(t, rt.Executed)
}

func TestWorkflowTypeLookups(t *testing.T) {
	wt := editorialType()

	assert.Equal(t, "In review", wt.State("review").Label)
	assert.Nil(t, wt.State("ghost"))
	assert.Equal(t, "draft", wt.CreationState().ID)

	assert.Len(t, wt.ConfigTransitions("draft", "review"), 1)
	assert.Empty(t, wt.ConfigTransitions("draft", "published"))
}
