package entity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"recipe-extraction-service/internal/entity"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to entity.JobStatus }{
		{entity.StatusPending, entity.StatusProcessing},
		{entity.StatusPending, entity.StatusCancelled},
		{entity.StatusPending, entity.StatusCompleted}, // duplicate short-circuit
		{entity.StatusProcessing, entity.StatusCompleted},
		{entity.StatusProcessing, entity.StatusFailed},
		{entity.StatusProcessing, entity.StatusCancelled},
		{entity.StatusProcessing, entity.StatusNotARecipe},
		{entity.StatusProcessing, entity.StatusWebsiteBlocked},
	}
	for _, tc := range allowed {
		assert.True(t, entity.CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to entity.JobStatus }{
		{entity.StatusPending, entity.StatusFailed},
		{entity.StatusPending, entity.StatusNotARecipe},
		{entity.StatusProcessing, entity.StatusPending},
		{entity.StatusCompleted, entity.StatusProcessing},
		{entity.StatusCancelled, entity.StatusCompleted},
		{entity.StatusFailed, entity.StatusProcessing},
	}
	for _, tc := range denied {
		assert.False(t, entity.CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	terminals := []entity.JobStatus{
		entity.StatusCompleted, entity.StatusFailed, entity.StatusCancelled,
		entity.StatusNotARecipe, entity.StatusWebsiteBlocked,
	}
	all := append([]entity.JobStatus{entity.StatusPending, entity.StatusProcessing}, terminals...)

	for _, from := range terminals {
		assert.True(t, from.Terminal())
		for _, to := range all {
			assert.False(t, entity.CanTransition(from, to), "terminal %s must not transition to %s", from, to)
		}
	}
}

func TestTransitionSources(t *testing.T) {
	assert.ElementsMatch(t,
		[]entity.JobStatus{entity.StatusPending, entity.StatusProcessing},
		entity.TransitionSources(entity.StatusCancelled))
	assert.ElementsMatch(t,
		[]entity.JobStatus{entity.StatusPending, entity.StatusProcessing},
		entity.TransitionSources(entity.StatusCompleted))
	assert.ElementsMatch(t,
		[]entity.JobStatus{entity.StatusProcessing},
		entity.TransitionSources(entity.StatusFailed))
	assert.Empty(t, entity.TransitionSources(entity.StatusPending))
}

func TestSourceTypeShape(t *testing.T) {
	assert.True(t, entity.SourceLink.IsURLBased())
	assert.True(t, entity.SourceVideo.IsURLBased())
	assert.False(t, entity.SourcePaste.IsURLBased())
	assert.False(t, entity.SourceType("carrier_pigeon").Valid())
}
