package sample_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tracseq/lims-core/internal/sample"
	"github.com/tracseq/lims-core/pkg/constant"
)

func TestValidateTransitionAllowsTableEntries(t *testing.T) {
	cases := []struct {
		from, to sample.Status
	}{
		{sample.StatusPending, sample.StatusValidated},
		{sample.StatusPending, sample.StatusRejected},
		{sample.StatusPending, sample.StatusDeleted},
		{sample.StatusValidated, sample.StatusInStorage},
		{sample.StatusValidated, sample.StatusInSequencing},
		{sample.StatusInStorage, sample.StatusInSequencing},
		{sample.StatusInSequencing, sample.StatusCompleted},
		{sample.StatusInSequencing, sample.StatusFailed},
		{sample.StatusCompleted, sample.StatusArchived},
		{sample.StatusFailed, sample.StatusPending},
		{sample.StatusFailed, sample.StatusDeleted},
		{sample.StatusRejected, sample.StatusPending},
		{sample.StatusRejected, sample.StatusDeleted},
	}

	for _, c := range cases {
		assert.NoError(t, sample.ValidateTransition(c.from, c.to), "%s -> %s should be allowed", c.from, c.to)
	}
}

func TestValidateTransitionRejectsEverythingElse(t *testing.T) {
	cases := []struct {
		from, to sample.Status
	}{
		{sample.StatusPending, sample.StatusInSequencing},
		{sample.StatusPending, sample.StatusCompleted},
		{sample.StatusInStorage, sample.StatusPending},
		{sample.StatusCompleted, sample.StatusInSequencing},
		{sample.StatusArchived, sample.StatusPending},
		{sample.StatusDeleted, sample.StatusPending},
		{sample.StatusValidated, sample.StatusArchived},
		{sample.StatusFailed, sample.StatusArchived},
		{sample.StatusRejected, sample.StatusArchived},
	}

	for _, c := range cases {
		err := sample.ValidateTransition(c.from, c.to)
		assert.Error(t, err, "%s -> %s should be rejected", c.from, c.to)
		assert.Equal(t, constant.KindInvalidWorkflowTransition, constant.KindOf(err))
	}
}

func TestRequiresLocation(t *testing.T) {
	assert.True(t, sample.RequiresLocation(sample.StatusInStorage))
	assert.True(t, sample.RequiresLocation(sample.StatusInSequencing))
	assert.False(t, sample.RequiresLocation(sample.StatusPending))
	assert.False(t, sample.RequiresLocation(sample.StatusArchived))
}
