package store

import (
	"testing"

	"qms/clinic-queue/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from  models.Status
		to    models.Status
		valid bool
	}{
		{models.StatusWaiting, models.StatusInService, true},
		{models.StatusInService, models.StatusInService, false},
		{models.StatusCompleted, models.StatusInService, false},
		{models.StatusWaiting, models.StatusCompleted, true},
		{models.StatusInService, models.StatusCompleted, true},
		{models.StatusCompleted, models.StatusCompleted, false},
		{models.StatusCancelled, models.StatusCompleted, false},
		{models.StatusWaiting, models.StatusCancelled, true},
		{models.StatusInService, models.StatusCancelled, false},
		{models.StatusCancelled, models.StatusCancelled, false},
		{models.StatusInService, models.StatusWaiting, false},
		{models.StatusCancelled, models.StatusWaiting, false},
		{models.StatusWaiting, models.Status("unknown"), false},
	}

	for _, tt := range cases {
		assert.Equalf(t, tt.valid, ValidTransition(tt.from, tt.to), "ValidTransition(%q, %q)", tt.from, tt.to)
	}
}
