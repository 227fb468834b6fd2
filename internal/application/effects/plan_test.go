package effects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

func TestPlan(t *testing.T) {
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	later := now.AddDate(0, 2, 0)
	earlier := now.AddDate(0, -1, 0)

	tests := []struct {
		name      string
		status    workflow.State
		effective *time.Time
		labels    []string
		applyAt   time.Time
	}{
		{
			name:   "accepted without effective date",
			status: workflow.StateAcceptee,
			labels: []string{
				"GENERATE_DOCUMENT/ORDRE_MUTATION",
				"GENERATE_DOCUMENT/LETTRE_NOTIFICATION",
				"GENERATE_DOCUMENT/ATTESTATION_ADMINISTRATIVE",
				"NOTIFY_APPLICANT",
				"APPLY_MUTATION",
			},
			applyAt: now,
		},
		{
			name:      "accepted with future effective date",
			status:    workflow.StateAcceptee,
			effective: &later,
			applyAt:   later,
		},
		{
			name:      "accepted with past effective date",
			status:    workflow.StateAcceptee,
			effective: &earlier,
			applyAt:   now,
		},
		{name: "final rejection", status: workflow.StateRejetee, labels: []string{"NOTIFY_APPLICANT"}},
		{name: "ineligible", status: workflow.StateIneligible, labels: []string{"NOTIFY_APPLICANT"}},
		{name: "dgr unfavourable", status: workflow.StateAvisDGRDefavorable, labels: []string{"NOTIFY_APPLICANT"}},
		{name: "in review", status: workflow.StateEnEtudeDGR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &entity.Request{ID: "req-1", EffectiveDate: tt.effective}

			tasks := Plan(req, tt.status, now)

			if tt.labels != nil || tt.applyAt.IsZero() {
				var labels []string
				for _, task := range tasks {
					labels = append(labels, task.Label())
				}
				assert.Equal(t, tt.labels, labels)
			}
			for _, task := range tasks {
				assert.Equal(t, "req-1", task.RequestID)
				if task.Kind == entity.EffectApplyMutation {
					assert.True(t, tt.applyAt.Equal(task.RunAt))
				} else {
					assert.True(t, now.Equal(task.RunAt))
				}
			}
			if !tt.applyAt.IsZero() {
				require.Len(t, tasks, 5)
			}
		})
	}
}
