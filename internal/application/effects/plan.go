package effects

import (
	"time"

	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

// Plan returns the outbox tasks a request reaching status must run.
// Non-terminal statuses have no effects.
func Plan(req *entity.Request, status workflow.State, now time.Time) []*entity.EffectTask {
	switch {
	case status == workflow.StateAcceptee:
		tasks := make([]*entity.EffectTask, 0, len(entity.AcceptanceDocuments)+2)
		for _, doc := range entity.AcceptanceDocuments {
			tasks = append(tasks, &entity.EffectTask{
				RequestID:    req.ID,
				Kind:         entity.EffectGenerateDocument,
				DocumentType: doc,
				RunAt:        now,
			})
		}
		tasks = append(tasks, &entity.EffectTask{
			RequestID: req.ID,
			Kind:      entity.EffectNotifyApplicant,
			RunAt:     now,
		})

		applyAt := now
		if req.EffectiveDate != nil && req.EffectiveDate.After(now) {
			applyAt = *req.EffectiveDate
		}
		return append(tasks, &entity.EffectTask{
			RequestID: req.ID,
			Kind:      entity.EffectApplyMutation,
			RunAt:     applyAt,
		})

	case status.IsTerminal():
		return []*entity.EffectTask{{
			RequestID: req.ID,
			Kind:      entity.EffectNotifyApplicant,
			RunAt:     now,
		}}
	}
	return nil
}
