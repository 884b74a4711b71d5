package pipeline

import (
	"context"
	"log"

	"formrelay/internal/metrics"
	"formrelay/internal/models"
	"formrelay/internal/repository"
	"formrelay/internal/state"
	"formrelay/internal/upstream"
)

// StatusPoller reconciles submitted-but-unsettled records against the
// upstream status report. One bad record never aborts the batch.
type StatusPoller struct {
	repo      repository.SubmissionRepository
	client    upstream.StatusClient
	recorder  metrics.Recorder
	batchSize int
}

func NewStatusPoller(repo repository.SubmissionRepository, client upstream.StatusClient, recorder metrics.Recorder, batchSize int) *StatusPoller {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &StatusPoller{
		repo:      repo,
		client:    client,
		recorder:  recorder,
		batchSize: batchSize,
	}
}

// Poll runs one reconciliation pass.
func (p *StatusPoller) Poll(ctx context.Context) error {
	pending, err := p.repo.FetchAwaitingDecision(ctx, p.batchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	byUpstreamID := make(map[string]*models.Submission, len(pending))
	ids := make([]string, 0, len(pending))
	for i := range pending {
		sub := &pending[i]
		if sub.UpstreamID == nil {
			continue
		}
		byUpstreamID[*sub.UpstreamID] = sub
		ids = append(ids, *sub.UpstreamID)
	}

	records, err := p.client.ListStatuses(ctx, ids)
	if err != nil {
		return err
	}

	handled := 0
	for _, record := range records {
		sub, ok := byUpstreamID[record.UpstreamID]
		if !ok {
			log.Printf("poller: unknown upstream id %s in status report, ignoring", record.UpstreamID)
			continue
		}
		p.handleStatus(ctx, sub, record.Status)
		handled++
	}
	log.Printf("poller: handled %d of %d status records", handled, len(records))
	return nil
}

// handleStatus applies the upstream status word to one record. An update
// that finds the record already settled is a no-op.
func (p *StatusPoller) handleStatus(ctx context.Context, sub *models.Submission, status string) {
	switch status {
	case upstream.StatusError, upstream.StatusExpired:
		changed, err := p.repo.MarkRejected(ctx, sub.ID, "upstream status: "+status)
		p.logOutcome(sub, state.StateRejected, resultFailure, changed, err)
	case upstream.StatusConfirmed:
		changed, err := p.repo.MarkAccepted(ctx, sub.ID, *sub.UpstreamID)
		p.logOutcome(sub, state.StateAccepted, resultTrueSuccess, changed, err)
	case upstream.StatusReceived:
		changed, err := p.repo.MarkParanoidSuccess(ctx, sub.ID, *sub.UpstreamID)
		p.logOutcome(sub, state.StateParanoidSuccess, resultParanoidSuccess, changed, err)
	default:
		log.Printf("poller: unknown or incomplete status %q for submission %s", status, sub.ID)
	}
}

func (p *StatusPoller) logOutcome(sub *models.Submission, to state.SubmissionState, result string, changed bool, err error) {
	if err != nil {
		log.Printf("poller: transition %s to %s: %v", sub.ID, to, err)
		return
	}
	if !changed {
		log.Printf("poller: submission %s already settled, %s not applied", sub.ID, to)
		return
	}
	p.recorder.Increment("submission_status." + sub.FormType + "." + result)
	p.recorder.Increment("submission_status.all_forms." + result)
}
