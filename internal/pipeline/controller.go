package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"formrelay/internal/metrics"
	"formrelay/internal/models"
	"formrelay/internal/notify"
	"formrelay/internal/repository"
	"formrelay/internal/secure"
	"formrelay/internal/state"
	"formrelay/internal/upstream"
)

// Counter suffixes shared by the controller and the poller.
const (
	resultTrueSuccess     = "true_success"
	resultParanoidSuccess = "paranoid_success"
	resultFailure         = "failure"
)

// ControllerConfig is the policy knob set for submission handling.
type ControllerConfig struct {
	// SendFailureEmail gates the user-facing notification on terminal
	// failures. The operational metric fires regardless.
	SendFailureEmail  bool
	FailureTemplateID string
}

// Controller owns the submission state machine: it interprets adapter
// outcomes, performs the compare-and-set transitions, and triggers the
// compensating actions on terminal failure. Nothing else writes submission
// state.
type Controller struct {
	repo     repository.SubmissionRepository
	client   upstream.Client
	box      *secure.Box
	notifier notify.Dispatcher
	recorder metrics.Recorder
	cfg      ControllerConfig
}

func NewController(
	repo repository.SubmissionRepository,
	client upstream.Client,
	box *secure.Box,
	notifier notify.Dispatcher,
	recorder metrics.Recorder,
	cfg ControllerConfig,
) *Controller {
	return &Controller{
		repo:     repo,
		client:   client,
		box:      box,
		notifier: notifier,
		recorder: recorder,
		cfg:      cfg,
	}
}

// Run executes one delivery attempt. A transient upstream failure is
// recorded and re-returned so the queue's retry bookkeeping stays
// centralized; every other outcome is settled here.
func (c *Controller) Run(ctx context.Context, submissionID uuid.UUID, sealedContext []byte) error {
	sub, err := c.repo.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Deleted by retention or never created; retrying cannot help.
			log.Printf("controller: submission %s not found, dropping", submissionID)
			return nil
		}
		return err
	}

	if state.IsTerminal(sub.State) || sub.State == state.StateParanoidSuccess {
		// Re-entry after a settled outcome is a no-op, not an error. Happens
		// when a retry was already scheduled while the poller settled the
		// record.
		return nil
	}

	claimed, err := c.repo.MarkSubmitting(ctx, sub.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// Another execution of the same logical submission holds it.
		log.Printf("controller: submission %s already in flight, skipping", sub.ID)
		return nil
	}

	userContext, err := c.openContext(sub, sealedContext)
	if err != nil {
		// Undecryptable context cannot be fixed by retrying.
		c.reject(ctx, sub, nil, fmt.Sprintf("unusable user context: %v", err))
		return nil
	}

	receipt, err := c.client.Submit(ctx, sub, userContext)
	switch {
	case err == nil:
		c.settleSuccess(ctx, sub, receipt)
		return nil
	case upstream.IsPermanent(err):
		c.reject(ctx, sub, userContext, err.Error())
		return nil
	default:
		// Transient by taxonomy, and anything unclassified is treated as
		// transient so the queue retries it.
		if _, markErr := c.repo.MarkErrored(ctx, sub.ID, err.Error()); markErr != nil {
			log.Printf("controller: mark errored %s: %v", sub.ID, markErr)
		}
		return err
	}
}

func (c *Controller) settleSuccess(ctx context.Context, sub *models.Submission, receipt *upstream.Receipt) {
	if receipt.Confirmed() {
		if _, err := c.repo.MarkAccepted(ctx, sub.ID, receipt.UpstreamID); err != nil {
			log.Printf("controller: mark accepted %s: %v", sub.ID, err)
			return
		}
		c.record(sub.FormType, resultTrueSuccess)
		return
	}

	if _, err := c.repo.MarkParanoidSuccess(ctx, sub.ID, receipt.UpstreamID); err != nil {
		log.Printf("controller: mark paranoid success %s: %v", sub.ID, err)
		return
	}
	c.record(sub.FormType, resultParanoidSuccess)
}

func (c *Controller) reject(ctx context.Context, sub *models.Submission, decryptedContext []byte, detail string) {
	if _, err := c.repo.MarkRejected(ctx, sub.ID, detail); err != nil {
		log.Printf("controller: mark rejected %s: %v", sub.ID, err)
		return
	}
	c.record(sub.FormType, resultFailure)
	c.sendFailureEmail(sub, decryptedContext)
}

// openContext prefers the sealed blob passed through the job arguments and
// falls back to the copy stored on the record.
func (c *Controller) openContext(sub *models.Submission, sealedContext []byte) ([]byte, error) {
	sealed := sealedContext
	if len(sealed) == 0 {
		sealed = sub.EncryptedContext
	}
	if len(sealed) == 0 {
		return nil, nil
	}
	return c.box.Open(sealed)
}

// sendFailureEmail performs the compensating notification for a terminal
// failure. Every failure inside it is contained: a notification problem must
// never change submission state or suppress the metrics already recorded.
func (c *Controller) sendFailureEmail(sub *models.Submission, decryptedContext []byte) {
	if !c.cfg.SendFailureEmail {
		return
	}

	var formEmail, firstName string
	if fields, err := sub.ParseFormFields(); err == nil {
		formEmail = fields.Email
		firstName = fields.FirstName
	} else {
		log.Printf("controller: unparseable form payload for %s: %v", sub.ID, err)
	}

	recipient := notify.ResolveRecipient(formEmail, decryptedContext)
	if recipient == "" {
		log.Printf("controller: no recipient known for %s, skipping failure email", sub.ID)
		return
	}

	fields := notify.Personalization{
		"first_name":          firstName,
		"form_type":           sub.FormType,
		"confirmation_number": sub.ID.String(),
	}
	if err := c.notifier.SendFailure(recipient, c.cfg.FailureTemplateID, fields); err != nil {
		log.Printf("controller: failure email for %s not sent: %v", sub.ID, err)
	}
}

func (c *Controller) record(formType, result string) {
	c.recorder.Increment("submission_status." + formType + "." + result)
	c.recorder.Increment("submission_status.all_forms." + result)
}
