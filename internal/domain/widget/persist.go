package widget

import (
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/experiment"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/protocol"
	"go.uber.org/zap"
)

type persistRequest struct {
	action   experiment.Action
	selector *string
	variant  *string
	control  *string
	path     *string
}

// persist saves the experiment for a successful mutation. Missing
// configuration or inputs skip the save silently. The store call runs off
// the loop and its outcome is applied back on the loop; the last response
// to arrive wins.
func (c *Controller) persist(req persistRequest) {
	token := protocol.Deref(c.config.ControlToken)
	if token == "" {
		c.sink.Event("widget.experiment.persist.skip", zap.String("reason", "missing-control-token"))
		return
	}
	if c.persister == nil || c.sched == nil {
		c.sink.Event("widget.experiment.persist.skip", zap.String("reason", "no-client"))
		return
	}

	path := experiment.ResolvePath(req.path, c.hostPath, c.headline.Path, c.location.Path)
	if path == "" {
		c.sink.Event("widget.experiment.persist.skip", zap.String("reason", "missing-path"))
		return
	}
	if protocol.Deref(req.control) == "" {
		c.sink.Event("widget.experiment.persist.skip", zap.String("reason", "missing-control-headline"))
		return
	}
	if req.action == experiment.ActionUpdate && protocol.Deref(req.variant) == "" {
		c.sink.Event("widget.experiment.persist.skip", zap.String("reason", "missing-variant-headline"))
		return
	}

	c.setExperimentState(ExperimentSaving, "")
	body := experiment.UpsertRequest{
		Token:           c.config.Token,
		Path:            path,
		Selector:        req.selector,
		ControlHeadline: *req.control,
		VariantHeadline: req.variant,
		Action:          req.action,
	}
	persister, ctx, sched := c.persister, c.ctx, c.sched

	c.spawn(func() {
		snap, err := persister.Upsert(ctx, token, body)
		sched.Post(func() {
			if err != nil {
				c.persistFailed(err)
				return
			}
			c.persistSucceeded(req, path, snap)
		})
	})
}

func (c *Controller) persistSucceeded(req persistRequest, path string, snap *experiment.Snapshot) {
	saved := path
	if snap != nil && snap.Path != "" {
		saved = snap.Path
	}
	c.hostPath = &saved

	switch {
	case snap != nil:
		c.experiment = snap
	case req.action == experiment.ActionReset:
		c.experiment = nil
	}
	c.setExperimentState(ExperimentSuccess, "")

	ev := Event{
		Kind:            EventExperimentSaved,
		Selector:        req.selector,
		Path:            &saved,
		ControlHeadline: req.control,
		VariantHeadline: req.variant,
		Status:          req.action.DefaultStatus(),
	}
	if snap != nil {
		ev.Selector = firstNonNil(snap.Selector, req.selector)
		ev.ControlHeadline = firstNonNil(snap.ControlHeadline, req.control)
		ev.VariantHeadline = firstNonNil(snap.VariantHeadline, req.variant)
		if snap.Status.Valid() {
			ev.Status = snap.Status
		}
	}
	c.enqueue(ev)
	c.sink.Event("widget.experiment.persist.success", zap.String("action", string(req.action)), zap.String("path", saved))

	if c.ExperimentReady() != c.lastModeReady {
		c.postMode()
	}
}

func (c *Controller) persistFailed(err error) {
	msg := err.Error()
	if msg == "" {
		msg = MsgSaveFailed
	}
	c.setExperimentState(ExperimentError, msg)
	c.enqueue(Event{Kind: EventExperimentError, Message: msg})
	c.sink.Event("widget.experiment.persist.error", zap.String("message", msg))
}
