package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/platform"
)

// runMail is the mail worker loop. Same skeleton as chat; sending is a
// create-draft, send-draft, delete-draft transaction per counterpart, and a
// create or send failure aborts only that counterpart.
func (w *worker) runMail() {
	w.publish(StatusProcessing)

	for {
		if w.ctx.Err() != nil {
			w.publish(StatusStopped)
			return
		}

		targets, err := w.collectTargets()
		if err != nil {
			if w.endCycle(err) {
				return
			}
			continue
		}

		for _, tgt := range targets {
			if w.sendMailTo(tgt) {
				return
			}
		}

		if w.endCycle(nil) {
			return
		}
	}
}

// sendMailTo runs the three-step mail transaction for one counterpart.
// Returns true when the worker must exit.
func (w *worker) sendMailTo(tgt target) (done bool) {
	recipients := []string{tgt.counterpartID}
	draft := platform.MailDraft{
		ProfileID:    w.key.ProfileID,
		RecipientIDs: recipients,
		Content:      w.req.Message,
		Attachments:  w.req.Attachments,
	}

	var draftID int64
	skip, err := w.attempt(func(ctx context.Context) error {
		id, cerr := w.sup.api.CreateDraft(ctx, w.req.Credentials, draft)
		if cerr != nil {
			return cerr
		}
		draftID = id
		return nil
	})
	if err != nil {
		return w.endCycle(err)
	}
	if skip {
		w.countSkipped()
		w.publish(StatusProcessing)
		return false
	}

	skip, err = w.attempt(func(ctx context.Context) error {
		return w.sup.api.SendDraft(ctx, w.req.Credentials, w.key.ProfileID, draftID, recipients)
	})
	if err != nil {
		return w.endCycle(err)
	}
	if skip {
		w.countSkipped()
		w.publish(StatusProcessing)
		return false
	}

	// Draft cleanup is best-effort; a leftover draft never fails the send.
	if derr := w.sup.api.DeleteDraft(w.ctx, w.req.Credentials, draftID); derr != nil && w.ctx.Err() == nil {
		log.Debug().
			Str("profileId", w.key.ProfileID).
			Int64("draftId", draftID).
			Err(derr).
			Msg("Draft delete failed, ignoring")
	}

	w.sup.blocks.Add(w.key.ProfileID, w.key.Kind, tgt.counterpartID)
	w.countSent()
	w.publish(StatusProcessing)

	log.Debug().
		Str("profileId", w.key.ProfileID).
		Str("counterpartId", tgt.counterpartID).
		Msg("Mail sent")

	if perr := w.pause(w.sup.cfg.Current().MessageDelay()); perr != nil {
		w.publish(StatusStopped)
		return true
	}
	return false
}
