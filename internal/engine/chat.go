package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/platform"
)

// runChat is the chat worker loop: fetch, filter, resolve, then one paced
// templated send per counterpart, every send funnelled through the
// classifier.
func (w *worker) runChat() {
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
			if w.sendChatTo(tgt) {
				return
			}
		}

		if w.endCycle(nil) {
			return
		}
	}
}

// sendChatTo delivers the attachment messages and the templated text to one
// counterpart. Returns true when the worker must exit.
func (w *worker) sendChatTo(tgt target) (done bool) {
	// Attachments go first; a soft failure skips the whole counterpart.
	for _, att := range w.req.Attachments {
		msg := platform.ChatMessage{
			SenderID:    w.key.ProfileID,
			RecipientID: tgt.counterpartID,
			Content:     att.Title,
			Type:        att.Kind,
			FileURL:     att.URL,
		}
		skip, err := w.attempt(func(ctx context.Context) error {
			return w.sup.api.SendChatMessage(ctx, w.req.Credentials, msg)
		})
		if err != nil {
			return w.endCycle(err)
		}
		if skip {
			w.countSkipped()
			w.publish(StatusProcessing)
			return false
		}
	}

	text := platform.ChatMessage{
		SenderID:    w.key.ProfileID,
		RecipientID: tgt.counterpartID,
		Content:     w.req.Message,
		Type:        "SENT_TEXT",
	}
	skip, err := w.attempt(func(ctx context.Context) error {
		return w.sup.api.SendChatMessage(ctx, w.req.Credentials, text)
	})
	if err != nil {
		return w.endCycle(err)
	}
	if skip {
		w.countSkipped()
		w.publish(StatusProcessing)
		return false
	}

	w.sup.blocks.Add(w.key.ProfileID, w.key.Kind, tgt.counterpartID)
	w.countSent()
	w.publish(StatusProcessing)

	log.Debug().
		Str("profileId", w.key.ProfileID).
		Str("counterpartId", tgt.counterpartID).
		Msg("Chat message sent")

	if perr := w.pause(w.sup.cfg.Current().MessageDelay()); perr != nil {
		w.publish(StatusStopped)
		return true
	}
	return false
}
