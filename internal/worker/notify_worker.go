package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"envelopes/internal/amqp"
	"envelopes/internal/budget"
	"envelopes/internal/core"
	"envelopes/internal/repository"
)

// NoteWriter is the slice of the repository the worker needs
type NoteWriter interface {
	repository.UserStore
	repository.NoteStore
}

// WarningConsumer delivers envelope warnings until ctx ends
type WarningConsumer interface {
	ConsumeEnvelopeWarnings(ctx context.Context, handler amqp.WarningHandler) error
}

// NotifyWorker turns envelope warnings into notes in the user's inbox
type NotifyWorker struct {
	store NoteWriter
}

func NewNotifyWorker(store NoteWriter) *NotifyWorker {
	return &NotifyWorker{store: store}
}

// Run consumes warnings until ctx is cancelled
func (w *NotifyWorker) Run(ctx context.Context, consumer WarningConsumer) error {
	err := consumer.ConsumeEnvelopeWarnings(ctx, w.HandleWarningMessage)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HandleWarningMessage stores one warning as a note. Redelivered messages
// for the same envelope, period and kind do not create duplicates.
func (w *NotifyWorker) HandleWarningMessage(ctx context.Context, msg *amqp.EnvelopeWarningMessage) error {
	slog.InfoContext(ctx, "Processing envelope warning",
		"component", "worker",
		"user_id", msg.UserID,
		"envelope_id", msg.EnvelopeID,
		"signal", msg.Kind)

	if _, err := w.store.EnsureUser(ctx, core.User{ID: msg.UserID}); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}

	ref := NoteRef(msg)
	existing, err := w.store.ListNotes(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("list notes: %w", err)
	}
	for _, n := range existing {
		if strings.HasSuffix(n.Body, ref) {
			slog.DebugContext(ctx, "Warning already recorded, skipping",
				"component", "worker", "user_id", msg.UserID, "note_id", n.ID)
			return nil
		}
	}

	note, err := w.store.CreateNote(ctx, core.Note{
		UserID: msg.UserID,
		Title:  NoteTitle(msg),
		Body:   NoteBody(msg),
	})
	if err != nil {
		return fmt.Errorf("create note: %w", err)
	}

	slog.InfoContext(ctx, "Envelope warning recorded",
		"component", "worker",
		"user_id", msg.UserID,
		"note_id", note.ID)
	return nil
}

// Keeps generated titles inside the note title limit.
const maxNoteEnvelopeTitle = 80

// NoteTitle is the display title; two envelopes may share one
func NoteTitle(msg *amqp.EnvelopeWarningMessage) string {
	title := msg.Title
	if strings.TrimSpace(title) == "" {
		title = core.UnknownEnvelope
	}
	if r := []rune(title); len(r) > maxNoteEnvelopeTitle {
		title = string(r[:maxNoteEnvelopeTitle]) + "..."
	}
	verb := "is approaching its budget"
	if msg.Kind == budget.Exceeded {
		verb = "exceeded its budget"
	}
	return fmt.Sprintf("%s %s (%s)", title, verb, msg.Period())
}

func NoteBody(msg *amqp.EnvelopeWarningMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Spent %s of %s in %s.", core.FormatAmount(msg.Spent), core.FormatAmount(msg.Budget), msg.Period())
	if msg.Kind == budget.Exceeded {
		fmt.Fprintf(&b, " Over budget by %s.", core.FormatAmount(msg.Overage))
	} else {
		fmt.Fprintf(&b, " Warning threshold is %s.", core.FormatAmount(msg.Threshold))
	}
	b.WriteString("\n")
	b.WriteString(NoteRef(msg))
	return b.String()
}

// NoteRef identifies the envelope, period and kind a note was written for.
// It closes every note body and is what redeliveries are matched on.
func NoteRef(msg *amqp.EnvelopeWarningMessage) string {
	return fmt.Sprintf("Ref: %s/%s/%s", msg.EnvelopeID, msg.Period(), msg.Kind)
}
