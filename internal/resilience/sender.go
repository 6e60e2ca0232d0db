// Package resilience makes sending survive disconnects and relay failures.
// A send that cannot complete degrades along a fallback chain instead of
// being lost: offline sends are queued, failed sends become drafts or
// outbox entries, and queued work is replayed once on reconnect.
package resilience

import (
	"bytes"
	"context"
	"strings"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/ternmail/tern/internal/mail"
	"github.com/ternmail/tern/internal/queue"
	"github.com/ternmail/tern/internal/smtp"
	"github.com/ternmail/tern/internal/status"
	"github.com/ternmail/tern/internal/sync"
	"github.com/ternmail/tern/internal/wake"
)

// MailSender submits one built message to the relay.
type MailSender interface {
	Send(o smtp.Outgoing) error
}

// Outcome reports where a submitted message ended up.
type Outcome int

const (
	// OutcomeSent means the relay accepted the message.
	OutcomeSent Outcome = iota
	// OutcomeQueuedOutbox means the message waits for the next reconnect.
	OutcomeQueuedOutbox
	// OutcomeDraftSaved means the message was filed as a server-side draft.
	OutcomeDraftSaved
	// OutcomeFailed means every fallback failed; the caller keeps the text.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeQueuedOutbox:
		return "queued"
	case OutcomeDraftSaved:
		return "draft saved"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config controls fallback and housekeeping behavior.
type Config struct {
	// OnSendFail picks the first fallback on a relay failure while
	// connected: "draft" or "outbox".
	OnSendFail string

	DraftsFolder string
	SentFolder   string
	TrashFolder  string
	InboxFolder  string

	// SelfAddress is the account's own address; sending to it invalidates
	// the inbox cache so the copy shows up without waiting for a refresh.
	SelfAddress string

	// ClientStoreSent appends a copy of sent mail to the sent folder.
	ClientStoreSent bool

	// BackupInterval is how often in-progress compositions are persisted.
	BackupInterval time.Duration
}

// Sender is the resilient send pipeline.
type Sender struct {
	db      *queue.DB
	relay   MailSender
	engine  *sync.Engine
	machine *status.Machine
	waker   *wake.Waker
	cfg     Config
	log     *zap.Logger
	cancel  context.CancelFunc

	mu     stdsync.Mutex
	backup *smtp.Outgoing
	// uploads tracks draft appends whose action result is still pending,
	// so a failed append can put the message back on the draft queue.
	uploads []pendingUpload
}

type pendingUpload struct {
	msg []byte
	o   smtp.Outgoing
}

func NewSender(db *queue.DB, relay MailSender, engine *sync.Engine, machine *status.Machine, waker *wake.Waker, cfg Config, log *zap.Logger) *Sender {
	return &Sender{
		db:      db,
		relay:   relay,
		engine:  engine,
		machine: machine,
		waker:   waker,
		cfg:     cfg,
		log:     log,
	}
}

// Start launches the compose-backup loop and registers the reconnect
// replay and upload-result observers.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.machine.Observe(func(ch status.Change) {
		if ch.To == status.Connected {
			go s.replay()
		}
	})
	s.engine.OnUploadResult(s.uploadFinished)
	go s.backupLoop(ctx)
}

// Stop stops the backup loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// SubmitSend pushes a message through the fallback chain and reports where
// it ended up.
func (s *Sender) SubmitSend(o smtp.Outgoing) Outcome {
	if !s.machine.IsConnected() {
		if err := s.db.PushMessage(queue.KindOutbox, o); err != nil {
			s.log.Error("outbox enqueue failed", zap.Error(err))
			return OutcomeFailed
		}
		s.log.Info("offline, message queued", zap.String("subject", o.Subject))
		s.endComposeSession(o.SessionID)
		return OutcomeQueuedOutbox
	}

	err := s.relay.Send(o)
	if err == nil {
		s.finishSent(o)
		return OutcomeSent
	}
	s.log.Warn("send failed", zap.String("subject", o.Subject), zap.Error(err))
	s.waker.Post(wake.SmtpError)

	if s.cfg.OnSendFail == "draft" {
		draftErr := s.SaveDraft(o)
		if draftErr == nil {
			s.endComposeSession(o.SessionID)
			return OutcomeDraftSaved
		}
		s.log.Warn("draft fallback failed", zap.Error(draftErr))
	}
	if err := s.db.PushMessage(queue.KindOutbox, o); err != nil {
		s.log.Error("outbox fallback failed", zap.Error(err))
		return OutcomeFailed
	}
	s.endComposeSession(o.SessionID)
	return OutcomeQueuedOutbox
}

// SaveDraft files the message in the drafts folder. Offline it goes on the
// draft queue for the next reconnect. When the message replaces an existing
// draft, the old one is moved to trash.
func (s *Sender) SaveDraft(o smtp.Outgoing) error {
	if !s.machine.IsConnected() {
		if err := s.db.PushMessage(queue.KindDraft, o); err != nil {
			return err
		}
		s.log.Info("offline, draft queued", zap.String("subject", o.Subject))
		return nil
	}
	msg, err := smtp.Build(o)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.uploads = append(s.uploads, pendingUpload{msg: msg, o: o})
	s.mu.Unlock()
	s.engine.UploadDraft(s.cfg.DraftsFolder, msg)
	if o.DraftUID != 0 {
		s.engine.MoveMessages(s.cfg.DraftsFolder, []mail.UID{o.DraftUID}, s.cfg.TrashFolder)
	}
	return nil
}

// uploadFinished reconciles draft append outcomes. A failed append puts the
// composition back on the draft queue so the next reconnect retries it;
// sent-copy appends are not tracked and pass through.
func (s *Sender) uploadFinished(folder string, msg []byte, ok bool) {
	s.mu.Lock()
	var o smtp.Outgoing
	found := false
	for i, up := range s.uploads {
		if bytes.Equal(up.msg, msg) {
			o = up.o
			found = true
			s.uploads = append(s.uploads[:i], s.uploads[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if !found || ok {
		return
	}
	if err := s.db.PushMessage(queue.KindDraft, o); err != nil {
		s.log.Error("draft requeue failed", zap.String("subject", o.Subject), zap.Error(err))
		return
	}
	s.log.Warn("draft append failed, message requeued", zap.String("subject", o.Subject))
	s.waker.Post(wake.SmtpError)
}

func (s *Sender) finishSent(o smtp.Outgoing) {
	if o.DraftUID != 0 {
		s.engine.MoveMessages(s.cfg.DraftsFolder, []mail.UID{o.DraftUID}, s.cfg.TrashFolder)
	}
	if s.cfg.ClientStoreSent {
		if msg, err := smtp.Build(o); err == nil {
			s.engine.UploadMessage(s.cfg.SentFolder, msg)
		} else {
			s.log.Warn("sent-copy build failed", zap.Error(err))
		}
	}
	if s.sentToSelf(o) {
		s.engine.Invalidate(s.cfg.InboxFolder)
	}
	s.endComposeSession(o.SessionID)
	s.waker.Post(wake.Redraw)
}

func (s *Sender) sentToSelf(o smtp.Outgoing) bool {
	if s.cfg.SelfAddress == "" || s.cfg.InboxFolder == "" {
		return false
	}
	rcpts := strings.ToLower(o.To + "," + o.Cc + "," + o.Bcc)
	return strings.Contains(rcpts, strings.ToLower(s.cfg.SelfAddress))
}

// replay drains queued work after a reconnect. Drafts are uploaded first,
// then outbox messages are resubmitted; anything that fails again goes back
// on its queue.
func (s *Sender) replay() {
	drafts, err := s.db.PopMessages(queue.KindDraft)
	if err != nil {
		s.log.Error("draft replay read failed", zap.Error(err))
	}
	for _, o := range drafts {
		if err := s.SaveDraft(o); err != nil {
			s.log.Warn("draft replay failed", zap.Error(err))
			_ = s.db.PushMessage(queue.KindDraft, o)
		}
	}

	outbox, err := s.db.PopMessages(queue.KindOutbox)
	if err != nil {
		s.log.Error("outbox replay read failed", zap.Error(err))
	}
	for _, o := range outbox {
		if err := s.relay.Send(o); err != nil {
			s.log.Warn("outbox replay failed", zap.String("subject", o.Subject), zap.Error(err))
			_ = s.db.PushMessage(queue.KindOutbox, o)
			continue
		}
		s.finishSent(o)
	}
	if len(drafts) > 0 || len(outbox) > 0 {
		s.log.Info("queue replayed",
			zap.Int("drafts", len(drafts)),
			zap.Int("outbox", len(outbox)))
	}
	s.waker.Post(wake.Redraw)
}

// RecordCompose notes the latest state of an in-progress composition. The
// backup loop persists it on the next tick.
func (s *Sender) RecordCompose(o smtp.Outgoing) {
	s.mu.Lock()
	s.backup = &o
	s.mu.Unlock()
}

// DiscardCompose drops the pending and persisted backup of a session.
func (s *Sender) DiscardCompose(sessionID string) {
	s.endComposeSession(sessionID)
}

// DrainComposeBackups removes and returns all persisted compose backups.
// Called once at startup to offer recovery; backups are never replayed
// automatically after that.
func (s *Sender) DrainComposeBackups() ([]smtp.Outgoing, error) {
	return s.db.PopMessages(queue.KindCompose)
}

func (s *Sender) endComposeSession(sessionID string) {
	if sessionID == "" {
		return
	}
	s.mu.Lock()
	if s.backup != nil && s.backup.SessionID == sessionID {
		s.backup = nil
	}
	s.mu.Unlock()
	if err := s.db.DeleteComposeBackup(sessionID); err != nil {
		s.log.Warn("backup delete failed", zap.Error(err))
	}
}

// backupLoop persists the latest composition snapshot on a fixed tick.
// An interval of zero disables backups entirely.
func (s *Sender) backupLoop(ctx context.Context) {
	if s.cfg.BackupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.BackupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flushBackup()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) flushBackup() {
	s.mu.Lock()
	pending := s.backup
	s.backup = nil
	s.mu.Unlock()
	if pending == nil {
		return
	}
	if err := s.db.ReplaceComposeBackup(*pending); err != nil {
		s.log.Error("compose backup failed", zap.Error(err))
	}
}
