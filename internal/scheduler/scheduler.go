package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"github.com/BatmanBruc/bat-bot-referral/internal/i18n"
	"github.com/BatmanBruc/bat-bot-referral/internal/messages"
	"github.com/BatmanBruc/bat-bot-referral/internal/referral"
	"github.com/BatmanBruc/bat-bot-referral/types"
)

var ErrNotRunning = errors.New("scheduler is not running")

type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type UserLister interface {
	List(ctx context.Context) ([]*types.User, error)
}

type Auditor interface {
	Audit(ctx context.Context) (*referral.AuditReport, error)
}

// Scheduler owns the broadcast worker pool and the periodic audit job.
type Scheduler struct {
	sender        MessageSender
	users         UserLister
	auditor       Auditor
	workers       int
	auditInterval time.Duration
	sendTimeout   time.Duration
	log           *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	queue   chan delivery
	cron    gocron.Scheduler

	jobsMu sync.Mutex
	jobs   map[string]*broadcastJob
}

type delivery struct {
	jobID  string
	chatID int64
	text   string
}

type broadcastJob struct {
	id           string
	notifyChatID int64
	lang         i18n.Lang
	startedAt    time.Time
	pending      int
	sent         int
	failed       int
	skipped      int
	listed       bool
	done         bool
}

type BroadcastStatus struct {
	ID      string
	Total   int
	Sent    int
	Failed  int
	Skipped int
	Done    bool
}

type Config struct {
	Workers       int
	AuditInterval time.Duration
	SendTimeout   time.Duration
}

func NewScheduler(sender MessageSender, users UserLister, auditor Auditor, config Config, log *slog.Logger) (*Scheduler, error) {
	if config.Workers <= 0 {
		config.Workers = 3
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 10 * time.Second
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create cron scheduler: %w", err)
	}

	queueSize := config.Workers * 2
	if queueSize < 10 {
		queueSize = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sender:        sender,
		users:         users,
		auditor:       auditor,
		workers:       config.Workers,
		auditInterval: config.AuditInterval,
		sendTimeout:   config.SendTimeout,
		log:           log,
		ctx:           ctx,
		cancel:        cancel,
		queue:         make(chan delivery, queueSize),
		cron:          cron,
		jobs:          make(map[string]*broadcastJob),
	}, nil
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if s.auditInterval > 0 && s.auditor != nil {
		_, err := s.cron.NewJob(
			gocron.DurationJob(s.auditInterval),
			gocron.NewTask(s.runScheduledAudit),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithName("leaderboard-audit"),
		)
		if err != nil {
			return fmt.Errorf("schedule audit: %w", err)
		}
	}
	s.cron.Start()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.running = true
	s.log.Info("scheduler started", "workers", s.workers, "audit_interval", s.auditInterval.String())
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.log.Info("stopping scheduler")
	s.cancel()
	if err := s.cron.Shutdown(); err != nil {
		s.log.Warn("cron shutdown", "error", err)
	}
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// EnqueueBroadcast fans text out to every known user. Each send is
// attempted once; failures are counted and logged. The requester is told
// the totals on notifyChatID when the job is done.
func (s *Scheduler) EnqueueBroadcast(_ context.Context, text string, notifyChatID int64, lang i18n.Lang) (string, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return "", ErrNotRunning
	}

	job := &broadcastJob{
		id:           uuid.NewString(),
		notifyChatID: notifyChatID,
		lang:         lang,
		startedAt:    time.Now(),
	}
	s.jobsMu.Lock()
	s.jobs[job.id] = job
	s.jobsMu.Unlock()

	go s.fanOut(job, text)
	return job.id, nil
}

func (s *Scheduler) Status(jobID string) (BroadcastStatus, bool) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return BroadcastStatus{}, false
	}
	return BroadcastStatus{
		ID:      job.id,
		Total:   job.pending,
		Sent:    job.sent,
		Failed:  job.failed,
		Skipped: job.skipped,
		Done:    job.done,
	}, true
}

func (s *Scheduler) fanOut(job *broadcastJob, text string) {
	users, err := s.users.List(s.ctx)
	if err != nil {
		s.log.Error("broadcast: list users failed", "job_id", job.id, "error", err)
		s.jobsMu.Lock()
		job.listed = true
		s.jobsMu.Unlock()
		s.finish(job)
		return
	}

	targets := make([]int64, 0, len(users))
	skipped := 0
	for _, u := range users {
		chatID, err := strconv.ParseInt(u.ID, 10, 64)
		if err != nil || chatID <= 0 {
			skipped++
			continue
		}
		targets = append(targets, chatID)
	}

	s.jobsMu.Lock()
	job.pending = len(targets)
	job.skipped = skipped
	job.listed = true
	s.jobsMu.Unlock()
	s.log.Info("broadcast started", "job_id", job.id, "targets", len(targets), "skipped", skipped)

	if len(targets) == 0 {
		s.finish(job)
		return
	}
	for _, chatID := range targets {
		select {
		case s.queue <- delivery{jobID: job.id, chatID: chatID, text: text}:
		case <-s.ctx.Done():
			s.log.Warn("broadcast interrupted", "job_id", job.id)
			return
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case d := <-s.queue:
			err := s.send(d)
			if err != nil {
				s.log.Warn("broadcast send failed",
					"worker", id,
					"job_id", d.jobID,
					"chat_id", d.chatID,
					"error", err,
				)
			}
			s.record(d.jobID, err == nil)
		}
	}
}

func (s *Scheduler) send(d delivery) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.sendTimeout)
	defer cancel()
	_, err := s.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: d.chatID,
		Text:   d.text,
	})
	return err
}

func (s *Scheduler) record(jobID string, ok bool) {
	s.jobsMu.Lock()
	job := s.jobs[jobID]
	if job == nil {
		s.jobsMu.Unlock()
		return
	}
	if ok {
		job.sent++
	} else {
		job.failed++
	}
	complete := job.listed && job.sent+job.failed >= job.pending
	s.jobsMu.Unlock()

	if complete {
		s.finish(job)
	}
}

func (s *Scheduler) finish(job *broadcastJob) {
	s.jobsMu.Lock()
	if job.done {
		s.jobsMu.Unlock()
		return
	}
	job.done = true
	sent, failed, skipped := job.sent, job.failed, job.skipped
	s.jobsMu.Unlock()

	s.log.Info("broadcast finished",
		"job_id", job.id,
		"sent", sent,
		"failed", failed,
		"skipped", skipped,
		"took", time.Since(job.startedAt).String(),
	)
	if job.notifyChatID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.sendTimeout)
	defer cancel()
	if _, err := s.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    job.notifyChatID,
		Text:      messages.BroadcastFinished(job.lang, job.id, sent, failed, skipped),
		ParseMode: messages.ParseModeHTML,
	}); err != nil {
		s.log.Warn("broadcast report failed", "job_id", job.id, "chat_id", job.notifyChatID, "error", err)
	}
}

func (s *Scheduler) runScheduledAudit() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()
	_, _ = s.RunAudit(ctx)
}

// RunAudit compares leaderboard and user totals with the install ledger.
// Drift is reported, never repaired.
func (s *Scheduler) RunAudit(ctx context.Context) (*referral.AuditReport, error) {
	if s.auditor == nil {
		return nil, errors.New("no auditor configured")
	}
	start := time.Now()
	report, err := s.auditor.Audit(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "leaderboard audit failed", "error", err)
		return nil, err
	}
	level := slog.LevelInfo
	if !report.Consistent() {
		level = slog.LevelWarn
	}
	s.log.Log(ctx, level, "leaderboard audit finished",
		"installs", report.Installs,
		"credits", report.Credits,
		"drifts", len(report.Drifts),
		"took", time.Since(start).String(),
	)
	return report, nil
}
