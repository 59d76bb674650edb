package email

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Delivery hands one message to the mail backend.
type Delivery interface {
	Deliver(ctx context.Context, msg Message) error
}

type Config struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

// ConfigFromEnv reads EMAIL_WORKERS, EMAIL_BUFFER, EMAIL_TIMEOUT and
// EMAIL_HANDOFF_TIMEOUT.
func ConfigFromEnv() Config {
	return Config{
		Workers:        envInt("EMAIL_WORKERS", 4),
		Buffer:         envInt("EMAIL_BUFFER", 256),
		Timeout:        envDur("EMAIL_TIMEOUT", 30*time.Second),
		HandoffTimeout: envDur("EMAIL_HANDOFF_TIMEOUT", 15*time.Millisecond),
	}
}

// Sender delivers emails from a bounded buffer on a fixed worker pool. Send
// never blocks longer than the handoff timeout; saturated sends are dropped.
type Sender struct {
	delivery Delivery
	cfg      Config
	logger   *log.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan Message
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewSender(delivery Delivery, cfg Config, logger *log.Logger) *Sender {
	if logger == nil {
		panic("Logger is not initialized")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	s := &Sender{
		delivery: delivery,
		cfg:      cfg,
		logger:   logger,
		jobs:     make(chan Message, cfg.Buffer),
		now:      time.Now,
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	logger.Infof("email sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.HandoffTimeout)
	return s
}

// Send queues an email. It reports nothing to the caller.
func (s *Sender) Send(template, recipient string, params map[string]string) {
	msg := Message{Template: template, To: recipient, Params: params, EnqueuedAt: s.now().UTC()}
	if !s.tryEnqueue(msg) {
		s.logger.WithFields(log.Fields{"template": template, "to": recipient}).Warn("email buffer saturated; dropping")
	}
}

func (s *Sender) tryEnqueue(msg Message) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.jobs <- msg:
		return true
	default:
	}
	if s.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(s.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case s.jobs <- msg:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()
	for msg := range s.jobs {
		ctx := context.Background()
		cancel := func() {}
		if s.cfg.Timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		}
		err := s.delivery.Deliver(ctx, msg)
		cancel()
		if err != nil {
			s.logger.WithError(err).WithFields(log.Fields{"template": msg.Template, "to": msg.To, "worker": id}).Error("email delivery failed")
		}
	}
}

// Close stops accepting emails and waits for queued ones to be delivered.
func (s *Sender) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	s.wg.Wait()
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return def
}
