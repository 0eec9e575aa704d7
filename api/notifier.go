package api

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"collab-api/domain"
)

type notifyJob struct {
	recipientID string
	message     string
	link        string
}

// Notifier creates notifications asynchronously: persist to the ledger
// first, then broadcast to the recipient's private room. The whole path is
// best-effort by contract — a saturated buffer or a failed persist is
// logged and dropped, never surfaced to the request that triggered it.
type Notifier struct {
	store          NotificationStore
	pub            Publisher
	logger         *log.Logger
	handoffTimeout time.Duration
	persistTimeout time.Duration

	jobs chan notifyJob
	wg   sync.WaitGroup
}

// NotifierConfig tunes the worker pool. Zero values select defaults.
type NotifierConfig struct {
	Workers        int
	Buffer         int
	HandoffTimeout time.Duration
	PersistTimeout time.Duration
}

// NewNotifier starts the worker pool.
func NewNotifier(store NotificationStore, pub Publisher, logger *log.Logger, cfg NotifierConfig) *Notifier {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.HandoffTimeout <= 0 {
		cfg.HandoffTimeout = 15 * time.Millisecond
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	n := &Notifier{
		store:          store,
		pub:            pub,
		logger:         logger,
		handoffTimeout: cfg.HandoffTimeout,
		persistTimeout: cfg.PersistTimeout,
		jobs:           make(chan notifyJob, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	return n
}

// Notify queues a notification for the recipient. Non-blocking with a short
// handoff grace; if the buffer stays full the notification is dropped with
// a warning.
func (n *Notifier) Notify(recipientID, message, link string) {
	job := notifyJob{recipientID: recipientID, message: message, link: link}
	select {
	case n.jobs <- job:
		return
	default:
	}

	timer := time.NewTimer(n.handoffTimeout)
	defer timer.Stop()
	select {
	case n.jobs <- job:
	case <-timer.C:
		n.logger.WithField("recipient", recipientID).Warn("notification buffer saturated, dropping")
	}
}

// Shutdown stops accepting jobs and waits for in-flight work to finish.
func (n *Notifier) Shutdown() {
	close(n.jobs)
	n.wg.Wait()
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for j := range n.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), n.persistTimeout)
		n.deliver(ctx, j)
		cancel()
	}
}

func (n *Notifier) deliver(ctx context.Context, j notifyJob) {
	note, err := n.store.CreateNotification(ctx, j.recipientID, j.message, j.link)
	if err != nil {
		n.logger.Errorf("persist notification for %s: %v", j.recipientID, err)
		return
	}
	payload, err := sonic.ConfigStd.Marshal(note)
	if err != nil {
		n.logger.Errorf("encode notification: %v", err)
		return
	}
	frame := domain.Frame{Event: domain.EventNewNotification, Data: payload}
	if err := n.pub.Publish(ctx, domain.UserRoom(j.recipientID), frame); err != nil {
		// The ledger row is durable; the recipient will see it on the next
		// unread fetch even though the realtime ping was lost.
		n.logger.Errorf("broadcast notification for %s: %v", j.recipientID, err)
	}
}
