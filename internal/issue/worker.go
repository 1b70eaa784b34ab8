package issue

import (
	"context"
	"time"

	"go_certhub/internal/config"
	"go_certhub/internal/model"

	"github.com/sirupsen/logrus"
)

// Worker polls for pending certificates and renders them. A batch creation
// can Kick() the worker so fresh certificates do not wait a full interval.
type Worker struct {
	service     *Service
	config      config.RenderWorkerConfig
	logger      *logrus.Entry
	kickChan    chan struct{}
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewWorker creates a new render worker
func NewWorker(service *Service, cfg config.RenderWorkerConfig, logger *logrus.Entry) *Worker {
	return &Worker{
		service:     service,
		config:      cfg,
		logger:      logger.WithField("component", "render-worker"),
		kickChan:    make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker
func (w *Worker) Start() {
	if !w.config.Enabled {
		w.logger.Info("Render worker disabled, skipping")
		close(w.stoppedChan)
		return
	}

	w.logger.WithFields(logrus.Fields{
		"interval_sec": w.config.IntervalSec,
		"batch_size":   w.config.BatchSize,
	}).Info("Render worker starting")

	go w.run()
}

// Stop stops the worker and waits for the current tick to finish
func (w *Worker) Stop() {
	if !w.config.Enabled {
		return
	}

	w.logger.Info("Render worker stopping")
	close(w.stopChan)
	<-w.stoppedChan
	w.logger.Info("Render worker stopped")
}

// Kick wakes the worker ahead of its next tick. Non-blocking; a kick while
// one is already queued is a no-op.
func (w *Worker) Kick() {
	select {
	case w.kickChan <- struct{}{}:
	default:
	}
}

// run is the main worker loop
func (w *Worker) run() {
	defer close(w.stoppedChan)

	ticker := time.NewTicker(time.Duration(w.config.IntervalSec) * time.Second)
	defer ticker.Stop()

	// Run immediately on start
	w.tick()

	for {
		select {
		case <-ticker.C:
			w.tick()
		case <-w.kickChan:
			w.tick()
		case <-w.stopChan:
			return
		}
	}
}

// tick processes a batch of pending certificates
func (w *Worker) tick() {
	certs, err := w.service.GetPendingCertificates(w.config.BatchSize)
	if err != nil {
		w.logger.WithError(err).Error("Failed to get pending certificates")
		return
	}
	if len(certs) == 0 {
		return
	}

	w.logger.WithField("count", len(certs)).Info("Processing pending certificates")

	ctx := context.Background()
	for i := range certs {
		select {
		case <-w.stopChan:
			return
		default:
		}
		w.process(ctx, &certs[i])
	}
}

func (w *Worker) process(ctx context.Context, cert *model.Certificate) {
	log := w.logger.WithFields(logrus.Fields{
		"certificate_id": cert.ID,
		"attempts":       cert.RenderAttempts,
	})

	if err := w.service.ClaimForRender(cert.ID); err != nil {
		log.WithError(err).Debug("Certificate already claimed")
		return
	}

	if err := w.service.Process(ctx, cert); err != nil {
		// Process already recorded the failure on the row
		log.WithError(err).Warn("Certificate render attempt failed")
	}
}
