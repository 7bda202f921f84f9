// Command worker listens for job.submitted events on NATS and asks the API
// to start processing each submitted job.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"cartoonify/internal/events"
	"cartoonify/internal/infra"
)

const triggerTimeout = 30 * time.Second

type jobWorker struct {
	ctx     context.Context
	logger  infra.Logger
	client  *http.Client
	baseURL string
}

func main() {
	if err := infra.LoadEnvFiles(); err != nil {
		panic(err)
	}
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("component", "worker").Logger()
	if strings.TrimSpace(cfg.NATSURL) == "" {
		logger.Fatal().Msg("worker: NATS_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := nats.Connect(cfg.NATSURL, nats.Name("cartoonify-worker"), nats.MaxReconnects(-1))
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: nats connection failed")
	}
	defer conn.Drain()

	apiURL := strings.TrimSpace(os.Getenv("API_URL"))
	if apiURL == "" {
		apiURL = "http://localhost:" + cfg.Port
	}
	w := &jobWorker{
		ctx:     ctx,
		logger:  logger,
		client:  &http.Client{Timeout: triggerTimeout},
		baseURL: strings.TrimRight(apiURL, "/"),
	}

	subject := submittedSubject(cfg.NATSSubject)
	// A queue group lets several workers share the stream without triggering twice.
	sub, err := conn.QueueSubscribe(subject, "cartoonify-workers", w.handleMsg)
	if err != nil {
		logger.Fatal().Err(err).Str("subject", subject).Msg("worker: subscribe failed")
	}
	logger.Info().Str("subject", subject).Str("api", w.baseURL).Msg("worker: started")

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		logger.Warn().Err(err).Msg("worker: drain subscription failed")
	}
	logger.Info().Msg("worker: stopped")
}

func submittedSubject(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = events.DefaultSubject
	}
	return prefix + "." + string(events.JobSubmitted)
}

func (w *jobWorker) handleMsg(msg *nats.Msg) {
	var ev events.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		w.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("worker: malformed event")
		return
	}
	if ev.Type != events.JobSubmitted || ev.JobID == "" {
		return
	}
	w.logger.Info().Str("job_id", ev.JobID).Msg("worker: picked job")
	if err := w.trigger(ev.JobID); err != nil {
		w.logger.Error().Err(err).Str("job_id", ev.JobID).Msg("worker: trigger failed")
	}
}

// trigger calls POST /api/process/{id}. A 400 means another worker or a
// client got there first.
func (w *jobWorker) trigger(jobID string) error {
	ctx, cancel := context.WithTimeout(w.ctx, triggerTimeout)
	defer cancel()

	endpoint := w.baseURL + "/api/process/" + url.PathEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("call api: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	switch {
	case resp.StatusCode == http.StatusOK:
		w.logger.Info().Str("job_id", jobID).Msg("worker: job triggered")
		return nil
	case resp.StatusCode == http.StatusBadRequest:
		w.logger.Debug().Str("job_id", jobID).Bytes("body", body).Msg("worker: job already started")
		return nil
	default:
		return fmt.Errorf("api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
