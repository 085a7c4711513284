package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hablalabs/habla-core/internal/audio"
	"github.com/hablalabs/habla-core/internal/bus"
	"github.com/hablalabs/habla-core/internal/config"
	"github.com/hablalabs/habla-core/internal/history"
	"github.com/hablalabs/habla-core/internal/model"
	"github.com/hablalabs/habla-core/internal/natsserver"
	"github.com/hablalabs/habla-core/internal/pipeline"
	"github.com/hablalabs/habla-core/internal/protocol"
)

// Runtime is the composition root: it owns the capture controller, the
// model resource, the pipeline worker and the delivery surfaces, and wires
// them together from config. No global mutable state.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer     *http.Server
	telemetryClose func(context.Context) error
	metrics        *runMetrics

	embedded  *natsserver.EmbeddedServer
	busClient *bus.Client
	store     *history.Store
	resource  *model.Resource
	recorder  *audio.Recorder
	worker    *pipeline.Worker

	ready      atomic.Bool
	wg         sync.WaitGroup
	deliveries sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the daemon up and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	r.telemetryClose = tel.Close

	r.metrics, err = newRunMetrics()
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	r.embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded bus: %w", err)
	}

	r.busClient, err = bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		r.shutdownInfra()
		return fmt.Errorf("connect bus: %w", err)
	}

	r.store, err = history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		r.shutdownInfra()
		return fmt.Errorf("open history: %w", err)
	}

	if err := r.setupModels(ctx); err != nil {
		r.shutdownInfra()
		return err
	}

	orchestrator := pipeline.NewOrchestrator(r.cfg, r.resource, r.logger)
	r.worker = pipeline.NewWorker(ctx, orchestrator, 4, r.logger)

	if err := r.setupCapture(); err != nil {
		r.worker.Close()
		r.shutdownInfra()
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.routes(ctx, tel.metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.recorder.Capturing() {
		if _, err := r.recorder.Stop(); err != nil && !errors.Is(err, audio.ErrNoAudioCaptured) {
			r.logger.Warn("stopping capture at shutdown", slog.String("error", err.Error()))
		}
	}
	r.worker.Close()
	r.deliveries.Wait()
	r.shutdownInfra()

	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (r *Runtime) shutdownInfra() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("closing history store", slog.String("error", err.Error()))
		}
	}
	r.busClient.Close()
	r.embedded.Shutdown()
}

func (r *Runtime) setupModels(ctx context.Context) error {
	transcriber, err := model.BuildTranscriber(r.cfg.Transcriber)
	if err != nil {
		return fmt.Errorf("build transcriber: %w", err)
	}
	translator, err := model.BuildTranslator(r.cfg.Translator)
	if err != nil {
		return fmt.Errorf("build translator: %w", err)
	}
	enhancer, err := model.BuildEnhancer(r.cfg.Enhancement)
	if err != nil {
		return fmt.Errorf("build enhancer: %w", err)
	}

	r.resource = model.NewResource(transcriber, translator, enhancer, r.logger)
	progress := func(message string, percent int) {
		r.logger.Info("model load progress",
			slog.String("step", message),
			slog.Int("percent", percent))
	}
	if err := r.resource.Initialize(ctx, progress); err != nil {
		return fmt.Errorf("initialize models: %w", err)
	}
	return nil
}

func (r *Runtime) setupCapture() error {
	source, err := audio.NewExecSource(r.cfg.Audio)
	if err != nil {
		return fmt.Errorf("create audio source: %w", err)
	}
	r.recorder = audio.NewRecorder(r.cfg.Audio, source, r.logger)
	r.recorder.SetCallbacks(r.handleSegment, func(err error) {
		r.logger.Error("capture failed", slog.String("error", err.Error()))
		r.publishCaptureState(false)
	})
	return nil
}

// handleSegment hands a completed utterance to the pipeline worker and
// delivers the outcome. It runs on the capture goroutine, so the wait for
// the pipeline result happens on a separate goroutine.
func (r *Runtime) handleSegment(seg audio.Segment) {
	r.publishCaptureState(false)

	done, err := r.worker.Submit(seg)
	if err != nil {
		r.logger.Warn("dropping segment", slog.String("error", err.Error()))
		return
	}

	r.deliveries.Add(1)
	go func() {
		defer r.deliveries.Done()
		outcome := <-done
		r.deliver(outcome)
	}()
}

func (r *Runtime) deliver(outcome pipeline.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.metrics.observe(ctx, outcome.Result, outcome.Err)

	if outcome.Err != nil {
		event := protocol.RunErrorEvent{
			RunID:     outcome.Result.RunID,
			Status:    outcome.Err.Error(),
			Timestamp: time.Now().UTC(),
		}
		if err := r.busClient.PublishJSON(protocol.SubjectRunError, event); err != nil {
			r.logger.Warn("publishing run error", slog.String("error", err.Error()))
		}
		return
	}

	result := outcome.Result
	event := protocol.TranscriptEvent{
		RunID:          result.RunID,
		OriginalText:   result.OriginalText,
		TranslatedText: result.TranslatedText,
		Confidence:     result.Metadata.Confidence,
		Language:       result.Metadata.Language,
		AIEnhanced:     result.Metadata.AIEnhanced,
		Fallbacks:      result.Metadata.Fallbacks,
		DurationMS:     result.Duration.Milliseconds(),
		Timestamp:      time.Now().UTC(),
	}
	if err := r.busClient.PublishJSON(protocol.SubjectTranscriptFinal, event); err != nil {
		r.logger.Warn("publishing transcript", slog.String("error", err.Error()))
	}

	entry := history.Entry{
		RunID:          result.RunID,
		OriginalText:   result.OriginalText,
		TranslatedText: result.TranslatedText,
		Confidence:     result.Metadata.Confidence,
		Language:       result.Metadata.Language,
		AIEnhanced:     result.Metadata.AIEnhanced,
	}
	if err := r.store.Append(ctx, entry); err != nil {
		r.logger.Warn("appending history", slog.String("error", err.Error()))
	}
}

func (r *Runtime) publishCaptureState(capturing bool) {
	event := protocol.CaptureStateEvent{Capturing: capturing, Timestamp: time.Now().UTC()}
	if err := r.busClient.PublishJSON(protocol.SubjectCaptureState, event); err != nil {
		r.logger.Warn("publishing capture state", slog.String("error", err.Error()))
	}
}

func (r *Runtime) routes(ctx context.Context, metricHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}
	mux.HandleFunc("/capture/start", r.handleCaptureStart(ctx))
	mux.HandleFunc("/capture/stop", r.handleCaptureStop)
	mux.HandleFunc("/enhancement/enable", r.handleEnhancementEnable)
	mux.HandleFunc("/enhancement/disable", r.handleEnhancementDisable)
	mux.HandleFunc("/history", r.handleHistory)
	return mux
}

// handleEnhancementEnable builds the configured enhancement backend and
// installs it, replacing whatever is loaded. The swap waits for any run in
// flight to finish.
func (r *Runtime) handleEnhancementEnable(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cfg := r.cfg.Enhancement
	cfg.Enabled = true
	enhancer, err := model.BuildEnhancer(cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.resource.SwapEnhancer(enhancer)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("enhancement enabled"))
}

// handleEnhancementDisable uninstalls the enhancement model so its memory
// can be reclaimed; the pipeline falls back to deterministic processing.
func (r *Runtime) handleEnhancementDisable(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.resource.SwapEnhancer(nil)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("enhancement disabled"))
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() && r.resource.Initialized() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleCaptureStart(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.recorder.Start(ctx); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, audio.ErrAlreadyCapturing) {
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}
		r.publishCaptureState(true)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("capturing"))
	}
}

func (r *Runtime) handleCaptureStop(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	seg, err := r.recorder.Stop()
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, audio.ErrNotCapturing):
			status = http.StatusConflict
		case errors.Is(err, audio.ErrNoAudioCaptured):
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}
	r.handleSegment(seg)
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("processing"))
}

func (r *Runtime) handleHistory(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries, err := r.store.Recent(req.Context(), 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		r.logger.Warn("encoding history response", slog.String("error", err.Error()))
	}
}
