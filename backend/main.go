package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type moveRequest struct {
	Fen string `json:"fen"`
	Elo *int   `json:"elo"`
}

type moveResponse struct {
	Move string `json:"move"`
	Fen  string `json:"fen"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := ConfigFromEnv()
	configStore.Update(cfg)

	model := NewModel(cfg.Seed)
	LoadModel(cfg.ModelPath, model)
	engine := NewSearchEngine(model)
	selector := NewMoveSelector(engine, cfg.Seed)
	trainer := NewSelfTrainer(selector, model, cfg)
	hub := NewHub()
	trainer.SetPublisher(func(summary GameSummary) {
		if !hub.HasClients() {
			return
		}
		select {
		case hub.broadcastGame <- summary:
		default:
		}
		select {
		case hub.broadcastStatus <- trainer.Status():
		default:
		}
	})

	if cfg.TrainerAutostart {
		if err := trainer.Start(); err != nil {
			log.Error().Err(err).Msg("trainer autostart failed")
		}
	}

	router := newRouter(cfg, selector, trainer, hub)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	group, ctx := errgroup.WithContext(sigCtx)
	group.Go(func() error {
		hub.Run(ctx.Done())
		return nil
	})
	group.Go(func() error {
		runKeepAlive(ctx, cfg)
		return nil
	})
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("graceful shutdown failed")
			return server.Close()
		}
		return nil
	})

	log.Info().Int("port", cfg.Port).Msg("backend listening")
	runErr := group.Wait()

	trainer.Stop()
	if err := SaveModel(cfg.ModelPath, model); err != nil {
		log.Warn().Err(err).Msg("final model save failed")
	}
	if runErr != nil {
		log.Error().Err(runErr).Msg("exiting after server error")
	}
}

func newRouter(cfg Config, selector *MoveSelector, trainer *SelfTrainer, hub *Hub) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "Chess AI backend is running. Use the frontend to play.")
	})

	r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Post("/api/move", func(w http.ResponseWriter, r *http.Request) {
		var payload moveRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
		if payload.Fen == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fen"})
			return
		}
		elo := cfg.DefaultElo
		if payload.Elo != nil {
			elo = *payload.Elo
		}
		move, err := selector.SelectMove(payload.Fen, elo)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, moveResponse{Move: move, Fen: payload.Fen})
	})

	r.Get("/api/trainer/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, trainer.Status())
	})

	r.Post("/api/trainer/start", func(w http.ResponseWriter, r *http.Request) {
		if err := trainer.Start(); err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, trainer.Status())
	})

	r.Post("/api/trainer/stop", func(w http.ResponseWriter, r *http.Request) {
		trainer.Stop()
		writeJSON(w, http.StatusOK, trainer.Status())
	})

	r.Get("/ws/trainer", func(w http.ResponseWriter, r *http.Request) {
		serveTrainerWS(hub, trainer, w, r)
	})

	return r
}

func serveTrainerWS(hub *Hub, trainer *SelfTrainer, w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &Client{hub: hub, send: make(chan []byte, 16)}
	hub.Register(client)

	client.sendJSON(wsMessage{Type: "status", Payload: mustMarshal(trainer.Status())})

	go func() {
		defer conn.Close()
		if err := writeWSWithHeartbeat(conn, client.send); err != nil {
			return
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			hub.Unregister(client)
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "request_status":
			client.sendJSON(wsMessage{Type: "status", Payload: mustMarshal(trainer.Status())})
		}
	}
}

// runKeepAlive pings the liveness endpoint so free-tier hosting does not
// idle the process out.
func runKeepAlive(ctx context.Context, cfg Config) {
	if cfg.KeepAliveMinutes <= 0 {
		return
	}
	url := cfg.KeepAliveURL
	if url == "" {
		url = fmt.Sprintf("http://localhost:%d/api/ping", cfg.Port)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	ticker := time.NewTicker(time.Duration(cfg.KeepAliveMinutes) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resp, err := client.Get(url)
			if err != nil {
				log.Warn().Err(err).Msg("keep-alive ping failed")
				continue
			}
			resp.Body.Close()
			log.Debug().Str("url", url).Msg("keep-alive ping sent")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
