// Command target is a small service to point loadpanel at. It publishes its
// own OpenAPI document so `loadpanel endpoints --base-url` and the control
// server catalog can be tried end to end.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const maxDelay = 10 * time.Second

const openAPIDocument = `{
  "openapi": "3.0.0",
  "info": {"title": "target", "version": "1.0.0"},
  "paths": {
    "/hello/delay/{delay}": {
      "get": {
        "summary": "Hello after a delay",
        "parameters": [
          {"name": "delay", "in": "path", "required": true, "description": "Delay in milliseconds",
           "schema": {"type": "integer", "minimum": 0, "maximum": 10000}}
        ]
      }
    },
    "/status/{code}": {
      "get": {
        "summary": "Respond with a status code",
        "parameters": [
          {"name": "code", "in": "path", "required": true,
           "schema": {"type": "integer", "minimum": 100, "maximum": 599}}
        ]
      }
    },
    "/items": {
      "post": {
        "operationId": "createItem",
        "summary": "Create an item",
        "requestBody": {
          "required": true,
          "content": {"application/json": {"schema": {
            "type": "object",
            "required": ["name"],
            "properties": {
              "name": {"type": "string", "default": "widget"},
              "qty": {"type": "integer", "default": 1}
            }
          }}}
        }
      }
    }
  }
}`

type item struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

type target struct {
	logger *zap.Logger
	nextID atomic.Int64
}

func main() {
	addr := pflag.String("listen", ":8081", "Listen address")
	pflag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := serve(ctx, *addr, logger); err != nil {
		logger.Fatal("target server failed", zap.Error(err))
	}
}

func serve(ctx context.Context, addr string, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("target listening", zap.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(logger *zap.Logger) *mux.Router {
	t := &target{logger: logger}
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/openapi.json", t.handleSchema).Methods(http.MethodGet)
	api.HandleFunc("/hello/delay/{delay}", t.handleDelay).Methods(http.MethodGet)
	api.HandleFunc("/status/{code}", t.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/items", t.handleCreateItem).Methods(http.MethodPost)
	return r
}

func (t *target) handleSchema(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(openAPIDocument))
}

func (t *target) handleDelay(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(mux.Vars(r)["delay"])
	if err != nil || ms < 0 {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "delay must be a non-negative integer"})
		return
	}
	delay := min(time.Duration(ms)*time.Millisecond, maxDelay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-r.Context().Done():
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "hello", "delay_ms": delay.Milliseconds()})
}

func (t *target) handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(mux.Vars(r)["code"])
	if err != nil || code < 100 || code > 599 {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "code must be between 100 and 599"})
		return
	}
	respondJSON(w, code, map[string]any{"status": code, "text": http.StatusText(code)})
}

func (t *target) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var it item
	if err := json.NewDecoder(r.Body).Decode(&it); err != nil || it.Name == "" {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "name is required"})
		return
	}
	it.ID = t.nextID.Add(1)
	t.logger.Debug("item created", zap.Int64("id", it.ID), zap.String("name", it.Name))
	respondJSON(w, http.StatusCreated, it)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
