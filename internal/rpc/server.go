package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"VoiceMCP-Chain/internal/observability/metrics"
)

// Server 在单一 HTTP POST 端点上承载过程调用协议。
type Server struct {
	addr       string
	dispatcher *Dispatcher
}

// NewServer 构造协议服务实例。
func NewServer(addr string, dispatcher *Dispatcher) *Server {
	return &Server{addr: addr, dispatcher: dispatcher}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回服务的路由。
func (s *Server) Handler() http.Handler {
	collector := metrics.Default()
	mux := http.NewServeMux()
	mux.Handle("/", collector.Middleware("rpc_dispatch", http.HandlerFunc(s.handleRPC)))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", collector.Handler())
	return mux
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	var resp Response
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp = errorResponse(nil, CodeInvalidRequest, "Invalid Request: malformed JSON envelope", nil)
	} else {
		resp = s.dispatcher.Handle(r.Context(), req)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
