package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"
	"sync"

	"log/slog"

	"loom/internal/logging"
	"loom/internal/pipeline"
)

// SocketName is the control socket filename created under the log directory.
const SocketName = "loom.sock"

// SocketPath returns the control socket location for the given log directory.
func SocketPath(logDir string) string {
	return filepath.Join(logDir, SocketName)
}

// Server exposes pipeline control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	pipeline  *pipeline.Orchestrator
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, orch *pipeline.Orchestrator, logger *slog.Logger) (*Server, error) {
	if orch == nil {
		return nil, errors.New("ipc server requires a pipeline orchestrator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{pipeline: orch, logger: logger}
	if err := rpcServer.RegisterName("Loom", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		pipeline:  orch,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "control commands may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions; restart the run if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String("impact", "stale IPC socket may confuse control commands"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	pipeline *pipeline.Orchestrator
	logger   *slog.Logger
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Pause(_ PauseRequest, resp *PauseResponse) error {
	s.log().Debug("pipeline pause requested")
	s.pipeline.Pause()
	resp.Paused = s.pipeline.Status().Paused
	if resp.Paused {
		s.log().Info("pipeline paused via IPC",
			logging.String(logging.FieldEventType, "pipeline_pause"))
	}
	return nil
}

func (s *service) Resume(_ ResumeRequest, resp *ResumeResponse) error {
	s.log().Debug("pipeline resume requested")
	s.pipeline.Resume()
	resp.Paused = s.pipeline.Status().Paused
	s.log().Info("pipeline resumed via IPC",
		logging.String(logging.FieldEventType, "pipeline_resume"))
	return nil
}

func (s *service) Cancel(_ CancelRequest, resp *CancelResponse) error {
	s.log().Debug("pipeline cancel requested")
	s.pipeline.Cancel()
	resp.Canceled = true
	s.log().Info("pipeline canceled via IPC",
		logging.String(logging.FieldEventType, "pipeline_cancel"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.pipeline.Status()
	resp.RunID = status.RunID
	resp.Phase = string(status.Phase)
	resp.Chapter = status.Chapter
	resp.Total = status.Total
	resp.Completed = status.Completed
	resp.Skipped = status.Skipped
	resp.Paused = status.Paused
	resp.Canceled = status.Canceled
	return nil
}
