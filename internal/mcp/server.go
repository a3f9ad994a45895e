package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/firewall-mcp/internal/utils"
)

const (
	maxMessageSize     = 8 << 20
	defaultMaxInFlight = 8
)

// Server answers MCP requests read from a line-delimited stream.
type Server struct {
	logger      *slog.Logger
	registry    *Registry
	info        ServerInfo
	maxInFlight int

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// NewServer constructs a server over the given tool registry.
func NewServer(registry *Registry, info ServerInfo, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Server{
		logger:      logger,
		registry:    registry,
		info:        info,
		maxInFlight: defaultMaxInFlight,
		inflight:    make(map[string]context.CancelFunc),
	}
}

type frameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (f *frameWriter) write(resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err = f.w.Write(append(data, '\n'))
	return err
}

// Serve reads requests from in and writes responses to out until in is
// exhausted or ctx is cancelled. tools/call requests run concurrently, at most
// maxInFlight at a time; all other methods are answered in order. Reading never
// waits for a free slot, so cancellations reach queued and running calls.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
		close(lines)
	}()

	sess := &stream{
		writer: &frameWriter{w: out},
		slots:  make(chan struct{}, max(s.maxInFlight, 1)),
	}

	for {
		select {
		case <-ctx.Done():
			_ = sess.calls.Wait()
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				_ = sess.calls.Wait()
				return <-readErr
			}
			s.dispatch(ctx, sess, line)
		}
	}
}

// stream is the state of one Serve call.
type stream struct {
	writer *frameWriter
	calls  errgroup.Group
	slots  chan struct{}
}

func (s *Server) dispatch(ctx context.Context, sess *stream, line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.reply(sess.writer, nil, nil, newRPCError(CodeParseError, "parse error: %v", err))
		return
	}
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		if !req.IsNotification() {
			s.reply(sess.writer, req.ID, nil, newRPCError(CodeInvalidRequest, "invalid request"))
		}
		return
	}

	if req.Method != "tools/call" || req.IsNotification() {
		result, rpcErr := s.handle(ctx, req)
		if !req.IsNotification() {
			s.reply(sess.writer, req.ID, result, rpcErr)
		}
		return
	}

	key := string(req.ID)
	callCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if _, busy := s.inflight[key]; busy {
		s.mu.Unlock()
		cancel()
		s.reply(sess.writer, req.ID, nil, newRPCError(CodeInvalidRequest, "request id %s is already in flight", key))
		return
	}
	s.inflight[key] = cancel
	s.mu.Unlock()

	sess.calls.Go(func() error {
		defer func() {
			s.mu.Lock()
			delete(s.inflight, key)
			s.mu.Unlock()
			cancel()
		}()
		select {
		case sess.slots <- struct{}{}:
			defer func() { <-sess.slots }()
		case <-callCtx.Done():
			s.reply(sess.writer, req.ID, NewErrorResult(fmt.Errorf("tool call abandoned before start: %w", callCtx.Err())), nil)
			return nil
		}
		result, rpcErr := s.callTool(callCtx, req.Params)
		s.reply(sess.writer, req.ID, result, rpcErr)
		return nil
	})
}

func (s *Server) reply(writer *frameWriter, id json.RawMessage, result any, rpcErr *RPCError) {
	resp := Response{JSONRPC: jsonRPCVersion, ID: id}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	if err := writer.write(resp); err != nil {
		s.logger.Error("write response failed", slog.Any("error", err))
	}
}

func (s *Server) handle(ctx context.Context, req Request) (any, *RPCError) {
	switch req.Method {
	case "initialize":
		return initializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{"listChanged": false}},
			ServerInfo:      s.info,
		}, nil
	case "notifications/initialized":
		s.logger.Info("mcp client initialised")
		return nil, nil
	case "notifications/cancelled":
		s.cancel(req.Params)
		return nil, nil
	case "ping":
		return struct{}{}, nil
	case "tools/list":
		return map[string]any{"tools": s.registry.List()}, nil
	case "tools/call":
		return s.callTool(ctx, req.Params)
	default:
		return nil, newRPCError(CodeMethodNotFound, "method not found: %s", req.Method)
	}
}

func (s *Server) cancel(raw json.RawMessage) {
	var params cancelledParams
	if err := json.Unmarshal(raw, &params); err != nil || len(params.RequestID) == 0 {
		return
	}
	s.mu.Lock()
	cancel, ok := s.inflight[string(params.RequestID)]
	s.mu.Unlock()
	if ok {
		s.logger.Debug("tool call cancelled", slog.String("request_id", string(params.RequestID)), slog.String("reason", params.Reason))
		cancel()
	}
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (result any, rpcErr *RPCError) {
	var params CallToolParams
	if len(raw) == 0 {
		return nil, newRPCError(CodeInvalidParams, "tools/call requires params")
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, newRPCError(CodeInvalidParams, "invalid tools/call params: %v", err)
	}
	tool, ok := s.registry.Get(params.Name)
	if !ok {
		return nil, newRPCError(CodeInvalidParams, "unknown tool: %s", params.Name)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tool panicked", slog.String("tool", params.Name), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			result, rpcErr = NewErrorResult(fmt.Errorf("tool %s failed unexpectedly", params.Name)), nil
		}
	}()

	res, err := tool.Handler(ctx, params.Arguments)
	duration := time.Since(start)
	if err != nil {
		if utils.IsValidation(err) {
			s.logger.Debug("tool rejected arguments", slog.String("tool", params.Name), slog.Any("error", err))
			return NewErrorResult(errors.New(utils.UserMessage(err))), nil
		}
		s.logger.Warn("tool failed", slog.String("tool", params.Name), slog.Duration("duration", duration), slog.Any("error", err))
		return NewErrorResult(err), nil
	}
	s.logger.Debug("tool call complete", slog.String("tool", params.Name), slog.Duration("duration", duration))
	return res, nil
}
