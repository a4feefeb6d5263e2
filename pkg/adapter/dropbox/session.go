package dropbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/internal/protocol"
	"github.com/marmos91/dittobox/internal/telemetry"
	"github.com/marmos91/dittobox/pkg/adapter"
	"github.com/marmos91/dittobox/pkg/bufpool"
	"github.com/marmos91/dittobox/pkg/metrics"
	"github.com/marmos91/dittobox/pkg/task"
)

// errLineTooLong ends a session whose command line exceeds MaxLineLength.
var errLineTooLong = errors.New("command line too long")

// errClientGone ends a session without a reply (BYE, EOF, read error).
var errClientGone = errors.New("client gone")

// session is one client connection. It moves from awaiting HELLO to
// authenticated and handles one command at a time: no command is read
// before the previous reply has been written.
type session struct {
	adapter *Adapter
	conn    net.Conn
	r       *bufio.Reader
	w       *bufio.Writer

	id       string
	addr     string
	username string
}

func newSession(a *Adapter, conn net.Conn) *session {
	return &session{
		adapter: a,
		conn:    conn,
		r:       bufio.NewReaderSize(conn, a.config.MaxLineLength),
		w:       bufio.NewWriter(conn),
		id:      uuid.NewString(),
		addr:    conn.RemoteAddr().String(),
	}
}

// Serve runs the session state machine. A panic is logged and ends only
// this session.
func (s *session) Serve(ctx context.Context) {
	clientIP, _, err := net.SplitHostPort(s.addr)
	if err != nil {
		clientIP = s.addr
	}
	lc := logger.NewLogContext(clientIP, s.id)

	ctx, span := telemetry.StartSessionSpan(ctx, s.id, s.addr, telemetry.ClientIP(clientIP))
	defer span.End()
	ctx = logger.WithContext(ctx, lc.WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx)))

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in session: %v", r)
			telemetry.RecordError(ctx, err)
			logger.ErrorCtx(ctx, "Session panicked", logger.Err(err), "stack", string(debug.Stack()))
		}
	}()

	logger.DebugCtx(ctx, "Session started", logger.RemoteAddr(s.addr))

	ctx, err = s.handshake(ctx)
	if err != nil {
		var pe *adapter.ProtocolError
		if errors.As(err, &pe) {
			logger.InfoCtx(ctx, "Handshake rejected", logger.Reply(strings.TrimSpace(pe.Reply)), logger.Err(pe.Err))
		} else {
			logger.DebugCtx(ctx, "Session ended during handshake", logger.Err(err))
		}
		return
	}

	for {
		if ctx.Err() != nil {
			logger.DebugCtx(ctx, "Session closed by server shutdown")
			return
		}
		if err := s.next(ctx); err != nil {
			if errors.Is(err, errClientGone) {
				logger.DebugCtx(ctx, "Session ended by client")
			} else {
				logger.DebugCtx(ctx, "Session ended", logger.Err(err))
			}
			return
		}
	}
}

// handshake sends the banner and authenticates the HELLO line. On success
// the returned context carries the username.
func (s *session) handshake(ctx context.Context) (context.Context, error) {
	if err := s.reply(protocol.Greeting); err != nil {
		return ctx, err
	}

	line, err := s.readLine(ctx)
	if err != nil {
		return ctx, err
	}

	username, err := protocol.ParseHello(line)
	if err != nil {
		metrics.ObserveCommand(s.adapter.metrics, protocol.CmdHello, metrics.StatusSyntax, 0)
		_ = s.reply(protocol.HelloExpected)
		return ctx, adapter.NewProtocolError(protocol.HelloExpected, fmt.Errorf("bad hello %q: %w", logLine(line), err))
	}

	ctx = logger.WithContext(ctx, logger.FromContext(ctx).WithUsername(username))
	telemetry.SetAttributes(ctx, telemetry.Username(username))

	if err := s.adapter.users.EnsureUserDir(username); err != nil {
		metrics.ObserveCommand(s.adapter.metrics, protocol.CmdHello, metrics.StatusFailed, 0)
		_ = s.reply(protocol.AuthFailed)
		return ctx, adapter.NewProtocolError(protocol.AuthFailed, err)
	}

	s.username = username
	metrics.ObserveCommand(s.adapter.metrics, protocol.CmdHello, metrics.StatusOK, 0)
	logger.InfoCtx(ctx, "Client authenticated", logger.RemoteAddr(s.addr))
	return ctx, s.reply(protocol.AuthOK)
}

// next reads and handles one command. A non-nil error ends the session.
func (s *session) next(ctx context.Context) error {
	line, err := s.readLine(ctx)
	if err != nil {
		return err
	}
	start := time.Now()

	cmd, perr := protocol.ParseCommand(line)
	label := cmd.Name
	if errors.Is(perr, protocol.ErrUnknownCommand) {
		label = "UNKNOWN"
	}

	ctx = logger.WithContext(ctx, logger.FromContext(ctx).WithCommand(label))
	ctx, span := telemetry.StartCommandSpan(ctx, label, s.username)
	defer span.End()

	status, err := s.dispatch(ctx, cmd, perr)

	metrics.ObserveCommand(s.adapter.metrics, label, status, time.Since(start))
	logger.DebugCtx(ctx, "Command handled",
		logger.Line(line), "status", status, logger.Elapsed(start))
	if err != nil && !errors.Is(err, errClientGone) {
		telemetry.RecordError(ctx, err)
	}
	return err
}

func (s *session) dispatch(ctx context.Context, cmd protocol.Command, perr error) (string, error) {
	if errors.Is(perr, protocol.ErrUnknownCommand) {
		return metrics.StatusUnknown, s.reply(protocol.UnknownCommand)
	}

	switch cmd.Name {
	case protocol.CmdUpload:
		if perr != nil {
			return s.rejectUpload(cmd, perr)
		}
		return s.handleUpload(ctx, cmd)

	case protocol.CmdDownload:
		if perr != nil {
			return metrics.StatusSyntax, s.reply(protocol.DownloadSyntax)
		}
		return s.handleDownload(ctx, cmd)

	case protocol.CmdDelete:
		if perr != nil {
			return metrics.StatusSyntax, s.reply(protocol.DeleteSyntax)
		}
		return s.handleDelete(ctx, cmd)

	case protocol.CmdList:
		return s.handleList(ctx)

	case protocol.CmdBye:
		return metrics.StatusOK, errClientGone
	}

	return metrics.StatusUnknown, s.reply(protocol.UnknownCommand)
}

// rejectUpload answers a malformed UPLOAD. When only the filename was bad
// the declared body is still on the wire and is skipped first.
func (s *session) rejectUpload(cmd protocol.Command, perr error) (string, error) {
	if errors.Is(perr, protocol.ErrInvalidName) && cmd.Size > 0 {
		s.armIdle()
		if _, err := io.CopyN(io.Discard, s.r, cmd.Size); err != nil {
			_ = s.reply(protocol.UploadFailed)
			return metrics.StatusFailed, fmt.Errorf("discard rejected upload: %w", err)
		}
	}
	return metrics.StatusSyntax, s.reply(protocol.UploadSyntax)
}

func (s *session) handleUpload(ctx context.Context, cmd protocol.Command) (string, error) {
	telemetry.SetAttributes(ctx, telemetry.Filename(cmd.Filename), telemetry.Size(cmd.Size))
	s.armIdle()
	if err := ctx.Err(); err != nil {
		return metrics.StatusFailed, err
	}

	if cmd.Size > s.adapter.config.MaxUploadSize {
		if _, err := io.CopyN(io.Discard, s.r, cmd.Size); err != nil {
			_ = s.reply(protocol.UploadFailed)
			return metrics.StatusFailed, fmt.Errorf("discard oversized upload: %w", err)
		}
		logger.InfoCtx(ctx, "Upload larger than limit discarded",
			logger.Filename(cmd.Filename), logger.Size(cmd.Size),
			logger.Quota(s.adapter.config.MaxUploadSize))
		return metrics.StatusQuota, s.reply(protocol.UploadQuotaExceeded)
	}

	payload := bufpool.Acquire(int(cmd.Size))
	if _, err := io.ReadFull(s.r, payload.Bytes()); err != nil {
		payload.Release()
		_ = s.reply(protocol.UploadFailed)
		return metrics.StatusFailed, fmt.Errorf("short upload body: %w", err)
	}

	return s.roundTrip(task.NewUpload(ctx, s.username, cmd.Filename, payload))
}

func (s *session) handleDownload(ctx context.Context, cmd protocol.Command) (string, error) {
	telemetry.SetAttributes(ctx, telemetry.Filename(cmd.Filename))

	t := task.NewDownload(ctx, s.username, cmd.Filename)
	if err := s.submit(t); err != nil {
		return metrics.StatusBusy, s.reply(protocol.ServerBusy)
	}

	res := t.Response.Wait()
	if !res.Success {
		return metrics.StatusFailed, s.reply(res.Message)
	}
	telemetry.SetAttributes(ctx, telemetry.Size(int64(len(res.Data))))
	if _, err := s.w.WriteString(protocol.FormatDownloadHeader(len(res.Data))); err != nil {
		return metrics.StatusFailed, err
	}
	if _, err := s.w.Write(res.Data); err != nil {
		return metrics.StatusFailed, err
	}
	return metrics.StatusOK, s.w.Flush()
}

func (s *session) handleDelete(ctx context.Context, cmd protocol.Command) (string, error) {
	telemetry.SetAttributes(ctx, telemetry.Filename(cmd.Filename))
	return s.roundTrip(task.NewDelete(ctx, s.username, cmd.Filename))
}

// handleList writes "LIST OK", the body and an empty terminating line.
func (s *session) handleList(ctx context.Context) (string, error) {
	t := task.NewList(ctx, s.username)
	if err := s.submit(t); err != nil {
		return metrics.StatusBusy, s.reply(protocol.ServerBusy)
	}

	res := t.Response.Wait()
	if !res.Success {
		return metrics.StatusFailed, s.reply(res.Message)
	}
	if _, err := s.w.WriteString(res.Message); err != nil {
		return metrics.StatusFailed, err
	}
	if _, err := s.w.Write(res.Data); err != nil {
		return metrics.StatusFailed, err
	}
	return metrics.StatusOK, s.reply("\n")
}

// roundTrip submits t, waits for the worker and forwards its status line.
func (s *session) roundTrip(t *task.Task) (string, error) {
	if err := s.submit(t); err != nil {
		return metrics.StatusBusy, s.reply(protocol.ServerBusy)
	}

	res := t.Response.Wait()
	status := metrics.StatusOK
	switch {
	case res.Message == protocol.UploadQuotaExceeded:
		status = metrics.StatusQuota
	case !res.Success:
		status = metrics.StatusFailed
	}
	return status, s.reply(res.Message)
}

// submit hands t to the workers. On failure the session keeps ownership
// and releases the payload.
func (s *session) submit(t *task.Task) error {
	t.Submitted = time.Now()

	var err error
	if s.adapter.config.RejectWhenFull {
		err = s.adapter.tasks.TryPush(t)
	} else {
		err = s.adapter.tasks.Push(t)
	}
	if err != nil {
		t.Release()
		logger.DebugCtx(t.Context(), "Task rejected", logger.TaskKind(t.Kind.String()), logger.Err(err))
	}
	return err
}

// readLine reads one command line, without its "\n" or "\r\n". EOF, read
// errors and over-long lines end the session.
func (s *session) readLine(ctx context.Context) (string, error) {
	s.armIdle()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw, err := s.r.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", errLineTooLong
		}
		if errors.Is(err, io.EOF) {
			return "", errClientGone
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return "", fmt.Errorf("read deadline: %w", err)
		}
		return "", fmt.Errorf("%w: %v", errClientGone, err)
	}

	line := strings.TrimSuffix(string(raw[:len(raw)-1]), "\r")
	return strings.TrimLeft(line, " \t"), nil
}

// armIdle pushes the read deadline out by IdleTimeout. With no idle
// timeout the deadline is left alone so a shutdown interrupt sticks.
func (s *session) armIdle() {
	if d := s.adapter.config.IdleTimeout; d > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(d))
	}
}

// reply writes one status line (or raw block) and flushes.
func (s *session) reply(msg string) error {
	if _, err := s.w.WriteString(msg); err != nil {
		return err
	}
	return s.w.Flush()
}

// logLine shortens client input for log messages.
func logLine(line string) string {
	const limit = 64
	if len(line) > limit {
		return line[:limit] + "..."
	}
	return line
}
