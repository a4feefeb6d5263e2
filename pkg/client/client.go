// Package client is a Go client for the DittoBox line protocol.
//
// A Client holds one authenticated session. Calls are serialized: the
// protocol is strictly request/response on a single connection.
package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/internal/protocol"
)

// DefaultTimeout bounds a single request/response exchange.
const DefaultTimeout = 30 * time.Second

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-operation deadline. Zero disables deadlines.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Client is an authenticated DittoBox session.
type Client struct {
	mu       sync.Mutex
	conn     net.Conn
	r        *bufio.Reader
	w        *bufio.Writer
	username string
	timeout  time.Duration
	closed   bool
}

// Dial connects to addr, reads the greeting and authenticates as username.
func Dial(ctx context.Context, addr, username string, opts ...Option) (*Client, error) {
	if err := protocol.ValidateName(username, protocol.MaxUsernameLen); err != nil {
		return nil, fmt.Errorf("invalid username %q: %w", username, err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c := &Client{
		conn:     conn,
		r:        bufio.NewReader(conn),
		w:        bufio.NewWriter(conn),
		username: username,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.handshake(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Debug("Connected", logger.Address(addr), logger.Username(username))
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	} else {
		c.arm()
	}

	// Greeting is two lines.
	for range strings.Count(protocol.Greeting, "\n") {
		if _, err := c.readLine(); err != nil {
			return fmt.Errorf("failed to read greeting: %w", err)
		}
	}

	if err := c.send(protocol.CmdHello + " " + c.username + "\n"); err != nil {
		return err
	}
	reply, err := c.readLine()
	if err != nil {
		return fmt.Errorf("failed to read handshake reply: %w", err)
	}
	if reply != protocol.AuthOK {
		return replyError("hello", reply, ErrAuth)
	}
	return nil
}

// Username returns the authenticated user.
func (c *Client) Username() string {
	return c.username
}

// Upload stores data as name.
func (c *Client) Upload(name string, data []byte) error {
	return c.UploadFrom(name, bytes.NewReader(data), int64(len(data)))
}

// UploadFrom stores exactly size bytes read from r as name.
func (c *Client) UploadFrom(name string, r io.Reader, size int64) error {
	if err := validFilename(name); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("invalid size %d", size)
	}

	return c.exchange(func() error {
		if _, err := c.w.WriteString(protocol.FormatUpload(name, size)); err != nil {
			return err
		}
		n, err := io.CopyN(c.w, r, size)
		if err != nil {
			return fmt.Errorf("upload body: wrote %d of %d bytes: %w", n, size, err)
		}
		if err := c.w.Flush(); err != nil {
			return err
		}

		reply, err := c.readLine()
		if err != nil {
			return err
		}
		switch reply {
		case protocol.UploadOK:
			return nil
		case protocol.UploadQuotaExceeded:
			return replyError("upload", reply, ErrQuotaExceeded)
		default:
			return statusError("upload", reply)
		}
	})
}

// Download returns the contents of name.
func (c *Client) Download(name string) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.DownloadTo(name, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DownloadTo streams the contents of name into w.
func (c *Client) DownloadTo(name string, w io.Writer) error {
	if err := validFilename(name); err != nil {
		return err
	}

	return c.exchange(func() error {
		if err := c.send(protocol.CmdDownload + " " + name + "\n"); err != nil {
			return err
		}
		reply, err := c.readLine()
		if err != nil {
			return err
		}
		n, ok := protocol.ParseDownloadHeader(reply)
		if !ok {
			return statusError("download", reply)
		}
		if _, err := io.CopyN(w, c.r, n); err != nil {
			return fmt.Errorf("download body: %w", err)
		}
		return nil
	})
}

// Delete removes name.
func (c *Client) Delete(name string) error {
	if err := validFilename(name); err != nil {
		return err
	}

	return c.exchange(func() error {
		if err := c.send(protocol.CmdDelete + " " + name + "\n"); err != nil {
			return err
		}
		reply, err := c.readLine()
		if err != nil {
			return err
		}
		if reply != protocol.DeleteOK {
			return statusError("delete", reply)
		}
		return nil
	})
}

// List returns the user's filenames. A user who never stored anything gets
// an empty list.
func (c *Client) List() ([]string, error) {
	var names []string
	err := c.exchange(func() error {
		if err := c.send(protocol.CmdList + "\n"); err != nil {
			return err
		}
		reply, err := c.readLine()
		if err != nil {
			return err
		}
		if reply != protocol.ListOK {
			return statusError("list", reply)
		}

		// Body ends at the first empty line.
		for {
			line, err := c.readLine()
			if err != nil {
				return err
			}
			name := strings.TrimRight(line, "\r\n")
			if name == "" {
				return nil
			}
			if name == protocol.NoFilesPlaceholder {
				continue
			}
			names = append(names, name)
		}
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Close ends the session with BYE and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.arm()
	_ = c.send(protocol.CmdBye + "\n")
	return c.conn.Close()
}

// exchange runs one request/response under the client lock and deadline.
func (c *Client) exchange(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.arm()

	err := fn()
	var re *ReplyError
	if err != nil && !errors.As(err, &re) {
		// Transport failures leave the stream in an unknown state.
		c.closed = true
		_ = c.conn.Close()
	}
	return err
}

func (c *Client) arm() {
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
}

func (c *Client) send(line string) error {
	if _, err := c.w.WriteString(line); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *Client) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("connection closed by server: %w", err)
		}
		return "", err
	}
	return line, nil
}

// validFilename rejects names the server would refuse, plus any Unicode
// whitespace, which the server treats as a token separator.
func validFilename(name string) error {
	if err := protocol.ValidateName(name, protocol.MaxFilenameLen); err != nil {
		return fmt.Errorf("invalid filename %q: %w", name, err)
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("invalid filename %q: %w", name, protocol.ErrSyntax)
	}
	return nil
}

func statusError(op, reply string) error {
	if reply == protocol.ServerBusy {
		return replyError(op, reply, ErrServerBusy)
	}
	return replyError(op, reply, ErrFailed)
}
