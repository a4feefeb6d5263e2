// Package protocol defines the line-oriented DittoBox wire protocol: command
// names, fixed reply lines, and the command-line parser shared by the server
// and the client.
//
// Every line is ASCII and terminated by '\n'. Binary payloads (UPLOAD request
// body, DOWNLOAD reply body) follow their header line directly, with their
// length given in the header.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultPort is the TCP port the server listens on unless configured.
const DefaultPort = 9000

// Protocol limits.
const (
	// MaxUsernameLen is the longest accepted HELLO username.
	MaxUsernameLen = 255

	// MaxFilenameLen is the longest accepted filename token.
	MaxFilenameLen = 255

	// DefaultMaxLineLength bounds a single command line including '\n'.
	DefaultMaxLineLength = 1024
)

// Command names as sent by clients.
const (
	CmdHello    = "HELLO"
	CmdUpload   = "UPLOAD"
	CmdDownload = "DOWNLOAD"
	CmdDelete   = "DELETE"
	CmdList     = "LIST"
	CmdBye      = "BYE"
)

// Server reply lines, each including the trailing newline.
const (
	Greeting      = "SIMPLE-DROPBOX-SERVER v1\nSend: HELLO <username>\n"
	HelloExpected = "Expected: HELLO <username>\n"
	AuthOK        = "AUTH OK\n"
	AuthFailed    = "AUTH FAILED\n"

	UploadOK            = "UPLOAD OK\n"
	UploadFailed        = "UPLOAD FAILED\n"
	UploadQuotaExceeded = "UPLOAD FAILED: QUOTA EXCEEDED\n"
	UploadSyntax        = "UPLOAD SYNTAX: UPLOAD <filename> <size>\n"

	DownloadOK     = "DOWNLOAD OK\n"
	DownloadFailed = "DOWNLOAD FAILED\n"
	DownloadSyntax = "DOWNLOAD SYNTAX\n"

	DeleteOK     = "DELETE OK\n"
	DeleteFailed = "DELETE FAILED\n"
	DeleteSyntax = "DELETE SYNTAX\n"

	ListOK     = "LIST OK\n"
	ListFailed = "LIST FAILED\n"

	ServerBusy     = "SERVER BUSY\n"
	UnknownCommand = "Unknown command. Use UPLOAD/DOWNLOAD/DELETE/LIST/BYE\n"
)

// NoFilesPlaceholder is the LIST body for a user without a storage directory.
// Every LIST body, placeholder included, ends with an empty line so clients
// can find its end without closing the connection.
const NoFilesPlaceholder = "(no files)"

// DownloadHeaderPrefix starts a successful DOWNLOAD reply: "DOWNLOAD <n>\n".
const DownloadHeaderPrefix = CmdDownload + " "

var (
	// ErrSyntax reports a command line whose arguments do not parse.
	ErrSyntax = errors.New("protocol: syntax error")

	// ErrUnknownCommand reports an unrecognized command word.
	ErrUnknownCommand = errors.New("protocol: unknown command")

	// ErrInvalidName reports a username or filename token that cannot be
	// used as a path component. It wraps ErrSyntax.
	ErrInvalidName = fmt.Errorf("%w: invalid name", ErrSyntax)
)

// Command is a parsed client command line.
type Command struct {
	Name     string
	Filename string // UPLOAD, DOWNLOAD, DELETE
	Size     int64  // UPLOAD
}

// ParseHello parses a handshake line and returns the username token.
func ParseHello(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != CmdHello {
		return "", ErrSyntax
	}
	if err := ValidateName(fields[1], MaxUsernameLen); err != nil {
		return "", err
	}
	return fields[1], nil
}

// ParseCommand parses one authenticated-state command line. Leading
// whitespace and a trailing CR are ignored; extra trailing tokens are
// ignored as well. On ErrSyntax the returned Command still carries Name so
// the caller can pick the matching syntax reply. An UPLOAD whose size parses
// but whose filename is rejected returns ErrInvalidName with Size set, since
// the client will still send that many body bytes.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrUnknownCommand
	}

	cmd := Command{Name: fields[0]}
	switch cmd.Name {
	case CmdUpload:
		if len(fields) < 3 {
			return cmd, ErrSyntax
		}
		size, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil || size < 0 || strings.HasPrefix(fields[2], "+") {
			return cmd, ErrSyntax
		}
		cmd.Size = size
		if err := ValidateName(fields[1], MaxFilenameLen); err != nil {
			return cmd, err
		}
		cmd.Filename = fields[1]

	case CmdDownload, CmdDelete:
		if len(fields) < 2 {
			return cmd, ErrSyntax
		}
		if err := ValidateName(fields[1], MaxFilenameLen); err != nil {
			return cmd, err
		}
		cmd.Filename = fields[1]

	case CmdList, CmdBye:

	default:
		return cmd, ErrUnknownCommand
	}
	return cmd, nil
}

// ValidateName checks that s is usable as a single path component: non-empty,
// at most maxLen bytes, not "." or "..", and free of path separators and NUL.
// Failures are ErrInvalidName.
func ValidateName(s string, maxLen int) error {
	switch {
	case s == "", s == ".", s == "..":
		return ErrInvalidName
	case len(s) > maxLen:
		return ErrInvalidName
	case strings.ContainsAny(s, "/\\\x00"):
		return ErrInvalidName
	}
	return nil
}

// FormatUpload renders an UPLOAD request header.
func FormatUpload(filename string, size int64) string {
	return CmdUpload + " " + filename + " " + strconv.FormatInt(size, 10) + "\n"
}

// FormatDownloadHeader renders the header of a successful DOWNLOAD reply.
func FormatDownloadHeader(n int) string {
	return DownloadHeaderPrefix + strconv.Itoa(n) + "\n"
}

// ParseDownloadHeader extracts the byte count from "DOWNLOAD <n>".
func ParseDownloadHeader(line string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimRight(line, "\r\n"), DownloadHeaderPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
