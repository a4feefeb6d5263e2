package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHello(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    string
		wantErr bool
	}{
		{"Simple", "HELLO alice", "alice", false},
		{"ExtraWhitespace", "   HELLO   bob  ", "bob", false},
		{"TrailingCR", "HELLO carol\r", "carol", false},
		{"ExtraTokensIgnored", "HELLO dave please", "dave", false},
		{"MaxLength", "HELLO " + strings.Repeat("u", MaxUsernameLen), strings.Repeat("u", MaxUsernameLen), false},

		{"Empty", "", "", true},
		{"MissingUsername", "HELLO", "", true},
		{"WrongVerb", "HI alice", "", true},
		{"LowercaseVerb", "hello alice", "", true},
		{"TooLong", "HELLO " + strings.Repeat("u", MaxUsernameLen+1), "", true},
		{"PathSeparator", "HELLO ../etc", "", true},
		{"DotDot", "HELLO ..", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHello(tt.line)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSyntax)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Command
		wantErr error
	}{
		{"Upload", "UPLOAD a.txt 5", Command{Name: CmdUpload, Filename: "a.txt", Size: 5}, nil},
		{"UploadZero", "UPLOAD empty 0", Command{Name: CmdUpload, Filename: "empty", Size: 0}, nil},
		{"UploadLeadingSpace", "  UPLOAD a.txt 5\r", Command{Name: CmdUpload, Filename: "a.txt", Size: 5}, nil},
		{"Download", "DOWNLOAD a.txt", Command{Name: CmdDownload, Filename: "a.txt"}, nil},
		{"Delete", "DELETE a.txt", Command{Name: CmdDelete, Filename: "a.txt"}, nil},
		{"List", "LIST", Command{Name: CmdList}, nil},
		{"ListWithArgs", "LIST everything", Command{Name: CmdList}, nil},
		{"Bye", "BYE", Command{Name: CmdBye}, nil},

		{"UploadMissingSize", "UPLOAD a.txt", Command{Name: CmdUpload}, ErrSyntax},
		{"UploadNegativeSize", "UPLOAD a.txt -1", Command{Name: CmdUpload}, ErrSyntax},
		{"UploadPlusSize", "UPLOAD a.txt +1", Command{Name: CmdUpload}, ErrSyntax},
		{"UploadNonNumeric", "UPLOAD a.txt five", Command{Name: CmdUpload}, ErrSyntax},
		{"UploadBareVerb", "UPLOAD", Command{Name: CmdUpload}, ErrSyntax},
		{"UploadSlashName", "UPLOAD dir/a.txt 1", Command{Name: CmdUpload, Size: 1}, ErrInvalidName},
		{"UploadLongName", "UPLOAD " + strings.Repeat("n", MaxFilenameLen+1) + " 7", Command{Name: CmdUpload, Size: 7}, ErrInvalidName},
		{"UploadBadNameBadSize", "UPLOAD ../x y", Command{Name: CmdUpload}, ErrSyntax},
		{"DownloadMissingName", "DOWNLOAD", Command{Name: CmdDownload}, ErrSyntax},
		{"DownloadBackslash", `DOWNLOAD ..\x`, Command{Name: CmdDownload}, ErrInvalidName},
		{"DeleteDot", "DELETE .", Command{Name: CmdDelete}, ErrSyntax},

		{"Unknown", "RENAME a b", Command{Name: "RENAME"}, ErrUnknownCommand},
		{"Lowercase", "list", Command{Name: "list"}, ErrUnknownCommand},
		{"Blank", "   ", Command{}, ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("report.final.pdf", MaxFilenameLen))
	assert.NoError(t, ValidateName("...", MaxFilenameLen))
	assert.Error(t, ValidateName("nul\x00byte", MaxFilenameLen))
	assert.Error(t, ValidateName("abcd", 3))
	assert.ErrorIs(t, ValidateName("..", MaxFilenameLen), ErrInvalidName)
	assert.ErrorIs(t, ValidateName("a/b", MaxFilenameLen), ErrSyntax)
}

func TestDownloadHeader(t *testing.T) {
	assert.Equal(t, "DOWNLOAD 5\n", FormatDownloadHeader(5))

	n, ok := ParseDownloadHeader("DOWNLOAD 5\n")
	assert.True(t, ok)
	assert.Equal(t, int64(5), n)

	_, ok = ParseDownloadHeader(DownloadFailed)
	assert.False(t, ok)
	_, ok = ParseDownloadHeader("DOWNLOAD -3")
	assert.False(t, ok)
}

func TestFormatUpload(t *testing.T) {
	line := FormatUpload("a.txt", 5)
	assert.Equal(t, "UPLOAD a.txt 5\n", line)

	cmd, err := ParseCommand(line)
	require.NoError(t, err)
	assert.Equal(t, Command{Name: CmdUpload, Filename: "a.txt", Size: 5}, cmd)
}

func TestReplyLinesAreTerminated(t *testing.T) {
	for _, line := range []string{
		Greeting, HelloExpected, AuthOK, AuthFailed,
		UploadOK, UploadFailed, UploadQuotaExceeded, UploadSyntax,
		DownloadOK, DownloadFailed, DownloadSyntax,
		DeleteOK, DeleteFailed, DeleteSyntax,
		ListOK, ListFailed, ServerBusy, UnknownCommand,
	} {
		assert.True(t, strings.HasSuffix(line, "\n"), "%q", line)
	}
}
