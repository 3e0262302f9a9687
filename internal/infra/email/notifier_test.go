package email

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFailureMessage(t *testing.T) {
	msg := string(failureMessage("noreply@fiapx.local", "user@example.com", "job-1", "https://example.com/v", "no extractable content"))

	assert.Contains(t, msg, "From: noreply@fiapx.local\r\n")
	assert.Contains(t, msg, "To: user@example.com\r\n")
	assert.Contains(t, msg, "Subject: FIAP X - Frame Sampling Failed [Job job-1]")
	assert.Contains(t, msg, "Video: https://example.com/v")
	assert.Contains(t, msg, "Error: no extractable content")
}

func TestNotifyFailureUnreachableServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	n := NewSMTPNotifier("127.0.0.1", port, "noreply@fiapx.local", zap.NewNop())
	err = n.NotifyFailure(context.Background(), "user@example.com", "job-1", "https://example.com/v", "boom")
	assert.Error(t, err)
}
