package sink

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"tidings/internal/retry"
	logx "tidings/pkg/logx"
)

func TestClassifySendError_FloodWait(t *testing.T) {
	err := classifySendError(tele.FloodError{RetryAfter: 42})

	var ra retry.RetryAfterError
	require.ErrorAs(t, err, &ra)
	assert.Equal(t, 42*time.Second, ra.RetryAfter())
	assert.True(t, retry.DefaultClassifier(err))
}

func TestClassifySendError_GatewayErrors(t *testing.T) {
	for _, code := range []int{429, 502, 503, 504} {
		err := classifySendError(&tele.Error{Code: code, Description: "upstream"})

		var se *retry.StatusError
		require.ErrorAs(t, err, &se, "code %d", code)
		assert.Equal(t, code, se.Status)
		assert.True(t, retry.DefaultClassifier(err), "code %d", code)
	}
}

func TestClassifySendError_APIErrorsPermanent(t *testing.T) {
	for _, code := range []int{400, 401, 403, 404} {
		err := classifySendError(&tele.Error{Code: code, Description: "rejected"})
		assert.True(t, retry.IsPermanent(err), "code %d", code)
	}
}

func TestClassifySendError_TransportPassesThrough(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	err := classifySendError(netErr)

	assert.False(t, retry.IsPermanent(err))
	assert.True(t, retry.DefaultClassifier(err))
}

func TestNewTelegram_RequiresCredentials(t *testing.T) {
	_, err := NewTelegram(TelegramConfig{}, logx.Nop())
	assert.Error(t, err)

	_, err = NewTelegram(TelegramConfig{Token: "t"}, logx.Nop())
	assert.Error(t, err)
}
