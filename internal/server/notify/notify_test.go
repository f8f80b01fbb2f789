package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/alprslanymeria/oauthserver/internal/logging"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier_Send(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(logging.NewJSON(&buf, "info"))

	err := n.Send(context.Background(), models.Notification{
		Channel:   models.ChannelEmail,
		Recipient: "a@x.com",
		Subject:   "Verify Your Account",
		Body:      "Your verification code is: 123456",
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "notification", line["msg"])
	assert.Equal(t, "notifier", line["module"])
	assert.Equal(t, "email", line["channel"])
	assert.Equal(t, "a@x.com", line["recipient"])
	assert.Equal(t, "Your verification code is: 123456", line["body"])
}

func TestLogNotifier_Rejects(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(logging.NewJSON(&buf, "info"))
	ctx := context.Background()

	assert.Error(t, n.Send(ctx, models.Notification{Channel: models.ChannelEmail}))
	assert.Error(t, n.Send(ctx, models.Notification{Channel: "pigeon", Recipient: "a@x.com"}))
	assert.Zero(t, buf.Len())
}
