package esp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailtrack/internal/domain"
)

func TestSparkPostNormalize(t *testing.T) {
	body := []byte(`[
		{"msys":{"message_event":{"type":"delivery","event_id":"92356927693813856","rcpt_to":"a@example.com","timestamp":"1460989507","rcpt_meta":{"mailtrack_id":"msg-9"}}}},
		{"msys":{"track_event":{"type":"initial_open","event_id":"2","rcpt_to":"a@example.com","timestamp":"2024-03-01T10:00:00Z","rcpt_meta":{"mailtrack_id":"msg-9"}}}},
		{"msys":{"message_event":{"type":"policy_rejection","event_id":"3","rcpt_to":"b@example.com","timestamp":"1460989510"}}},
		{"msys":{}}
	]`)

	events, err := NewSparkPost("mailtrack_id").Normalize(body)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, domain.EventDelivered, events[0].Kind)
	assert.Equal(t, "msg-9", events[0].CorrelationID)
	assert.Equal(t, "92356927693813856", events[0].EventID)
	require.NotNil(t, events[0].Timestamp)
	assert.True(t, time.Unix(1460989507, 0).Equal(*events[0].Timestamp))

	assert.Equal(t, domain.EventOpened, events[1].Kind)
	require.NotNil(t, events[1].Timestamp)
	assert.Equal(t, 2024, events[1].Timestamp.Year())

	assert.Equal(t, domain.EventRejected, events[2].Kind)
	assert.Empty(t, events[2].CorrelationID)
	assert.Equal(t, "b@example.com", events[2].Recipient)
}

func TestSparkPostNormalizeMalformed(t *testing.T) {
	_, err := NewSparkPost("mailtrack_id").Normalize([]byte(`not json`))
	assert.Error(t, err)
}
