package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SelectsPublisher(t *testing.T) {
	t.Parallel()

	_, ok := New(nil, nil).(NopPublisher)
	assert.True(t, ok)

	ap, ok := New([]string{"localhost:9092"}, nil).(*Async)
	require.True(t, ok)
	kp, ok := ap.next.(*KafkaPublisher)
	require.True(t, ok)
	assert.Equal(t, "localhost:9092", kp.writer.Addr.String())
	require.NoError(t, ap.Close())
}

func TestKafkaPublisher_RejectsUnencodableEvent(t *testing.T) {
	t.Parallel()

	p := NewKafkaPublisher([]string{"localhost:9092"})
	defer p.Close()

	err := p.Publish(context.Background(), TopicUser, "k", map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json.Marshal")
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	r := &Recorder{}
	require.NoError(t, r.Publish(context.Background(), TopicUser, "admin", UserEvent{Type: TypeUserLoggedIn, Username: "admin"}))

	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, TopicUser, msgs[0].Topic)
	assert.Equal(t, "admin", msgs[0].Key)

	r.Err = errors.New("broker down")
	assert.Error(t, r.Publish(context.Background(), TopicUser, "admin", nil))
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), TopicUser, "", nil))
}
