package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/learnwire/internal/core"
	"github.com/vovakirdan/learnwire/internal/log"
)

const testRedisAddr = "localhost:6379"

type recordingNotifier struct {
	mu   sync.Mutex
	got  []*core.Notification
	seen chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{seen: make(chan struct{}, 16)}
}

func (r *recordingNotifier) Notify(_ context.Context, n *core.Notification) (int, error) {
	if n.Type == "" {
		return 0, &core.CoreError{Code: core.ErrCodeInvalidNotification, Message: "notification type is required"}
	}
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
	r.seen <- struct{}{}
	return 1, nil
}

func (r *recordingNotifier) notifications() []*core.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*core.Notification(nil), r.got...)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := &core.Notification{
		Type:    "enrollment",
		Message: "Enrolled in Go 101",
		UserID:  "u-1",
		Payload: map[string]any{"courseId": "go-101"},
	}
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeFlatPayload(t *testing.T) {
	n, err := Decode([]byte(`{"type":"announcement","message":"Maintenance","window":"02:00"}`))
	require.NoError(t, err)
	assert.Empty(t, n.UserID)
	assert.Equal(t, map[string]any{"window": "02:00"}, n.Payload)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestHandleSkipsBadMessages(t *testing.T) {
	logger := log.Nop()
	notifier := newRecordingNotifier()
	sub := NewSubscriber(nil, "test", notifier, logger)

	sub.handle(context.Background(), []byte(`{{`))
	sub.handle(context.Background(), []byte(`{"message":"no type"}`))
	sub.handle(context.Background(), []byte(`{"type":"quiz","message":"Graded"}`))

	got := notifier.notifications()
	require.Len(t, got, 1)
	assert.Equal(t, "quiz", got[0].Type)
}

func TestRetryDelayBacksOff(t *testing.T) {
	sub := NewSubscriber(nil, "test", newRecordingNotifier(), log.Nop())
	sub.baseRetryDelay = 100 * time.Millisecond
	sub.maxRetryDelay = time.Second

	assert.Equal(t, 100*time.Millisecond, sub.retryDelay(1))
	assert.Equal(t, 200*time.Millisecond, sub.retryDelay(2))
	assert.Equal(t, 800*time.Millisecond, sub.retryDelay(4))
	assert.Equal(t, time.Second, sub.retryDelay(5))
	assert.Equal(t, time.Second, sub.retryDelay(50))
}

func TestRunKeepsRetryingWhenRedisIsDown(t *testing.T) {
	// nothing listens on port 1
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	sub := NewSubscriber(client, "test", newRecordingNotifier(), log.Nop())
	sub.baseRetryDelay = 10 * time.Millisecond
	sub.maxRetryDelay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("relay gave up while redis was down: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}

func TestSubscriberRelaysPublishedNotifications(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	t.Cleanup(func() { _ = client.Close() })

	channel := "learnwire:test:" + time.Now().Format("150405.000000")
	logger := log.Nop()
	notifier := newRecordingNotifier()
	sub := NewSubscriber(client, channel, notifier, logger)

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	// the subscription is confirmed asynchronously; publish until someone listens
	require.Eventually(t, func() bool {
		n, err := Publish(ctx, client, channel, &core.Notification{Type: "quiz", Message: "Graded", UserID: "u-1"})
		return err == nil && n > 0
	}, 3*time.Second, 50*time.Millisecond)

	select {
	case <-notifier.seen:
	case <-ctx.Done():
		t.Fatal("notification was not relayed")
	}
	assert.Equal(t, "u-1", notifier.notifications()[0].UserID)

	cancel()
	assert.NoError(t, <-done)
}
