package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	drained   chan struct{}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	select {
	case r.drained <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type memInbox struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (i *memInbox) Record(_ context.Context, id, _ string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.seen[id] {
		return false, nil
	}
	i.seen[id] = true
	return true, nil
}

func (i *memInbox) Forget(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.seen, id)
	return nil
}

func msg(offset int64, id string) kafka.Message {
	return kafka.Message{Offset: offset, Topic: "t", Headers: kafkax.EventMeta{EventID: id, EventType: "CONFIRMATION"}.Headers()}
}

func run(t *testing.T, r *fakeReader, h Handler) {
	t.Helper()
	c := newConsumer(r, slog.New(slog.NewTextHandler(io.Discard, nil)), &memInbox{seen: map[string]bool{}},
		Config{MaxAttempts: 3, Backoff: time.Millisecond}, h)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	select {
	case <-r.drained:
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer did not drain the queue")
	}
	cancel()
	<-done
}

func TestDuplicatesAreHandledOnce(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{msg(1, "e1"), msg(2, "e1"), msg(3, "e2")}, drained: make(chan struct{}, 1)}
	var handled []string
	run(t, r, func(_ context.Context, m kafka.Message) error {
		handled = append(handled, kafkax.ExtractEventMeta(m).EventID)
		return nil
	})
	if len(handled) != 2 || handled[0] != "e1" || handled[1] != "e2" {
		t.Fatalf("unexpected handled %v", handled)
	}
	if len(r.committed) != 3 {
		t.Fatalf("every offset should be committed, got %v", r.committed)
	}
}

func TestFailedEventsAreRetried(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{msg(1, "e1"), msg(2, "e2")}, drained: make(chan struct{}, 1)}
	attempts := map[string]int{}
	run(t, r, func(_ context.Context, m kafka.Message) error {
		id := kafkax.ExtractEventMeta(m).EventID
		attempts[id]++
		if id == "e1" && attempts[id] < 2 {
			return errors.New("db down")
		}
		if id == "e2" {
			return errors.New("always broken")
		}
		return nil
	})
	if attempts["e1"] != 2 {
		t.Fatalf("expected e1 to succeed on retry, got %d attempts", attempts["e1"])
	}
	if attempts["e2"] != 3 {
		t.Fatalf("expected e2 to stop after 3 attempts, got %d", attempts["e2"])
	}
	if len(r.committed) != 2 {
		t.Fatalf("expected both offsets committed, got %v", r.committed)
	}
}
