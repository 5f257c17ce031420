package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/confidentialbid/core"
)

var closed = core.AuctionClosed{
	AuctionID: 7,
	Auction:   "auction",
	Organizer: "organizer",
	Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
}

func TestEncode(t *testing.T) {
	b, err := Encode(closed)
	assert.NoError(t, err)

	var env Envelope
	assert.NoError(t, json.Unmarshal(b, &env))
	check.Equal(t, "auction_closed", env.Event)

	var payload core.AuctionClosed
	assert.NoError(t, json.Unmarshal(env.Payload, &payload))
	check.Equal(t, closed.AuctionID, payload.AuctionID)
	check.True(t, closed.Timestamp.Equal(payload.Timestamp))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := LogSink{Logger: log.NewLogfmtLogger(&buf)}

	assert.NoError(t, s.Publish(context.Background(), closed))
	check.True(t, strings.Contains(buf.String(), "event=auction_closed"))
	check.True(t, strings.Contains(buf.String(), "organizer"))
}

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, core.Event) error { return f.err }

func TestMulti(t *testing.T) {
	var r1, r2 Recorder
	boom := errors.New("boom")

	err := Multi{&r1, failingSink{boom}, &r2}.Publish(context.Background(), closed)
	check.True(t, errors.Is(err, boom))

	// Later sinks still receive the event.
	check.Equal(t, []string{"auction_closed"}, r1.Names())
	check.Equal(t, []string{"auction_closed"}, r2.Names())

	check.NoError(t, Multi{&r1}.Publish(context.Background(), closed))
	check.NoError(t, Discard.Publish(context.Background(), closed))
}

func TestRedisSink(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skipf("set REDIS_ADDR to run this test")
	}

	ctx := context.Background()
	client, err := NewRedisClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
	assert.NoError(t, err)

	sink := NewRedisSink(client, "confidentialbid:test")
	defer sink.Close()

	sub := client.Subscribe(ctx, sink.Channel)
	defer sub.Close()
	_, err = sub.Receive(ctx)
	assert.NoError(t, err)

	assert.NoError(t, sink.Publish(ctx, closed))

	msg, err := sub.ReceiveMessage(ctx)
	assert.NoError(t, err)

	var env Envelope
	assert.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	check.Equal(t, "auction_closed", env.Event)
}
