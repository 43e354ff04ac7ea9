// Package transcript is the durable audit trail of everything the personas
// were asked and answered. Entries go to a Redis stream so operators can
// replay a deliberation after the fact; the engine never blocks on it.
package transcript

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/redis/go-redis/v9"
)

const defaultStream = "agora.transcript"

// Entry is one prompt/response exchange with a participant.
type Entry struct {
	ParticipantID string
	Round         string // proposal|vote|nomination|arbitration|promotion|persona
	Prompt        string
	Response      string
}

// Log appends entries to a Redis stream. A nil Log or a Log built over a nil
// client records nothing.
type Log struct {
	rdb    *redis.Client
	stream string
}

// New returns a Log writing to stream, or the default stream when empty.
func New(rdb *redis.Client, stream string) *Log {
	if stream == "" {
		stream = defaultStream
	}
	return &Log{rdb: rdb, stream: stream}
}

// Record publishes one exchange. Publish failures are logged and swallowed:
// losing an audit entry must never fail a round.
func (l *Log) Record(ctx context.Context, e Entry) {
	if l == nil || l.rdb == nil {
		return
	}

	h := xxhash.NewS64(0)
	_, _ = h.WriteString(e.Prompt)
	_, _ = h.WriteString(e.Response)

	err := l.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		Values: map[string]interface{}{
			"participant": e.ParticipantID,
			"round":       e.Round,
			"prompt":      e.Prompt,
			"response":    e.Response,
			"fingerprint": strconv.FormatUint(h.Sum64(), 16),
			"at":          time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		log.Printf("transcript: publish failed: %v", err)
	}
}
