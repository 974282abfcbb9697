package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/energy-weather-etl/internal/config"
	"github.com/couchcryptid/energy-weather-etl/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	ts := time.Date(2023, time.November, 14, 22, 0, 0, 0, time.UTC)
	startedAt := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	record := domain.MergedRecord{
		Timestamp:   ts,
		MarketPrice: 12.5,
		Unit:        "EUR/MWh",
		SunIndex:    0.7,
	}

	msg, err := serializeToMessage(record, startedAt)
	require.NoError(t, err)

	assert.Equal(t, []byte("2023-11-14T22:00:00Z"), msg.Key)
	assert.Contains(t, string(msg.Value), `"market_price":12.5`)
	assert.Contains(t, string(msg.Value), `"sun_index":0.7`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "unit", msg.Headers[0].Key)
	assert.Equal(t, []byte("EUR/MWh"), msg.Headers[0].Value)
	assert.Equal(t, "cycle_started_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(startedAt.Format(time.RFC3339)), msg.Headers[1].Value)

	var roundtrip domain.MergedRecord
	require.NoError(t, json.Unmarshal(msg.Value, &roundtrip))
	assert.True(t, roundtrip.Timestamp.Equal(ts))
}

func TestSerializeToMessage_KeyIsZoneIndependent(t *testing.T) {
	ts := time.Date(2023, time.November, 14, 22, 0, 0, 0, time.UTC)
	berlin := time.FixedZone("CET", 3600)

	a, err := serializeToMessage(domain.MergedRecord{Timestamp: ts}, ts)
	require.NoError(t, err)
	b, err := serializeToMessage(domain.MergedRecord{Timestamp: ts.In(berlin)}, ts)
	require.NoError(t, err)

	assert.Equal(t, a.Key, b.Key)
}

func TestWriteMerged_EmptyIsNoop(t *testing.T) {
	cfg := &config.Config{KafkaBrokers: []string{"127.0.0.1:1"}, KafkaSinkTopic: "energy-weather-merged"}
	w := NewWriter(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer w.Close()

	require.NoError(t, w.WriteMerged(context.Background(), time.Now(), nil))
}
