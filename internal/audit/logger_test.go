package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	pkgctx "github.com/baechuer/real-time-ressys/services/booking-service/internal/pkg/context"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestPromoted_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf))

	opt, user := uuid.New(), uuid.New()
	l.Promoted(pkgctx.WithTraceID(context.Background(), "trace-1"), opt, user, "cancel")

	m := decode(t, &buf)
	assert.Equal(t, true, m["audit"])
	assert.Equal(t, "promoted", m["action"])
	assert.Equal(t, opt.String(), m["option_id"])
	assert.Equal(t, user.String(), m["user_id"])
	assert.Equal(t, "trace-1", m["trace_id"])
}

func TestOverCapacity_IsError(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf))

	l.OverCapacity(context.Background(), uuid.New(), uuid.New(), 7, "capacity_change")

	m := decode(t, &buf)
	assert.Equal(t, "error", m["level"])
	assert.Equal(t, float64(7), m["rank"])
}

func TestTraceID_FallsBackToRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf))

	ctx := pkgctx.WithRequestID(context.Background(), "req-9")
	l.RequestCanceled(ctx, uuid.New(), uuid.New(), uuid.New(), domain.StatusWaiting)

	m := decode(t, &buf)
	assert.Equal(t, "req-9", m["trace_id"])
	assert.Equal(t, "waiting", m["prev_status"])
}
