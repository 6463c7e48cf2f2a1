package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/gokairos"
	"github.com/atlassian/gokairos/internal/fixtures"
	"github.com/atlassian/gokairos/pkg/stats"
)

func newTestReceiver(t *testing.T, handler gokairos.EventHandler) *eventReceiver {
	return newEventReceiver(fixtures.NewTestLogger(t), "test", handler)
}

func postEvents(er *eventReceiver, encoding string, body []byte) int {
	req := httptest.NewRequest("POST", "/v1/events", bytes.NewReader(body))
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	rec := httptest.NewRecorder()
	er.EventHandler(rec, req)
	return rec.Code
}

func TestEventHandlerSingleObject(t *testing.T) {
	t.Parallel()
	ch := &fixtures.CapturingEventHandler{}
	er := newTestReceiver(t, ch)

	code := postEvents(er, "", []byte(`{"foo":"fancy","value":42}`))
	require.Equal(t, http.StatusAccepted, code)
	events := ch.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "fancy", events[0].Sprintf("%{foo}"))
	assert.Equal(t, "42", events[0].Sprintf("%{value}"))
}

func TestEventHandlerArray(t *testing.T) {
	t.Parallel()
	ch := &fixtures.CapturingEventHandler{}
	er := newTestReceiver(t, ch)

	code := postEvents(er, "", []byte(`[{"a":1},{"b":2},{"c":3}]`))
	require.Equal(t, http.StatusAccepted, code)
	require.Len(t, ch.Events(), 3)
	assert.EqualValues(t, 3, er.eventsProcessed)
	assert.EqualValues(t, 1, er.requestSuccess)
}

func TestEventHandlerCompressed(t *testing.T) {
	t.Parallel()
	for _, ct := range []CompressionType{Zlib, Lz4, Gzip, Zstd} {
		ch := &fixtures.CapturingEventHandler{}
		er := newTestReceiver(t, ch)
		body, err := Compress(ct, 5, []byte(`{"foo":"bar"}`))
		require.NoError(t, err)

		code := postEvents(er, ct.ContentEncoding(), body)
		require.Equal(t, http.StatusAccepted, code, ct)
		require.Len(t, ch.Events(), 1, ct)
	}
}

func TestEventHandlerFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		encoding string
		body     []byte
		expected int
	}{
		{"bad json", "", []byte(`{"foo":`), http.StatusBadRequest},
		{"not an object", "", []byte(`42`), http.StatusBadRequest},
		{"unsupported encoding", "br", []byte(`{}`), http.StatusUnsupportedMediaType},
		{"bad deflate", ZlibContentEncoding, []byte(`{}`), http.StatusBadRequest},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			er := newTestReceiver(t, &fixtures.MockEventHandler{TB: t})
			assert.Equal(t, test.expected, postEvents(er, test.encoding, test.body))
		})
	}
}

func TestEventHandlerDispatchFailure(t *testing.T) {
	t.Parallel()
	calls := 0
	er := newTestReceiver(t, &fixtures.MockEventHandler{
		TB: t,
		FnDispatchEvent: func(ctx context.Context, e *gokairos.Event) error {
			calls++
			if calls == 2 {
				return errors.New("closed")
			}
			return nil
		},
	})

	code := postEvents(er, "", []byte(`[{"a":1},{"b":2},{"c":3}]`))
	require.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, 2, calls)
	assert.EqualValues(t, 1, er.eventsProcessed)
	assert.EqualValues(t, 1, er.requestFailureDispatch)
}

func TestEventReceiverEmitMetrics(t *testing.T) {
	t.Parallel()
	er := newTestReceiver(t, &fixtures.CapturingEventHandler{})
	require.Equal(t, http.StatusAccepted, postEvents(er, "", []byte(`{"a":1}`)))
	require.Equal(t, http.StatusBadRequest, postEvents(er, "", []byte(`nope`)))

	collect := func() map[string]interface{} {
		logger, hook := test.NewNullLogger()
		er.emitMetrics(stats.NewLoggingStatser(nil, logger))
		amounts := map[string]interface{}{}
		for _, entry := range hook.AllEntries() {
			key := fmt.Sprintf("%s%v", entry.Data["name"], entry.Data["tags"])
			amounts[key] = entry.Data["amount"]
		}
		return amounts
	}

	amounts := collect()
	assert.Equal(t, 1.0, amounts["http.incoming[result:success]"])
	assert.Equal(t, 1.0, amounts["http.incoming[result:failure failure:unmarshal]"])
	assert.Equal(t, 0.0, amounts["http.incoming[result:failure failure:dispatch]"])
	assert.Equal(t, 1.0, amounts["http.incoming.events[]"])

	// counters are reset by each emit
	amounts = collect()
	assert.Equal(t, 0.0, amounts["http.incoming[result:success]"])
}
