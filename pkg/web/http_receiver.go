package web

import (
	"context"
	"errors"
	"io/ioutil"
	"net/http"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/atlassian/gokairos"
	"github.com/atlassian/gokairos/pkg/codec"
	"github.com/atlassian/gokairos/pkg/stats"
)

// maxBodySize bounds a single events request, before decompression.
const maxBodySize = 16 * 1024 * 1024

type eventReceiver struct {
	requestSuccess           uint64 // atomic
	requestFailureRead       uint64 // atomic
	requestFailureDecompress uint64 // atomic
	requestFailureEncoding   uint64 // atomic
	requestFailureUnmarshal  uint64 // atomic
	requestFailureDispatch   uint64 // atomic
	eventsProcessed          uint64 // atomic

	logger     logrus.FieldLogger
	handler    gokairos.EventHandler
	serverName string
	decoder    *codec.Decoder
}

func newEventReceiver(logger logrus.FieldLogger, serverName string, handler gokairos.EventHandler) *eventReceiver {
	return &eventReceiver{
		logger:     logger,
		handler:    handler,
		serverName: serverName,
		decoder:    codec.NewDecoder(),
	}
}

func (er *eventReceiver) RunMetrics(ctx context.Context) {
	statser := stats.FromContext(ctx).WithTags(stats.Tags{"server-name:" + er.serverName})

	notify, cancel := statser.RegisterFlush()
	defer cancel()

	for {
		select {
		case <-notify:
			er.emitMetrics(statser)
		case <-ctx.Done():
			return
		}
	}
}

func (er *eventReceiver) emitMetrics(statser stats.Statser) {
	requestSuccess := atomic.SwapUint64(&er.requestSuccess, 0)
	requestFailureRead := atomic.SwapUint64(&er.requestFailureRead, 0)
	requestFailureDecompress := atomic.SwapUint64(&er.requestFailureDecompress, 0)
	requestFailureEncoding := atomic.SwapUint64(&er.requestFailureEncoding, 0)
	requestFailureUnmarshal := atomic.SwapUint64(&er.requestFailureUnmarshal, 0)
	requestFailureDispatch := atomic.SwapUint64(&er.requestFailureDispatch, 0)
	eventsProcessed := atomic.SwapUint64(&er.eventsProcessed, 0)

	statser.Count("http.incoming", float64(requestSuccess), stats.Tags{"result:success"})
	statser.Count("http.incoming", float64(requestFailureRead), stats.Tags{"result:failure", "failure:read"})
	statser.Count("http.incoming", float64(requestFailureDecompress), stats.Tags{"result:failure", "failure:decompress"})
	statser.Count("http.incoming", float64(requestFailureEncoding), stats.Tags{"result:failure", "failure:encoding"})
	statser.Count("http.incoming", float64(requestFailureUnmarshal), stats.Tags{"result:failure", "failure:unmarshal"})
	statser.Count("http.incoming", float64(requestFailureDispatch), stats.Tags{"result:failure", "failure:dispatch"})
	statser.Count("http.incoming.events", float64(eventsProcessed), nil)
}

func (er *eventReceiver) readBody(w http.ResponseWriter, req *http.Request) ([]byte, int) {
	b, err := ioutil.ReadAll(http.MaxBytesReader(w, req.Body, maxBodySize))
	_ = req.Body.Close()
	if err != nil {
		atomic.AddUint64(&er.requestFailureRead, 1)
		er.logger.WithError(err).Info("failed reading body")
		return nil, http.StatusBadRequest
	}

	b, err = decompressBody(req.Header.Get("Content-Encoding"), b)
	if err != nil {
		var unsupported errUnsupportedEncoding
		if errors.As(err, &unsupported) {
			atomic.AddUint64(&er.requestFailureEncoding, 1)
			er.logger.WithField("encoding", string(unsupported)).Info("invalid encoding")
			return nil, http.StatusUnsupportedMediaType
		}
		atomic.AddUint64(&er.requestFailureDecompress, 1)
		er.logger.WithError(err).Info("failed decompressing body")
		return nil, http.StatusBadRequest
	}
	return b, 0
}

// EventHandler accepts a JSON object, or an array of JSON objects, and dispatches every
// event before answering 202.
func (er *eventReceiver) EventHandler(w http.ResponseWriter, req *http.Request) {
	b, errCode := er.readBody(w, req)
	if errCode != 0 {
		w.WriteHeader(errCode)
		return
	}

	events, err := er.decoder.DecodeBatch(b)
	if err != nil {
		atomic.AddUint64(&er.requestFailureUnmarshal, 1)
		er.logger.WithError(err).Info("failed to decode events")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	for _, e := range events {
		if err := er.handler.DispatchEvent(req.Context(), e); err != nil {
			atomic.AddUint64(&er.requestFailureDispatch, 1)
			er.logger.WithError(err).Info("failed to dispatch event")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		atomic.AddUint64(&er.eventsProcessed, 1)
	}

	atomic.AddUint64(&er.requestSuccess, 1)
	w.WriteHeader(http.StatusAccepted)
}
