package kairosdb

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/atlassian/gokairos"
	"github.com/atlassian/gokairos/pkg/backends/sender"
	"github.com/atlassian/gokairos/pkg/healthcheck"
	"github.com/atlassian/gokairos/pkg/pool"
	"github.com/atlassian/gokairos/pkg/stats"
)

const (
	// BackendName is the name of this backend.
	BackendName = "kairosdb"
	// DefaultHost is the default host of the KairosDB telnet interface.
	DefaultHost = "localhost"
	// DefaultPort is the default port of the KairosDB telnet interface.
	DefaultPort = 4242
	// DefaultReconnectInterval is the default wait between connection attempts.
	DefaultReconnectInterval = 2 * time.Second
	// DefaultResendOnFailure is the default for resending a payload after a failed write.
	DefaultResendOnFailure = false
	// DefaultDialTimeout is the default net.Dial timeout.
	DefaultDialTimeout = 5 * time.Second
	// DefaultWriteTimeout is the default socket write timeout.
	DefaultWriteTimeout = 30 * time.Second
)

const (
	ParamHost              = "host"
	ParamPort              = "port"
	ParamReconnectInterval = "reconnect-interval"
	ParamResendOnFailure   = "resend-on-failure"
	ParamDialTimeout       = "dial-timeout"
	ParamWriteTimeout      = "write-timeout"
)

// bufSize is the initial capacity of payload buffers, enough for a typical event.
const bufSize = 4 * 1024

// Client sends metrics to the KairosDB telnet interface, one payload per event.
type Client struct {
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	payloadsSent    uint64 // atomic
	payloadsDropped uint64 // atomic
	resends         uint64 // atomic
	metricsSent     uint64 // atomic

	logger          logrus.FieldLogger
	address         string
	conn            *sender.Conn
	resendOnFailure bool
	bufPool         *pool.BytesBuffer
}

// AddFlags adds flags to the specified FlagSet.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ParamHost, DefaultHost, "KairosDB host")
	fs.Int(ParamPort, DefaultPort, "KairosDB telnet port")
	fs.Duration(ParamReconnectInterval, DefaultReconnectInterval, "Wait between connection attempts, and before resending")
	fs.Bool(ParamResendOnFailure, DefaultResendOnFailure, "Resend a payload after the connection was re-established")
	fs.Duration(ParamDialTimeout, DefaultDialTimeout, "Timeout of a single connection attempt")
	fs.Duration(ParamWriteTimeout, DefaultWriteTimeout, "Socket write timeout, 0 disables it")
}

// NewClientFromViper constructs a Client object using configuration provided by Viper
func NewClientFromViper(v *viper.Viper, logger logrus.FieldLogger) (*Client, error) {
	v.SetDefault(ParamHost, DefaultHost)
	v.SetDefault(ParamPort, DefaultPort)
	v.SetDefault(ParamReconnectInterval, DefaultReconnectInterval)
	v.SetDefault(ParamResendOnFailure, DefaultResendOnFailure)
	v.SetDefault(ParamDialTimeout, DefaultDialTimeout)
	v.SetDefault(ParamWriteTimeout, DefaultWriteTimeout)
	port := v.GetInt(ParamPort)
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("[%s] port %d is out of range", BackendName, port)
	}
	return NewClient(
		net.JoinHostPort(v.GetString(ParamHost), strconv.Itoa(port)),
		v.GetDuration(ParamDialTimeout),
		v.GetDuration(ParamWriteTimeout),
		v.GetDuration(ParamReconnectInterval),
		v.GetBool(ParamResendOnFailure),
		logger,
	)
}

// NewClient constructs a KairosDB backend object which connects over TCP.
func NewClient(
	address string,
	dialTimeout time.Duration,
	writeTimeout time.Duration,
	reconnectInterval time.Duration,
	resendOnFailure bool,
	logger logrus.FieldLogger,
) (*Client, error) {
	if address == "" {
		return nil, fmt.Errorf("[%s] address is required", BackendName)
	}
	if dialTimeout <= 0 {
		return nil, fmt.Errorf("[%s] dialTimeout should be positive", BackendName)
	}
	dialer := &net.Dialer{Timeout: dialTimeout}
	dial := func(ctx context.Context) (net.Conn, error) {
		return dialer.DialContext(ctx, "tcp", address)
	}
	return NewClientWithDialer(address, dial, writeTimeout, reconnectInterval, resendOnFailure, logger)
}

// NewClientWithDialer constructs a KairosDB backend object which opens connections through dial.
func NewClientWithDialer(
	address string,
	dial sender.DialFunc,
	writeTimeout time.Duration,
	reconnectInterval time.Duration,
	resendOnFailure bool,
	logger logrus.FieldLogger,
) (*Client, error) {
	if writeTimeout < 0 {
		return nil, fmt.Errorf("[%s] writeTimeout should be non-negative", BackendName)
	}
	if reconnectInterval < 0 {
		return nil, fmt.Errorf("[%s] reconnectInterval should be non-negative", BackendName)
	}
	logger = logger.WithField("backend", BackendName)
	logger.WithFields(logrus.Fields{
		"address":            address,
		"write-timeout":      writeTimeout,
		"reconnect-interval": reconnectInterval,
		"resend-on-failure":  resendOnFailure,
	}).Info("created backend")

	return &Client{
		logger:          logger,
		address:         address,
		resendOnFailure: resendOnFailure,
		conn: &sender.Conn{
			Logger:            logger.WithField("address", address),
			Dial:              dial,
			ReconnectInterval: reconnectInterval,
			WriteTimeout:      writeTimeout,
		},
		bufPool: pool.NewBytesBuffer(bufSize),
	}, nil
}

// Name returns the name of the backend.
func (client *Client) Name() string {
	return BackendName
}

// Connect blocks until the connection is open.
func (client *Client) Connect(ctx context.Context) error {
	return client.conn.EnsureConnected(ctx)
}

// Close closes the connection.
func (client *Client) Close() error {
	return client.conn.Close()
}

// FormatLine renders a metric in the telnet put format, without the line terminator.
func FormatLine(m gokairos.Metric) string {
	buf := bytes.Buffer{}
	appendLine(&buf, m)
	return buf.String()
}

func appendLine(buf *bytes.Buffer, m gokairos.Metric) {
	var scratch [32]byte
	buf.WriteString("put ")
	buf.WriteString(m.Name)
	buf.WriteByte(' ')
	buf.Write(strconv.AppendInt(scratch[:0], m.Timestamp, 10))
	buf.WriteByte(' ')
	buf.WriteString(m.Value.String())
}

// preparePayload renders all metrics as newline terminated lines.
func (client *Client) preparePayload(metrics []gokairos.Metric) *bytes.Buffer {
	buf := client.bufPool.Get()
	for _, m := range metrics {
		appendLine(buf, m)
		buf.WriteByte('\n')
	}
	return buf
}

func (client *Client) putBuffer(buf *bytes.Buffer) {
	client.bufPool.Put(buf)
}

// Send writes the metrics of one event as a single payload.  It blocks until the payload
// was written or given up on, connecting first if needed.  A failed write is followed by
// a wait and a reconnect; the payload is written again only with resend on failure, and
// then for as long as it keeps failing.  The only error returned is the context error.
func (client *Client) Send(ctx context.Context, metrics []gokairos.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	buf := client.preparePayload(metrics)
	defer client.putBuffer(buf)

	if err := client.conn.EnsureConnected(ctx); err != nil {
		return err
	}
	for {
		err := client.conn.Write(ctx, buf.Bytes())
		if err == nil {
			atomic.AddUint64(&client.payloadsSent, 1)
			atomic.AddUint64(&client.metricsSent, uint64(len(metrics)))
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		client.logger.WithError(err).WithField("address", client.address).Warn("Connection to kairosdb server died")
		if err := client.conn.Wait(ctx); err != nil {
			return err
		}
		if err := client.conn.EnsureConnected(ctx); err != nil {
			return err
		}
		if !client.resendOnFailure {
			atomic.AddUint64(&client.payloadsDropped, 1)
			return nil
		}
		atomic.AddUint64(&client.resends, 1)
	}
}

// DeepChecks reports the state of the connection.
func (client *Client) DeepChecks() []healthcheck.HealthcheckFunc {
	return []healthcheck.HealthcheckFunc{
		func() (string, healthcheck.HealthyStatus) {
			state := client.conn.State()
			msg := fmt.Sprintf("%s connection to %s is %s", BackendName, client.address, state)
			return msg, healthcheck.HealthyStatus(state == sender.Connected)
		},
	}
}

// RunMetrics reports the client counters on every flush until ctx is done.
func (client *Client) RunMetrics(ctx context.Context) {
	statser := stats.FromContext(ctx).WithTags(stats.Tags{"backend:" + BackendName})
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			client.emitMetrics(statser)
		}
	}
}

func (client *Client) emitMetrics(statser stats.Statser) {
	counters := client.conn.Counters()
	connected := 0.0
	if client.conn.Connected() {
		connected = 1
	}
	statser.Gauge("backend.connected", connected, nil)
	statser.Gauge("backend.connects", float64(counters.Connects), nil)
	statser.Gauge("backend.dial_failures", float64(counters.DialFailures), nil)
	statser.Gauge("backend.write_failures", float64(counters.WriteFailures), nil)
	statser.Gauge("backend.payloads_sent", float64(atomic.LoadUint64(&client.payloadsSent)), nil)
	statser.Gauge("backend.payloads_dropped", float64(atomic.LoadUint64(&client.payloadsDropped)), nil)
	statser.Gauge("backend.resends", float64(atomic.LoadUint64(&client.resends)), nil)
	statser.Gauge("backend.metrics_sent", float64(atomic.LoadUint64(&client.metricsSent)), nil)
}
