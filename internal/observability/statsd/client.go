// Package statsd emits DogStatsD-style metrics over UDP.
package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sink is the metric surface used by the pipeline, the delivery manager and the queues.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes how to reach the StatsD agent.
type Config struct {
	Enabled     bool
	Address     string
	Prefix      string
	Logger      *slog.Logger
	GlobalTags  map[string]string
	DialTimeout time.Duration
}

// Client writes one datagram per metric. It is safe for concurrent use and
// a nil or disabled Client silently drops everything.
type Client struct {
	prefix     string
	globalTags map[string]string
	logger     *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

var _ Sink = (*Client)(nil)

// NewClient dials cfg.Address unless metrics are disabled or no address is set.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "statsd")
	}

	c := &Client{
		prefix:     sanitizePrefix(cfg.Prefix),
		globalTags: cleanTags(cfg.GlobalTags),
		logger:     logger,
	}

	address := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || address == "" {
		return c, nil
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	c.conn = conn
	return c, nil
}

// Enabled reports whether metrics are being sent.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Count adds value to a counter.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.send(name, strconv.FormatInt(value, 10), "c", tags)
}

// Gauge sets a gauge.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.send(name, formatFloat(value), "g", tags)
}

// Timing records a duration in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	c.send(name, formatFloat(float64(value)/float64(time.Millisecond)), "ms", tags)
}

// Close releases the socket. Later sends are dropped.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) send(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	metric := joinName(c.prefix, normalizeMetricName(name))
	if metric == "" {
		return
	}

	var b strings.Builder
	b.WriteString(metric)
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte('|')
	b.WriteString(kind)
	b.WriteString(formatTags(c.globalTags, tags))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if _, err := c.conn.Write([]byte(b.String())); err != nil {
		c.logger.Debug("statsd write failed", "metric", metric, "error", err)
	}
}

func joinName(prefix, name string) string {
	switch {
	case name == "":
		return ""
	case prefix == "":
		return name
	default:
		return prefix + "." + name
	}
}

func sanitizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), ".")
}

var nameReplacer = strings.NewReplacer(" ", "_", "/", "_", ":", "_", "|", "_")

func normalizeMetricName(name string) string {
	n := nameReplacer.Replace(strings.TrimSpace(name))
	for strings.Contains(n, "..") {
		n = strings.ReplaceAll(n, "..", ".")
	}
	return strings.Trim(n, ".")
}

// formatTags merges global and local tags (local wins) into a sorted |#k:v list.
func formatTags(global, local map[string]string) string {
	merged := cleanTags(global)
	maps.Copy(merged, cleanTags(local))
	if len(merged) == 0 {
		return ""
	}

	keys := slices.Sorted(maps.Keys(merged))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ":" + merged[k]
	}
	return "|#" + strings.Join(parts, ",")
}

func cleanTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if key := strings.TrimSpace(k); key != "" {
			out[key] = strings.TrimSpace(v)
		}
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
