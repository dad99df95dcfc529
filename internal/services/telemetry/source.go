// Package telemetry reads the latest value of each sensor channel from an
// external feed. Failures never propagate: a channel that cannot be read
// reports zero.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fastjson"
)

// maxPayload bounds how much of a reply is read per channel.
const maxPayload = 64 << 10

// ErrMissingValue means the reply parsed but held no usable number.
var ErrMissingValue = errors.New("telemetry: no numeric value in payload")

// Source reads one channel.
type Source interface {
	Read(ctx context.Context, channel string) (float64, error)
	Name() string
}

var parserPool fastjson.ParserPool

// ParseValue extracts a reading from a feed reply. Accepted shapes are a bare
// number, a numeric string, an array whose first element is a reading, or an
// object holding the reading under the channel name or "value".
func ParseValue(data []byte, channel string) (float64, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return 0, fmt.Errorf("telemetry: malformed payload: %w", err)
	}
	return extract(v, channel)
}

func extract(v *fastjson.Value, channel string) (float64, error) {
	switch v.Type() {
	case fastjson.TypeNumber:
		return finite(v.Float64())
	case fastjson.TypeString:
		b, err := v.StringBytes()
		if err != nil {
			return 0, err
		}
		return finite(strconv.ParseFloat(strings.TrimSpace(string(b)), 64))
	case fastjson.TypeArray:
		items, err := v.Array()
		if err != nil {
			return 0, err
		}
		if len(items) == 0 {
			return 0, ErrMissingValue
		}
		return extract(items[0], channel)
	case fastjson.TypeObject:
		for _, key := range []string{channel, "value"} {
			if field := v.Get(key); field != nil {
				return extract(field, channel)
			}
		}
		return 0, ErrMissingValue
	default:
		return 0, ErrMissingValue
	}
}

func finite(f float64, err error) (float64, error) {
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrMissingValue
	}
	return f, nil
}

// HTTPSource fetches GET <base>/<channel>.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) Read(ctx context.Context, channel string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+url.PathEscape(channel), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("telemetry: %s answered %d", channel, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return 0, err
	}
	return ParseValue(body, channel)
}

// Requester sends a request and waits for the reply. The messaging service
// implements it over NATS.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// NATSSource asks <prefix>.<channel> for the current value.
type NATSSource struct {
	bus    Requester
	prefix string
}

func NewNATSSource(bus Requester, prefix string) *NATSSource {
	return &NATSSource{bus: bus, prefix: strings.TrimSuffix(prefix, ".")}
}

func (s *NATSSource) Name() string { return "nats" }

func (s *NATSSource) Subject(channel string) string {
	if s.prefix == "" {
		return channel
	}
	return s.prefix + "." + channel
}

func (s *NATSSource) Read(ctx context.Context, channel string) (float64, error) {
	reply, err := s.bus.Request(ctx, s.Subject(channel), nil)
	if err != nil {
		return 0, err
	}
	return ParseValue(reply, channel)
}
