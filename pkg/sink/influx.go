package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/vrmapi/pkg/node"
	"github.com/raterudder/vrmapi/pkg/vrm"
)

// Influx measurements.
const (
	measurementStats  = "vrm_stats"
	measurementPrices = "vrm_prices"
	measurementStatus = "vrm_status"
)

// pointWriter is satisfied by api.WriteAPIBlocking.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx writes stats totals, price schedules and a status point per result.
type Influx struct {
	writer pointWriter
	close  func()
}

// NewInflux returns an Influx sink writing through w.
func NewInflux(w pointWriter) *Influx {
	return &Influx{writer: w}
}

type influxConfig struct {
	url    *string
	token  *string
	org    *string
	bucket *string
}

func configuredInflux() *influxConfig {
	return &influxConfig{
		url:    lflag.String("influx-url", "http://127.0.0.1:8086", "InfluxDB URL"),
		token:  lflag.String("influx-token", "", "InfluxDB token"),
		org:    lflag.String("influx-org", "", "InfluxDB organization"),
		bucket: lflag.String("influx-bucket", "vrm", "InfluxDB bucket"),
	}
}

func (c *influxConfig) open() *Influx {
	client := influxdb2.NewClient(*c.url, *c.token)
	i := NewInflux(client.WriteAPIBlocking(*c.org, *c.bucket))
	i.close = client.Close
	return i
}

func (i *Influx) Publish(ctx context.Context, name string, res node.Result) error {
	points, err := i.points(name, res)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}
	if err := i.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write points: %w", err)
	}
	return nil
}

func (i *Influx) points(name string, res node.Result) ([]*write.Point, error) {
	tags := map[string]string{"node": name}
	if res.Topic != "" {
		tags["topic"] = res.Topic
	}

	status := map[string]interface{}{
		"text":  res.Status.Text,
		"color": string(res.Status.Color),
	}
	if res.Envelope != nil {
		status["success"] = res.Envelope.Success
		status["http_status"] = int64(res.Envelope.Status)
	}
	if w := res.Status.Widget; w != nil && w.Value != nil {
		status["widget_value"] = *w.Value
	}
	points := []*write.Point{write.NewPoint(measurementStatus, tags, status, res.Time)}

	if st := res.Status.Stats; st != nil && len(st.Totals) > 0 {
		var totals map[string]interface{}
		if err := json.Unmarshal(st.Totals, &totals); err == nil {
			fields := make(map[string]interface{}, len(totals))
			for k, v := range totals {
				if f, ok := v.(float64); ok {
					fields[sanitizeFieldKey(k)] = f
				}
			}
			if len(fields) > 0 {
				points = append(points, write.NewPoint(measurementStats, tags, fields, res.Time))
			}
		}
	}

	if out := res.Outputs[1]; out != nil {
		var slots []vrm.PriceSlot
		if err := json.Unmarshal(out.Payload, &slots); err != nil {
			return nil, fmt.Errorf("failed to decode price schedule: %w", err)
		}
		priceTags := map[string]string{"node": name}
		if out.Metadata != nil {
			priceTags["currency"] = out.Metadata.Currency
		}
		for _, s := range slots {
			fields := map[string]interface{}{}
			if s.BuyPrice != nil {
				fields["buy"] = *s.BuyPrice
			}
			if s.SellPrice != nil {
				fields["sell"] = *s.SellPrice
			}
			if s.Spread != nil {
				fields["spread"] = *s.Spread
			}
			if len(fields) == 0 {
				continue
			}
			points = append(points, write.NewPoint(measurementPrices, priceTags, fields, time.UnixMilli(s.Timestamp)))
		}
	}
	return points, nil
}

var fieldKeyRe = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

func sanitizeFieldKey(k string) string {
	k = strings.TrimSpace(k)
	k = fieldKeyRe.ReplaceAllString(k, "_")
	k = strings.Trim(k, "_")
	if k == "" {
		return "field"
	}
	return k
}

func (i *Influx) Close() error {
	if i.close != nil {
		i.close()
	}
	return nil
}
