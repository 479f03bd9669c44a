package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/fatih/color"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/raterudder/vrmapi/pkg/node"
	"github.com/raterudder/vrmapi/pkg/types"
	"github.com/raterudder/vrmapi/pkg/vrm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 10, 18, 9, 30, 0, 0, time.UTC)

func priceResult(t *testing.T) node.Result {
	buy, sell := 0.30, 0.10
	spread := buy - sell
	slots := []vrm.PriceSlot{
		{Timestamp: 1760745600000, Datetime: "2025-10-18T00:00:00.000Z", BuyPrice: &buy, SellPrice: &sell, Spread: &spread},
		{Timestamp: 1760746500000, Datetime: "2025-10-18T00:15:00.000Z", BuyPrice: &buy},
	}
	payload, err := json.Marshal(slots)
	require.NoError(t, err)
	return node.Result{
		Topic:    "installations stats",
		Status:   types.Status{Text: "2 price intervals", Color: types.ColorGreen},
		Envelope: &types.Envelope{Success: true, Status: 200},
		Outputs: [2]*node.Output{
			{Topic: "installations stats", Payload: json.RawMessage(`{"success":true}`)},
			{Topic: "price-schedule", Payload: payload, Metadata: &vrm.PriceScheduleMetadata{Count: 2, Currency: "EUR"}},
		},
		Time: testTime,
	}
}

func TestConsole(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	c := NewConsole(&buf, true)
	require.NoError(t, c.Publish(context.Background(), "prices", priceResult(t)))

	out := buf.String()
	assert.Contains(t, out, "09:30:00 [prices] installations stats: 2 price intervals")
	assert.Contains(t, out, `{"success":true}`)
	assert.Contains(t, out, "2025-10-18T00:15:00.000Z")
	assert.Contains(t, out, "0.3000")
	assert.Contains(t, out, "0.2000")
	assert.NoError(t, c.Close())
}

func TestConsoleNoTopic(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	c := NewConsole(&buf, false)
	require.NoError(t, c.Publish(context.Background(), "n", node.Result{
		Status: types.Status{Text: "No API token configured", Color: types.ColorRed},
		Time:   testTime,
	}))
	assert.Equal(t, "09:30:00 [n] -: No API token configured\n", buf.String())
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeMQTT struct {
	msgs         []published
	err          error
	disconnected bool
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.msgs = append(f.msgs, published{topic, qos, retained, payload.([]byte)})
	return &fakeToken{err: f.err}
}

func (f *fakeMQTT) Disconnect(uint) {
	f.disconnected = true
}

func TestMQTT(t *testing.T) {
	client := &fakeMQTT{}
	m := NewMQTT(client, "vrm/", 1)
	require.NoError(t, m.Publish(context.Background(), "prices", priceResult(t)))

	require.Len(t, client.msgs, 3)
	assert.Equal(t, "vrm/prices/installations/stats", client.msgs[0].topic)
	assert.Equal(t, byte(1), client.msgs[0].qos)
	assert.False(t, client.msgs[0].retained)
	assert.JSONEq(t, `{"success":true}`, string(client.msgs[0].payload))
	assert.Equal(t, "vrm/prices/price-schedule", client.msgs[1].topic)
	assert.Equal(t, "vrm/prices/status", client.msgs[2].topic)
	assert.True(t, client.msgs[2].retained)

	var st types.Status
	require.NoError(t, json.Unmarshal(client.msgs[2].payload, &st))
	assert.Equal(t, "2 price intervals", st.Text)

	require.NoError(t, m.Close())
	assert.True(t, client.disconnected)
}

func TestMQTTError(t *testing.T) {
	client := &fakeMQTT{err: errors.New("not connected")}
	m := NewMQTT(client, "vrm", 0)
	err := m.Publish(context.Background(), "n", node.Result{Status: types.Status{Text: "Ok"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vrm/n/status")
}

type fakeWriter struct {
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoint(ctx context.Context, point ...*write.Point) error {
	f.points = append(f.points, point...)
	return f.err
}

func fields(p *write.Point) map[string]interface{} {
	m := map[string]interface{}{}
	for _, f := range p.FieldList() {
		m[f.Key] = f.Value
	}
	return m
}

func TestInfluxPrices(t *testing.T) {
	w := &fakeWriter{}
	i := NewInflux(w)
	require.NoError(t, i.Publish(context.Background(), "prices", priceResult(t)))

	require.Len(t, w.points, 3)
	assert.Equal(t, measurementStatus, w.points[0].Name())
	assert.Equal(t, true, fields(w.points[0])["success"])

	assert.Equal(t, measurementPrices, w.points[1].Name())
	assert.Equal(t, time.UnixMilli(1760745600000), w.points[1].Time())
	f := fields(w.points[1])
	assert.Equal(t, 0.30, f["buy"])
	assert.Equal(t, 0.10, f["sell"])
	assert.InDelta(t, 0.20, f["spread"], 1e-9)

	f = fields(w.points[2])
	assert.Equal(t, 0.30, f["buy"])
	assert.NotContains(t, f, "sell")
	assert.NoError(t, i.Close())
}

func TestInfluxStats(t *testing.T) {
	w := &fakeWriter{}
	i := NewInflux(w)
	res := node.Result{
		Topic: "installations stats",
		Status: types.Status{
			Text:  "bs: 12.3",
			Color: types.ColorGreen,
			Stats: &types.StatsSummary{Totals: json.RawMessage(`{"bs":12.34,"Pc-grid":1.5,"label":"x"}`)},
		},
		Time: testTime,
	}
	require.NoError(t, i.Publish(context.Background(), "stats", res))

	require.Len(t, w.points, 2)
	assert.Equal(t, measurementStats, w.points[1].Name())
	assert.Equal(t, map[string]interface{}{"bs": 12.34, "Pc_grid": 1.5}, fields(w.points[1]))
	assert.Equal(t, testTime, w.points[1].Time())
}

func TestInfluxWriteError(t *testing.T) {
	i := NewInflux(&fakeWriter{err: errors.New("unauthorized")})
	err := i.Publish(context.Background(), "n", node.Result{Time: testTime})
	assert.ErrorContains(t, err, "unauthorized")
}

func TestSanitizeFieldKey(t *testing.T) {
	assert.Equal(t, "Pc_grid", sanitizeFieldKey(" Pc-grid "))
	assert.Equal(t, "field", sanitizeFieldKey("--"))
}

type recordingPublisher struct {
	names  []string
	err    error
	closed bool
}

func (r *recordingPublisher) Publish(ctx context.Context, name string, res node.Result) error {
	r.names = append(r.names, name)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return r.err
}

func TestMulti(t *testing.T) {
	a := &recordingPublisher{err: errors.New("a failed")}
	b := &recordingPublisher{}
	m := Multi{a, b}

	err := m.Publish(context.Background(), "n", node.Result{})
	assert.ErrorContains(t, err, "a failed")
	assert.Equal(t, []string{"n"}, b.names)

	assert.Error(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
