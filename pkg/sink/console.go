package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/raterudder/vrmapi/pkg/node"
	"github.com/raterudder/vrmapi/pkg/types"
	"github.com/raterudder/vrmapi/pkg/vrm"
)

var statusColors = map[types.Color]*color.Color{
	types.ColorGreen:  color.New(color.FgGreen),
	types.ColorYellow: color.New(color.FgYellow),
	types.ColorOrange: color.New(color.FgYellow, color.Bold),
	types.ColorBlue:   color.New(color.FgBlue),
	types.ColorRed:    color.New(color.FgRed, color.Bold),
}

// Console writes a status line per result and a table for price schedules.
type Console struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

// NewConsole returns a Console writing to w. With printJSON set the raw
// response payload follows the status line.
func NewConsole(w io.Writer, printJSON bool) *Console {
	return &Console{w: w, json: printJSON}
}

func (c *Console) Publish(ctx context.Context, name string, res node.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	text := res.Status.Text
	if col, ok := statusColors[res.Status.Color]; ok {
		text = col.Sprint(text)
	}
	topic := res.Topic
	if topic == "" {
		topic = "-"
	}
	if _, err := fmt.Fprintf(c.w, "%s [%s] %s: %s\n", res.Time.Format("15:04:05"), name, topic, text); err != nil {
		return err
	}

	if c.json && res.Outputs[0] != nil {
		if _, err := fmt.Fprintf(c.w, "%s\n", res.Outputs[0].Payload); err != nil {
			return err
		}
	}

	if out := res.Outputs[1]; out != nil {
		var slots []vrm.PriceSlot
		if err := json.Unmarshal(out.Payload, &slots); err != nil {
			return fmt.Errorf("failed to decode price schedule: %w", err)
		}
		return c.priceTable(slots)
	}
	return nil
}

func (c *Console) priceTable(slots []vrm.PriceSlot) error {
	table := tablewriter.NewWriter(c.w)
	table.Header([]string{"Time", "Buy", "Sell", "Spread"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	data := make([][]string, 0, len(slots))
	for _, s := range slots {
		data = append(data, []string{s.Datetime, price(s.BuyPrice), price(s.SellPrice), price(s.Spread)})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func price(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'f', 4, 64)
}

func (c *Console) Close() error {
	return nil
}
