// Package sink publishes node results to the console, an MQTT broker or
// InfluxDB.
package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/vrmapi/pkg/node"
)

// Publisher receives every result produced by a node.
type Publisher interface {
	Publish(ctx context.Context, name string, res node.Result) error
	Close() error
}

// Multi publishes to every publisher in order.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, name string, res node.Result) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, name, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Configured sets up the publishers named by the sinks flag.
func Configured() Publisher {
	sinks := lflag.String("sinks", "console", "Comma separated sinks to publish results to (available: console, mqtt, influx)")
	consoleJSON := lflag.Bool("console-json", false, "Print the response payload along with the status line")

	mqttCfg := configuredMQTT()
	influxCfg := configuredInflux()

	var p struct{ Multi }
	lflag.Do(func() {
		for _, s := range strings.Split(*sinks, ",") {
			switch strings.TrimSpace(s) {
			case "":
			case "console":
				p.Multi = append(p.Multi, NewConsole(os.Stdout, *consoleJSON))
			case "mqtt":
				m, err := mqttCfg.connect()
				if err != nil {
					panic(fmt.Sprintf("mqtt connect failed: %v", err))
				}
				p.Multi = append(p.Multi, m)
			case "influx":
				p.Multi = append(p.Multi, influxCfg.open())
			default:
				panic(fmt.Sprintf("unknown sink: %s", s))
			}
		}
	})
	return &p
}
