package vrm

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

const (
	priceIntervalMinutes = 15
	priceCurrency        = "EUR"
)

// PriceSlot is one interval of a Dynamic ESS price schedule.
type PriceSlot struct {
	Timestamp int64    `json:"timestamp"`
	Datetime  string   `json:"datetime"`
	BuyPrice  *float64 `json:"buyPrice"`
	SellPrice *float64 `json:"sellPrice"`
	Spread    *float64 `json:"spread"`
}

type PriceScheduleMetadata struct {
	IntervalMinutes int     `json:"intervalMinutes"`
	Count           int     `json:"count"`
	StartTime       *string `json:"startTime"`
	EndTime         *string `json:"endTime"`
	Currency        string  `json:"currency"`
}

type PriceSchedule struct {
	Slots    []PriceSlot           `json:"payload"`
	Metadata PriceScheduleMetadata `json:"metadata"`
}

// TransformPriceSchedule merges the buy (deGb) and sell (deGs) price series of
// a dynamic_ess stats response into one schedule sorted by time. The series
// may be nested under records. Timestamps are in milliseconds.
func TransformPriceSchedule(body json.RawMessage) (PriceSchedule, error) {
	sched := PriceSchedule{
		Slots: []PriceSlot{},
		Metadata: PriceScheduleMetadata{
			IntervalMinutes: priceIntervalMinutes,
			Currency:        priceCurrency,
		},
	}

	data := body
	if records, ok := field(body, "records"); ok && !isNull(records) {
		data = records
	}
	if !isObject(data) {
		return sched, nil
	}

	var series struct {
		Buy  [][]float64 `json:"deGb"`
		Sell [][]float64 `json:"deGs"`
	}
	if err := json.Unmarshal(data, &series); err != nil {
		return sched, fmt.Errorf("failed to decode price series: %w", err)
	}

	slots := map[int64]*PriceSlot{}
	slot := func(ts int64) *PriceSlot {
		s, ok := slots[ts]
		if !ok {
			s = &PriceSlot{
				Timestamp: ts,
				Datetime:  time.UnixMilli(ts).UTC().Format("2006-01-02T15:04:05.000Z"),
			}
			slots[ts] = s
		}
		return s
	}
	for i, pair := range series.Buy {
		if len(pair) < 2 {
			return sched, fmt.Errorf("buy price %d: expected [timestamp, price]", i)
		}
		price := pair[1]
		slot(int64(pair[0])).BuyPrice = &price
	}
	for i, pair := range series.Sell {
		if len(pair) < 2 {
			return sched, fmt.Errorf("sell price %d: expected [timestamp, price]", i)
		}
		price := pair[1]
		slot(int64(pair[0])).SellPrice = &price
	}

	for _, s := range slots {
		if s.BuyPrice != nil && s.SellPrice != nil && *s.BuyPrice != 0 && *s.SellPrice != 0 {
			spread := *s.BuyPrice - *s.SellPrice
			s.Spread = &spread
		}
		sched.Slots = append(sched.Slots, *s)
	}
	sort.Slice(sched.Slots, func(i, j int) bool {
		return sched.Slots[i].Timestamp < sched.Slots[j].Timestamp
	})

	sched.Metadata.Count = len(sched.Slots)
	if n := len(sched.Slots); n > 0 {
		start, end := sched.Slots[0].Datetime, sched.Slots[n-1].Datetime
		sched.Metadata.StartTime = &start
		sched.Metadata.EndTime = &end
	}
	return sched, nil
}
