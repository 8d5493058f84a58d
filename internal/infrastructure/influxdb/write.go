package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteClimateSample records one processed temperature/humidity sample.
//
// The write is non-blocking; points are batched and flushed asynchronously.
// Dropped silently when the client is nil or disconnected, matching the
// fire-and-forget telemetry contract: control decisions never depend on
// the time-series store.
func (c *Client) WriteClimateSample(kennelID int, temperature, humidity, apparent float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"climate",
		map[string]string{
			"kennel_id": strconv.Itoa(kennelID),
		},
		map[string]interface{}{
			"temperature_c": temperature,
			"humidity_pct":  humidity,
			"apparent_c":    apparent,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteMotion records a motion sensor reading for a kennel.
func (c *Client) WriteMotion(kennelID int, motion bool) {
	if !c.IsConnected() {
		return
	}

	value := 0
	if motion {
		value = 1
	}

	point := write.NewPoint(
		"motion",
		map[string]string{
			"kennel_id": strconv.Itoa(kennelID),
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteHVACEvent records an actuator transition for a kennel.
func (c *Client) WriteHVACEvent(kennelID int, actuator string, on bool) {
	if !c.IsConnected() {
		return
	}

	value := 0
	if on {
		value = 1
	}

	point := write.NewPoint(
		"hvac",
		map[string]string{
			"kennel_id": strconv.Itoa(kennelID),
			"actuator":  actuator,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
