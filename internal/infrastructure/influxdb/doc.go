// Package influxdb records kennel telemetry to an InfluxDB v2 server.
//
// The environmental control loop feeds it processed climate samples,
// motion readings, and HVAC transitions. Writes are batched and
// asynchronous; a nil or disconnected client drops points silently so the
// control loop never blocks on the time-series store.
package influxdb
