// Package climate is the per-kennel environmental control loop.
//
// Sensor telemetry arrives as SenML-like envelopes on kennel-addressed
// topics. For an occupied kennel the loop resolves the dog's comfort band
// (breed ranges, per-dog overrides, or configured defaults), then:
//
//   - humidity drives the humidifier/dehumidifier pair on every sample;
//   - temperature is turned into an apparent temperature (NOAA heat
//     index) and smoothed over a 30-sample window before it drives the
//     heating/cooling pair;
//   - motion only raises agitation alerts.
//
// Actuator transitions are idempotent and alerts are rate-limited per
// kennel and alert type. Each kennel runs as its own actor.
package climate
