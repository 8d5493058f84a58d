package climate

import (
	"encoding/json"
	"fmt"

	"github.com/iotail/kennel-core/internal/catalog"
)

// Sensor kinds carried in the sensor topic's last segment.
const (
	SensorKindMotion    = "motion"
	SensorKindTempHumid = "temp_humid"
)

// Reading names inside the SenML envelope.
const (
	readingMotion      = "motion"
	readingTemperature = "temperature"
	readingHumidity    = "humidity"
)

// senMLEntry is one named reading inside a sensor envelope.
type senMLEntry struct {
	Name  string  `json:"n"`
	Unit  string  `json:"u,omitempty"`
	Time  float64 `json:"t,omitempty"`
	Value float64 `json:"v"`
}

// senMLPack is the SenML-like envelope sensor devices publish.
type senMLPack struct {
	BaseName string       `json:"bn,omitempty"`
	Entries  []senMLEntry `json:"e"`
}

// parseReadings decodes a sensor envelope into name -> value.
func parseReadings(payload []byte) (map[string]float64, error) {
	var pack senMLPack
	if err := json.Unmarshal(payload, &pack); err != nil {
		return nil, fmt.Errorf("decoding sensor envelope: %w", err)
	}
	if len(pack.Entries) == 0 {
		return nil, fmt.Errorf("sensor envelope has no readings")
	}
	readings := make(map[string]float64, len(pack.Entries))
	for _, e := range pack.Entries {
		readings[e.Name] = e.Value
	}
	return readings, nil
}

// ComfortProfile is the resolved temperature/humidity comfort band for
// the dog occupying a kennel.
type ComfortProfile struct {
	MinTemperature float64
	MaxTemperature float64
	MinHumidity    float64
	MaxHumidity    float64
}

// profileFromBreed builds a profile from breed ambient ranges.
func profileFromBreed(b catalog.Breed) ComfortProfile {
	return ComfortProfile{
		MinTemperature: b.MinAmbientTemperature,
		MaxTemperature: b.MaxAmbientTemperature,
		MinHumidity:    b.MinAmbientHumidity,
		MaxHumidity:    b.MaxAmbientHumidity,
	}
}

// hvacState tracks the four actuator flags for one kennel. Heating and
// cooling are mutually exclusive, as are humidifying and dehumidifying.
type hvacState struct {
	heating       bool
	cooling       bool
	humidifying   bool
	dehumidifying bool
}
