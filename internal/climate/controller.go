package climate

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/iotail/kennel-core/internal/audit"
	"github.com/iotail/kennel-core/internal/catalog"
	"github.com/iotail/kennel-core/internal/infrastructure/config"
	"github.com/iotail/kennel-core/internal/infrastructure/influxdb"
	"github.com/iotail/kennel-core/internal/infrastructure/logging"
	"github.com/iotail/kennel-core/internal/infrastructure/mqtt"
	"github.com/iotail/kennel-core/internal/push"
	"github.com/iotail/kennel-core/internal/reservation"
)

const (
	commandActivate   = "activate"
	commandDeactivate = "deactivate"

	// pushTimeout bounds each alert notification delivery.
	pushTimeout = 5 * time.Second

	// sampleBuffer is the per-kennel inbound sample queue depth.
	sampleBuffer = 16
)

// ReservationSource answers which reservation, if any, actively occupies
// a kennel. Must be safe for concurrent use.
type ReservationSource interface {
	ActiveReservation(kennelID int) (reservation.Reservation, bool)
}

// CatalogReader is the slice of the catalog the control loop consumes
// for comfort profile resolution.
type CatalogReader interface {
	Users(ctx context.Context) ([]catalog.User, error)
	Breeds(ctx context.Context) ([]catalog.Breed, error)
}

// Publisher is the message-bus surface the control loop publishes on.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Deps are the collaborators a Controller needs.
type Deps struct {
	Reservations ReservationSource
	Catalog      CatalogReader
	Bus          Publisher
	Push         push.Sink
	Audit        *audit.Repository
	Telemetry    *influxdb.Client
	Topics       mqtt.Topics
	QoS          byte
	Logger       *logging.Logger
}

// Controller runs the per-kennel environmental control loop.
//
// Each kennel gets its own actor goroutine, spawned on first sensor
// message, since kennels are fully independent. Cross-kennel state is
// limited to the breed/dog snapshots, refreshed on a timer and read
// through a lock.
type Controller struct {
	cfg  config.ClimateConfig
	deps Deps

	mu     sync.Mutex
	actors map[int]*kennelActor

	snapMu sync.RWMutex
	dogs   map[string]catalog.Dog
	breeds map[string]catalog.Breed

	ctx context.Context
}

// New creates a Controller.
func New(cfg config.ClimateConfig, deps Deps) *Controller {
	if deps.Push == nil {
		deps.Push = push.Noop{}
	}
	return &Controller{
		cfg:    cfg,
		deps:   deps,
		actors: make(map[int]*kennelActor),
		dogs:   make(map[string]catalog.Dog),
		breeds: make(map[string]catalog.Breed),
	}
}

// Run refreshes the breed/dog snapshots until ctx is cancelled. Kennel
// actors inherit ctx and stop with it.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	c.refreshSnapshots(ctx)

	ticker := time.NewTicker(time.Duration(c.cfg.RefreshInterval) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshSnapshots(ctx)
		}
	}
}

// HandleSensorMessage routes one sensor publication to its kennel actor.
// Malformed topics and payloads are dropped with a warning; they never
// crash the loop.
func (c *Controller) HandleSensorMessage(topic string, payload []byte) error {
	kennelID, err := mqtt.ParseKennelID(topic)
	if err != nil {
		c.deps.Logger.Warn("dropping malformed sensor topic", "topic", topic, "error", err)
		return nil
	}
	kind := topic[strings.LastIndex(topic, "/")+1:]
	if kind != SensorKindMotion && kind != SensorKindTempHumid {
		c.deps.Logger.Warn("dropping unknown sensor kind", "topic", topic)
		return nil
	}

	readings, err := parseReadings(payload)
	if err != nil {
		c.deps.Logger.Warn("dropping malformed sensor payload", "topic", topic, "error", err)
		return nil
	}

	actor := c.actor(kennelID)
	if actor == nil {
		return nil
	}
	select {
	case actor.samples <- sample{kind: kind, readings: readings, at: time.Now()}:
	default:
		c.deps.Logger.Warn("sensor queue full, dropping sample", "kennel_id", kennelID)
	}
	return nil
}

// actor returns the actor for a kennel, spawning it on first use.
func (c *Controller) actor(kennelID int) *kennelActor {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil || c.ctx.Err() != nil {
		return nil
	}
	a, ok := c.actors[kennelID]
	if !ok {
		a = newKennelActor(c, kennelID)
		c.actors[kennelID] = a
		go a.run(c.ctx)
	}
	return a
}

// refreshSnapshots re-fetches dogs and breeds from the catalog so new
// bookings and breed edits are picked up without restart.
func (c *Controller) refreshSnapshots(ctx context.Context) {
	users, err := c.deps.Catalog.Users(ctx)
	if err != nil {
		c.deps.Logger.Warn("catalog user refresh failed", "error", err)
		return
	}
	breeds, err := c.deps.Catalog.Breeds(ctx)
	if err != nil {
		c.deps.Logger.Warn("catalog breed refresh failed", "error", err)
		return
	}

	dogMap := make(map[string]catalog.Dog)
	for _, u := range users {
		for _, d := range u.Dogs {
			dogMap[d.DogID] = d
		}
	}
	breedMap := make(map[string]catalog.Breed, len(breeds))
	for _, b := range breeds {
		breedMap[b.BreedID] = b
	}

	c.snapMu.Lock()
	c.dogs = dogMap
	c.breeds = breedMap
	c.snapMu.Unlock()
}

// resolveProfile returns the comfort band for a dog. Breed ranges win
// when the dog has a breed; a breedless dog uses its own overrides;
// anything missing falls back to the configured defaults.
func (c *Controller) resolveProfile(dogID string) ComfortProfile {
	defaults := ComfortProfile{
		MinTemperature: c.cfg.Defaults.MinTemperature,
		MaxTemperature: c.cfg.Defaults.MaxTemperature,
		MinHumidity:    c.cfg.Defaults.MinHumidity,
		MaxHumidity:    c.cfg.Defaults.MaxHumidity,
	}

	c.snapMu.RLock()
	defer c.snapMu.RUnlock()

	dog, ok := c.dogs[dogID]
	if !ok {
		return defaults
	}

	if dog.BreedID != "" {
		if breed, ok := c.breeds[dog.BreedID]; ok {
			return profileFromBreed(breed)
		}
		return defaults
	}

	profile := defaults
	if dog.MinIdealTemperature != nil {
		profile.MinTemperature = *dog.MinIdealTemperature
	}
	if dog.MaxIdealTemperature != nil {
		profile.MaxTemperature = *dog.MaxIdealTemperature
	}
	if dog.MinIdealHumidity != nil {
		profile.MinHumidity = *dog.MinIdealHumidity
	}
	if dog.MaxIdealHumidity != nil {
		profile.MaxHumidity = *dog.MaxIdealHumidity
	}
	return profile
}

// sample is one parsed sensor publication.
type sample struct {
	kind     string
	readings map[string]float64
	at       time.Time
}

// kennelActor owns all mutable control state for one kennel: the HVAC
// flags, the apparent-temperature window, and the alert throttle.
type kennelActor struct {
	ctrl     *Controller
	kennelID int
	samples  chan sample

	hvac     hvacState
	window   *Window
	throttle *Throttle
}

func newKennelActor(ctrl *Controller, kennelID int) *kennelActor {
	return &kennelActor{
		ctrl:     ctrl,
		kennelID: kennelID,
		samples:  make(chan sample, sampleBuffer),
		window:   NewWindow(ctrl.cfg.WindowSize),
		throttle: NewThrottle(time.Duration(ctrl.cfg.AlertCooldown) * time.Second),
	}
}

func (a *kennelActor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-a.samples:
			a.process(s)
		}
	}
}

// process handles one sensor sample.
func (a *kennelActor) process(s sample) {
	res, ok := a.ctrl.deps.Reservations.ActiveReservation(a.kennelID)
	if !ok {
		// No dog present; readings are noise.
		return
	}
	profile := a.ctrl.resolveProfile(res.DogID)

	switch s.kind {
	case SensorKindMotion:
		a.processMotion(s, res)
	case SensorKindTempHumid:
		a.processTempHumid(s, res, profile)
	}
}

// processMotion alerts on dog agitation. Motion never touches HVAC.
func (a *kennelActor) processMotion(s sample, res reservation.Reservation) {
	motion, ok := s.readings[readingMotion]
	if !ok {
		return
	}
	a.ctrl.deps.Telemetry.WriteMotion(a.kennelID, motion != 0)
	if motion == 0 {
		return
	}
	a.alert(AlertMotion, "Dog agitated",
		"Your dog is moving restlessly in its kennel.", s, res)
}

// processTempHumid runs the humidity and temperature control paths.
func (a *kennelActor) processTempHumid(s sample, res reservation.Reservation, profile ComfortProfile) {
	humidity, hasHumidity := s.readings[readingHumidity]
	temperature, hasTemperature := s.readings[readingTemperature]
	if !hasHumidity || !hasTemperature {
		a.ctrl.deps.Logger.Warn("incomplete temp_humid sample", "kennel_id", a.kennelID)
		return
	}

	// Humidity acts on every sample, no smoothing.
	switch {
	case humidity > profile.MaxHumidity:
		a.setActuator(mqtt.ActuatorDehumidifier, &a.hvac.dehumidifying, true)
		a.setActuator(mqtt.ActuatorHumidifier, &a.hvac.humidifying, false)
		a.alert(AlertHumidity, "Humidity too high",
			"The humidity in your dog's kennel is above its comfort range.", s, res)
	case humidity < profile.MinHumidity:
		a.setActuator(mqtt.ActuatorHumidifier, &a.hvac.humidifying, true)
		a.setActuator(mqtt.ActuatorDehumidifier, &a.hvac.dehumidifying, false)
		a.alert(AlertHumidity, "Humidity too low",
			"The humidity in your dog's kennel is below its comfort range.", s, res)
	default:
		a.setActuator(mqtt.ActuatorHumidifier, &a.hvac.humidifying, false)
		a.setActuator(mqtt.ActuatorDehumidifier, &a.hvac.dehumidifying, false)
	}

	// Temperature acts on the smoothed apparent temperature only once
	// the window is full.
	apparent := ApparentTemperature(temperature, humidity)
	a.window.Push(apparent)
	a.ctrl.deps.Telemetry.WriteClimateSample(a.kennelID, temperature, humidity, apparent)
	if !a.window.Ready() {
		return
	}

	avg := a.window.Mean()
	switch {
	case avg > profile.MaxTemperature:
		a.setActuator(mqtt.ActuatorCooling, &a.hvac.cooling, true)
		a.setActuator(mqtt.ActuatorHeating, &a.hvac.heating, false)
		a.alert(AlertTemperature, "Temperature too high",
			"The apparent temperature in your dog's kennel is above its comfort range.", s, res)
	case avg < profile.MinTemperature:
		a.setActuator(mqtt.ActuatorHeating, &a.hvac.heating, true)
		a.setActuator(mqtt.ActuatorCooling, &a.hvac.cooling, false)
		a.alert(AlertTemperature, "Temperature too low",
			"The apparent temperature in your dog's kennel is below its comfort range.", s, res)
	default:
		a.setActuator(mqtt.ActuatorHeating, &a.hvac.heating, false)
		a.setActuator(mqtt.ActuatorCooling, &a.hvac.cooling, false)
	}
}

// setActuator drives one HVAC flag to the wanted state. Idempotent: a
// command is only published when the flag actually flips.
func (a *kennelActor) setActuator(actuator string, flag *bool, want bool) {
	if *flag == want {
		return
	}
	*flag = want

	command := commandDeactivate
	state := "off"
	if want {
		command = commandActivate
		state = "on"
	}

	deps := a.ctrl.deps
	topic := deps.Topics.KennelHVAC(a.kennelID, actuator)
	if err := deps.Bus.Publish(topic, mqtt.NewCommand(command), deps.QoS, false); err != nil {
		deps.Logger.Warn("hvac publish failed", "topic", topic, "error", err)
	}
	deps.Telemetry.WriteHVACEvent(a.kennelID, actuator, want)
	if err := deps.Audit.RecordHVACEvent(context.Background(), a.kennelID, actuator, state); err != nil {
		deps.Logger.Warn("hvac audit write failed", "error", err)
	}
	deps.Logger.Info("hvac transition", "kennel_id", a.kennelID, "actuator", actuator, "state", state)
}

// alert publishes a kennel alert and pushes a notification to the owner,
// rate-limited per (kennel, alert type).
func (a *kennelActor) alert(alertType, title, body string, s sample, res reservation.Reservation) {
	if !a.throttle.Allow(a.kennelID, alertType, s.at) {
		return
	}

	deps := a.ctrl.deps
	topic := deps.Topics.KennelAlert(a.kennelID, alertType)
	if err := deps.Bus.Publish(topic, mqtt.NewCommand(title), deps.QoS, false); err != nil {
		deps.Logger.Warn("alert publish failed", "topic", topic, "error", err)
	}

	tokens := make([]string, len(res.FirebaseTokens))
	copy(tokens, res.FirebaseTokens)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		for _, token := range tokens {
			if err := deps.Push.Send(ctx, token, title, body); err != nil {
				deps.Logger.Warn("alert push failed", "error", err)
			}
		}
	}()
}
