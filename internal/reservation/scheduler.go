package reservation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iotail/kennel-core/internal/audit"
	"github.com/iotail/kennel-core/internal/catalog"
	"github.com/iotail/kennel-core/internal/infrastructure/config"
	"github.com/iotail/kennel-core/internal/infrastructure/logging"
	"github.com/iotail/kennel-core/internal/infrastructure/mqtt"
	"github.com/iotail/kennel-core/internal/push"
)

const (
	// pushTimeout bounds each notification delivery attempt.
	pushTimeout = 5 * time.Second

	// commandActivate and commandDeactivate are the actuator command verbs.
	commandActivate   = "activate"
	commandDeactivate = "deactivate"

	// statusDisinfected is the status message confirming a completed clean.
	statusDisinfected = "disinfected"
)

// Catalog is the slice of the catalog API the scheduler consumes.
type Catalog interface {
	Stores(ctx context.Context) ([]catalog.Store, error)
	User(ctx context.Context, userID string) (*catalog.User, error)
	Book(ctx context.Context, storeID string, kennelID int) error
	Lock(ctx context.Context, storeID string, kennelID int) error
	Free(ctx context.Context, storeID string, kennelID int) error
}

// Publisher is the message-bus surface the scheduler publishes on.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Deps are the collaborators a Scheduler needs.
type Deps struct {
	Catalog Catalog
	Bus     Publisher
	Push    push.Sink
	Store   *SnapshotStore
	Audit   *audit.Repository
	Topics  mqtt.Topics
	QoS     byte
	Logger  *logging.Logger

	// OnEvent, when set, receives every lifecycle transition. It is
	// called from the scheduler's own goroutine and must not block.
	OnEvent func(Event)
}

// Scheduler owns the reservation state machine.
//
// All mutable state (reservations, the kennel mirror, the pending
// disinfection set) belongs to a single actor goroutine started by Run.
// HTTP handlers, the message-bus subscriber, and the timers all enqueue
// work onto one channel the actor drains sequentially, so mutations are
// linearizable without locks.
type Scheduler struct {
	cfg  config.ReservationConfig
	deps Deps

	ops chan func()

	// Actor-owned state. Touched only from the Run goroutine (and from
	// Recover, which runs before Run starts).
	reservations map[string]*Reservation  // by reservation ID
	byKennel     map[int]string           // kennel ID -> reservation ID
	pending      map[int]string           // kennel ID -> store ID, awaiting disinfection
	stores       map[string]catalog.Store // mirror of the catalog

	// active mirrors the active reservations for concurrent readers
	// (the environmental control loop). Guarded by activeMu.
	active   map[int]Reservation
	activeMu sync.RWMutex
}

// New creates a Scheduler. Call Recover before Run to restore persisted
// state and re-assert kennel flags against the catalog.
func New(cfg config.ReservationConfig, deps Deps) *Scheduler {
	if deps.Push == nil {
		deps.Push = push.Noop{}
	}
	return &Scheduler{
		cfg:          cfg,
		deps:         deps,
		ops:          make(chan func(), 64),
		reservations: make(map[string]*Reservation),
		byKennel:     make(map[int]string),
		pending:      make(map[int]string),
		stores:       make(map[string]catalog.Store),
		active:       make(map[int]Reservation),
	}
}

// Run drains the request channel and drives the expiry sweep and the
// catalog mirror refresh. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	sweep := time.NewTicker(time.Duration(s.cfg.SweepInterval) * time.Second)
	defer sweep.Stop()
	refresh := time.NewTicker(time.Duration(s.cfg.RefreshInterval) * time.Second)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case op := <-s.ops:
			op()
		case <-sweep.C:
			s.sweepExpired(time.Now())
		case <-refresh.C:
			s.refreshMirror(ctx)
		}
	}
}

// do runs fn on the actor goroutine and waits for it to finish.
func (s *Scheduler) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case s.ops <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reserve books the smallest free kennel at the store that fits the dog.
func (s *Scheduler) Reserve(ctx context.Context, req ReserveRequest) (*Result, error) {
	var (
		res  *Result
		rerr error
	)
	if err := s.do(ctx, func() { res, rerr = s.reserve(req) }); err != nil {
		return nil, err
	}
	return res, rerr
}

// Unlock handles the walk-up self-service flow: the caller supplies a
// kennel's unlock code at the door and, on a match, the kennel goes
// straight to occupied with an active reservation.
func (s *Scheduler) Unlock(ctx context.Context, req UnlockRequest) (*Result, error) {
	var (
		res  *Result
		rerr error
	)
	if err := s.do(ctx, func() { res, rerr = s.unlock(req) }); err != nil {
		return nil, err
	}
	return res, rerr
}

// Activate turns a booked reservation into an occupied one after
// verifying the unlock code.
func (s *Scheduler) Activate(ctx context.Context, reservationID, code string) error {
	var rerr error
	if err := s.do(ctx, func() { rerr = s.activate(reservationID, code) }); err != nil {
		return err
	}
	return rerr
}

// Cancel removes a reservation. An active reservation leaves its kennel
// pending disinfection rather than freeing it immediately.
func (s *Scheduler) Cancel(ctx context.Context, reservationID string) error {
	var rerr error
	if err := s.do(ctx, func() { rerr = s.cancel(reservationID, audit.EventCancelled) }); err != nil {
		return err
	}
	return rerr
}

// Status returns reservations, optionally filtered by user. An empty
// userID returns all of them.
func (s *Scheduler) Status(ctx context.Context, userID string) ([]Reservation, error) {
	var out []Reservation
	if err := s.do(ctx, func() {
		for _, r := range s.reservations {
			if userID == "" || r.UserID == userID {
				out = append(out, *r)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			return out[i].ReservationTime.Before(out[j].ReservationTime)
		})
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveReservation returns the active reservation occupying a kennel.
// Safe for concurrent use; the environmental control loop calls this on
// every sensor sample.
func (s *Scheduler) ActiveReservation(kennelID int) (Reservation, bool) {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()
	r, ok := s.active[kennelID]
	return r, ok
}

// SetEventObserver attaches the lifecycle event observer after
// construction. The swap happens on the actor goroutine, so it is safe
// while Run is processing requests.
func (s *Scheduler) SetEventObserver(fn func(Event)) {
	s.ops <- func() { s.deps.OnEvent = fn }
}

// HandleStatusMessage consumes kennel status publications. A
// disinfection-complete message frees the pending kennel.
func (s *Scheduler) HandleStatusMessage(topic string, payload []byte) error {
	kennelID, err := mqtt.ParseKennelID(topic)
	if err != nil {
		s.deps.Logger.Warn("dropping malformed status topic", "topic", topic, "error", err)
		return nil
	}
	cmd, err := mqtt.ParseCommand(payload)
	if err != nil {
		s.deps.Logger.Warn("dropping malformed status payload", "topic", topic, "error", err)
		return nil
	}
	if cmd.Message != statusDisinfected {
		return nil
	}

	s.ops <- func() { s.completeDisinfection(kennelID) }
	return nil
}

// Recover restores persisted reservations and re-asserts every kennel's
// booked/occupied flags against the catalog, so a restart never leaves
// catalog state desynchronized from the reservation records.
func (s *Scheduler) Recover(ctx context.Context) error {
	snap, err := s.deps.Store.Load()
	if err != nil {
		return err
	}

	s.refreshMirror(ctx)

	for i := range snap.Reservations {
		r := snap.Reservations[i]
		s.reservations[r.ID] = &r
		s.byKennel[r.KennelID] = r.ID

		if err := s.deps.Catalog.Book(ctx, r.StoreID, r.KennelID); err != nil {
			s.deps.Logger.Error("recovery: re-asserting booked flag failed",
				"reservation_id", r.ID, "kennel_id", r.KennelID, "error", err)
		}
		if r.Active {
			if err := s.deps.Catalog.Lock(ctx, r.StoreID, r.KennelID); err != nil {
				s.deps.Logger.Error("recovery: re-asserting occupied flag failed",
					"reservation_id", r.ID, "kennel_id", r.KennelID, "error", err)
			}
			s.setActive(r)
			s.publishLED(r.KennelID, mqtt.LEDRed, commandActivate)
		} else {
			s.publishLED(r.KennelID, mqtt.LEDYellow, commandActivate)
		}
	}
	for kennelID, storeID := range snap.PendingDisinfection {
		s.pending[kennelID] = storeID
	}

	s.deps.Logger.Info("reservation state recovered",
		"reservations", len(s.reservations), "pending_disinfection", len(s.pending))
	return nil
}

// reserve implements the booking path. Actor-only.
func (s *Scheduler) reserve(req ReserveRequest) (*Result, error) {
	store, ok := s.stores[req.StoreID]
	if !ok {
		return nil, fmt.Errorf("%w: store %s", ErrNotFound, req.StoreID)
	}

	kennel := s.bestFit(store, req.DogSize)
	if kennel == nil {
		return nil, ErrUnavailable
	}

	tokens := s.lookupTokens(req.UserID)

	if err := s.deps.Catalog.Book(context.Background(), req.StoreID, kennel.ID); err != nil {
		s.deps.Logger.Error("catalog book failed", "store_id", req.StoreID,
			"kennel_id", kennel.ID, "error", err)
		return nil, fmt.Errorf("%w: book: %w", ErrExternalService, err)
	}

	now := time.Now()
	res := &Reservation{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		DogID:           req.DogID,
		StoreID:         req.StoreID,
		KennelID:        kennel.ID,
		Active:          false,
		UnlockCode:      kennel.UnlockCode,
		FirebaseTokens:  tokens,
		ReservationTime: now,
	}
	s.reservations[res.ID] = res
	s.byKennel[kennel.ID] = res.ID
	s.markMirror(req.StoreID, kennel.ID, true, false)
	s.persist()

	s.publishLED(kennel.ID, mqtt.LEDYellow, commandActivate)
	s.publishLED(kennel.ID, mqtt.LEDGreen, commandDeactivate)
	s.record(audit.EventReserved, res, "")
	s.emit(audit.EventReserved, res, now)

	return &Result{
		ReservationID: res.ID,
		KennelID:      kennel.ID,
		Timestamp:     float64(now.UnixNano()) / float64(time.Second),
	}, nil
}

// unlock implements the walk-up path. Actor-only.
func (s *Scheduler) unlock(req UnlockRequest) (*Result, error) {
	store, ok := s.stores[req.StoreID]
	if !ok {
		return nil, fmt.Errorf("%w: store %s", ErrNotFound, req.StoreID)
	}

	var kennel *catalog.Kennel
	for i := range store.Kennels {
		if store.Kennels[i].ID == req.KennelID {
			kennel = &store.Kennels[i]
			break
		}
	}
	if kennel == nil {
		return nil, fmt.Errorf("%w: kennel %d", ErrNotFound, req.KennelID)
	}
	if !s.isFree(*kennel) || !kennel.Size.Fits(req.DogSize) {
		return nil, ErrUnavailable
	}
	if req.UnlockCode != kennel.UnlockCode {
		return nil, ErrUnauthorized
	}

	tokens := s.lookupTokens(req.UserID)

	ctx := context.Background()
	if err := s.deps.Catalog.Book(ctx, req.StoreID, kennel.ID); err != nil {
		return nil, fmt.Errorf("%w: book: %w", ErrExternalService, err)
	}
	if err := s.deps.Catalog.Lock(ctx, req.StoreID, kennel.ID); err != nil {
		// Undo the booked flag so the catalog does not hold a phantom booking.
		if ferr := s.deps.Catalog.Free(ctx, req.StoreID, kennel.ID); ferr != nil {
			s.deps.Logger.Error("rollback of booked flag failed",
				"kennel_id", kennel.ID, "error", ferr)
		}
		return nil, fmt.Errorf("%w: lock: %w", ErrExternalService, err)
	}

	now := time.Now()
	res := &Reservation{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		DogID:           req.DogID,
		StoreID:         req.StoreID,
		KennelID:        kennel.ID,
		Active:          true,
		UnlockCode:      kennel.UnlockCode,
		FirebaseTokens:  tokens,
		ReservationTime: now,
		ActivationTime:  &now,
	}
	s.reservations[res.ID] = res
	s.byKennel[kennel.ID] = res.ID
	s.markMirror(req.StoreID, kennel.ID, true, true)
	s.setActive(*res)
	s.persist()

	s.publishLED(kennel.ID, mqtt.LEDRed, commandActivate)
	s.publishLED(kennel.ID, mqtt.LEDGreen, commandDeactivate)
	s.record(audit.EventUnlocked, res, "")
	s.emit(audit.EventUnlocked, res, now)

	return &Result{
		ReservationID: res.ID,
		KennelID:      kennel.ID,
		Timestamp:     float64(now.UnixNano()) / float64(time.Second),
	}, nil
}

// activate implements code-verified activation. Actor-only.
func (s *Scheduler) activate(reservationID, code string) error {
	res, ok := s.reservations[reservationID]
	if !ok {
		return fmt.Errorf("%w: reservation %s", ErrNotFound, reservationID)
	}
	if res.Active {
		return nil
	}
	if code != res.UnlockCode {
		return ErrUnauthorized
	}

	if err := s.deps.Catalog.Lock(context.Background(), res.StoreID, res.KennelID); err != nil {
		return fmt.Errorf("%w: lock: %w", ErrExternalService, err)
	}

	now := time.Now()
	res.Active = true
	res.ActivationTime = &now
	s.markMirror(res.StoreID, res.KennelID, true, true)
	s.setActive(*res)
	s.persist()

	s.publishLED(res.KennelID, mqtt.LEDRed, commandActivate)
	s.publishLED(res.KennelID, mqtt.LEDYellow, commandDeactivate)
	s.record(audit.EventActivated, res, "")
	s.emit(audit.EventActivated, res, now)
	return nil
}

// cancel implements removal. event names the trigger (user cancel or
// expiry). Actor-only.
func (s *Scheduler) cancel(reservationID, event string) error {
	res, ok := s.reservations[reservationID]
	if !ok {
		return fmt.Errorf("%w: reservation %s", ErrNotFound, reservationID)
	}

	if res.Active {
		// The kennel held a dog; it stays unavailable until cleaning is
		// confirmed on the status topic.
		delete(s.reservations, res.ID)
		delete(s.byKennel, res.KennelID)
		s.clearActive(res.KennelID)
		s.pending[res.KennelID] = res.StoreID
		s.persist()

		s.publish(s.deps.Topics.KennelDisinfect(res.KennelID), commandActivate)
		s.publishLED(res.KennelID, mqtt.LEDRed, commandDeactivate)
	} else {
		if err := s.deps.Catalog.Free(context.Background(), res.StoreID, res.KennelID); err != nil {
			return fmt.Errorf("%w: free: %w", ErrExternalService, err)
		}
		delete(s.reservations, res.ID)
		delete(s.byKennel, res.KennelID)
		s.markMirror(res.StoreID, res.KennelID, false, false)
		s.persist()

		s.publishLED(res.KennelID, mqtt.LEDYellow, commandDeactivate)
		s.publishLED(res.KennelID, mqtt.LEDGreen, commandActivate)
	}

	s.record(event, res, "")
	s.emit(event, res, time.Now())
	return nil
}

// completeDisinfection frees a kennel after its cleaning is confirmed.
// Actor-only.
func (s *Scheduler) completeDisinfection(kennelID int) {
	storeID, ok := s.pending[kennelID]
	if !ok {
		return
	}

	if err := s.deps.Catalog.Free(context.Background(), storeID, kennelID); err != nil {
		// Keep the kennel pending; the next disinfection-complete
		// message retries the free.
		s.deps.Logger.Error("catalog free after disinfection failed",
			"kennel_id", kennelID, "error", err)
		return
	}

	delete(s.pending, kennelID)
	s.markMirror(storeID, kennelID, false, false)
	s.persist()

	s.publishLED(kennelID, mqtt.LEDGreen, commandActivate)
	s.record(audit.EventDisinfected, &Reservation{StoreID: storeID, KennelID: kennelID}, "")
	if s.deps.OnEvent != nil {
		s.deps.OnEvent(Event{
			Type:      audit.EventDisinfected,
			StoreID:   storeID,
			KennelID:  kennelID,
			Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		})
	}
	s.deps.Logger.Info("kennel disinfected and freed", "kennel_id", kennelID)
}

// sweepExpired cancels stale bookings and sends one-shot reminders.
// Actor-only.
func (s *Scheduler) sweepExpired(now time.Time) {
	expiry := time.Duration(s.cfg.ExpiryAfter) * time.Second
	remind := time.Duration(s.cfg.RemindAfter) * time.Second

	var expired []*Reservation
	reminded := false
	for _, r := range s.reservations {
		if r.Active {
			continue
		}
		age := r.Age(now)
		switch {
		case age > expiry:
			expired = append(expired, r)
		case age >= remind && !r.Reminded:
			r.Reminded = true
			reminded = true
			s.notify(r, "Reservation expiring soon",
				"Your kennel reservation expires in 5 minutes. Activate it or it will be cancelled.")
			s.record(audit.EventReminded, r, "")
		}
	}
	if reminded {
		s.persist()
	}

	for _, r := range expired {
		if err := s.cancel(r.ID, audit.EventExpired); err != nil {
			s.deps.Logger.Error("expiry cancellation failed",
				"reservation_id", r.ID, "error", err)
			continue
		}
		s.notify(r, "Reservation expired",
			"Your kennel reservation was cancelled because it was never activated.")
	}
}

// refreshMirror re-fetches the store/kennel catalog. Pre-existing
// reservations keep their kennels marked locally even when the catalog
// lags behind.
func (s *Scheduler) refreshMirror(ctx context.Context) {
	stores, err := s.deps.Catalog.Stores(ctx)
	if err != nil {
		s.deps.Logger.Warn("catalog store refresh failed", "error", err)
		return
	}

	mirror := make(map[string]catalog.Store, len(stores))
	for _, st := range stores {
		for i := range st.Kennels {
			k := &st.Kennels[i]
			if _, reserved := s.byKennel[k.ID]; reserved {
				k.Booked = true
			}
		}
		mirror[st.StoreID] = st
	}
	s.stores = mirror
}

// bestFit returns the smallest free kennel at the store that fits the
// dog, or nil when none does.
func (s *Scheduler) bestFit(store catalog.Store, dogSize catalog.KennelSize) *catalog.Kennel {
	kennels := make([]catalog.Kennel, len(store.Kennels))
	copy(kennels, store.Kennels)
	sort.Slice(kennels, func(i, j int) bool {
		if kennels[i].Size.Rank() != kennels[j].Size.Rank() {
			return kennels[i].Size.Rank() < kennels[j].Size.Rank()
		}
		return kennels[i].ID < kennels[j].ID
	})

	for i := range kennels {
		k := kennels[i]
		if k.Size.Fits(dogSize) && s.isFree(k) {
			return &k
		}
	}
	return nil
}

// isFree reports whether a kennel can take a new reservation.
func (s *Scheduler) isFree(k catalog.Kennel) bool {
	if k.Booked || k.Occupied {
		return false
	}
	if _, reserved := s.byKennel[k.ID]; reserved {
		return false
	}
	if _, cleaning := s.pending[k.ID]; cleaning {
		return false
	}
	return true
}

// lookupTokens snapshots the user's notification tokens. A catalog
// outage degrades to an empty set rather than failing the booking.
func (s *Scheduler) lookupTokens(userID string) []string {
	user, err := s.deps.Catalog.User(context.Background(), userID)
	if err != nil {
		s.deps.Logger.Warn("user token lookup failed", "user_id", userID, "error", err)
		return nil
	}
	return user.FirebaseTokens
}

// markMirror updates the local kennel flags so availability decisions
// between refreshes see our own mutations.
func (s *Scheduler) markMirror(storeID string, kennelID int, booked, occupied bool) {
	store, ok := s.stores[storeID]
	if !ok {
		return
	}
	for i := range store.Kennels {
		if store.Kennels[i].ID == kennelID {
			store.Kennels[i].Booked = booked
			store.Kennels[i].Occupied = occupied
			return
		}
	}
}

// persist writes the full reservation collection. The in-memory state is
// authoritative; a failed write is logged and retried on the next
// mutation rather than aborting the transition.
func (s *Scheduler) persist() {
	snap := &snapshot{
		Reservations:        make([]Reservation, 0, len(s.reservations)),
		PendingDisinfection: make(map[int]string, len(s.pending)),
	}
	for _, r := range s.reservations {
		snap.Reservations = append(snap.Reservations, *r)
	}
	sort.Slice(snap.Reservations, func(i, j int) bool {
		return snap.Reservations[i].ID < snap.Reservations[j].ID
	})
	for k, v := range s.pending {
		snap.PendingDisinfection[k] = v
	}

	if err := s.deps.Store.Save(snap); err != nil {
		s.deps.Logger.Error("reservation snapshot write failed", "error", err)
	}
}

// setActive publishes an active reservation to the concurrent mirror.
func (s *Scheduler) setActive(r Reservation) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	s.active[r.KennelID] = r
}

// clearActive removes a kennel from the concurrent mirror.
func (s *Scheduler) clearActive(kennelID int) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	delete(s.active, kennelID)
}

// notify fans a push notification out to every token on the reservation.
// Delivery failures are logged and swallowed.
func (s *Scheduler) notify(r *Reservation, title, body string) {
	tokens := make([]string, len(r.FirebaseTokens))
	copy(tokens, r.FirebaseTokens)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		for _, token := range tokens {
			if err := s.deps.Push.Send(ctx, token, title, body); err != nil {
				s.deps.Logger.Warn("push delivery failed", "error", err)
			}
		}
	}()
}

// publishLED sends one LED command for a kennel.
func (s *Scheduler) publishLED(kennelID int, colour, command string) {
	s.publish(s.deps.Topics.KennelLED(kennelID, colour), command)
}

// publish sends one command payload, logging failures.
func (s *Scheduler) publish(topic, command string) {
	if err := s.deps.Bus.Publish(topic, mqtt.NewCommand(command), s.deps.QoS, false); err != nil {
		s.deps.Logger.Warn("bus publish failed", "topic", topic, "error", err)
	}
}

// record appends an audit event, logging failures.
func (s *Scheduler) record(event string, r *Reservation, detail string) {
	err := s.deps.Audit.RecordReservationEvent(
		context.Background(), event, r.ID, r.StoreID, r.KennelID, detail)
	if err != nil {
		s.deps.Logger.Warn("audit write failed", "event", event, "error", err)
	}
}

// emit forwards a lifecycle event to the observer, when one is attached.
func (s *Scheduler) emit(event string, r *Reservation, at time.Time) {
	if s.deps.OnEvent == nil {
		return
	}
	s.deps.OnEvent(Event{
		Type:          event,
		ReservationID: r.ID,
		StoreID:       r.StoreID,
		KennelID:      r.KennelID,
		Timestamp:     float64(at.UnixNano()) / float64(time.Second),
	})
}
