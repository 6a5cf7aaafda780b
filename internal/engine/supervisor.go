package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/blocklist"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/config"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/platform"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/session"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/pkg/models"
)

var (
	ErrProfileRequired  = errors.New("engine: profile id is required")
	ErrOperatorRequired = errors.New("engine: operator email is required")
	ErrMessageRequired  = errors.New("engine: message template is required")
	ErrUnknownKind      = errors.New("engine: unknown message kind")
	ErrMailTooShort     = errors.New("engine: mail body below minimum length")
)

// StartRequest carries everything one worker needs. Operator email is a
// required input; the engine never guesses a default operator identity.
type StartRequest struct {
	SessionID     string
	OperatorEmail string
	ProfileID     string
	Kind          models.MessageKind
	Message       string
	Attachments   []models.Attachment
	Credentials   platform.Credentials
}

// Supervisor owns the profile→worker mapping and enforces at most one live
// worker per (profile, kind).
type Supervisor struct {
	api    API
	blocks *blocklist.Registry
	states *session.Store
	cfg    *config.Store

	mu      sync.Mutex
	workers map[workerKey]*worker

	heartbeat *heartbeatTracker
}

// NewSupervisor wires a Supervisor with its collaborators.
func NewSupervisor(api API, blocks *blocklist.Registry, states *session.Store, cfg *config.Store) *Supervisor {
	s := &Supervisor{
		api:     api,
		blocks:  blocks,
		states:  states,
		cfg:     cfg,
		workers: make(map[workerKey]*worker),
	}
	s.heartbeat = newHeartbeatTracker(s, api, cfg)
	return s
}

// Start creates a worker for (profile, kind) unless one is already live, in
// which case the request is a no-op.
func (s *Supervisor) Start(req StartRequest) error {
	if err := s.validate(req); err != nil {
		return err
	}
	key := workerKey{ProfileID: req.ProfileID, Kind: req.Kind}

	s.mu.Lock()
	if _, exists := s.workers[key]; exists {
		s.mu.Unlock()
		log.Debug().
			Str("profileId", req.ProfileID).
			Str("kind", string(req.Kind)).
			Msg("Worker already live, start ignored")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		key:    key,
		req:    req,
		ctx:    ctx,
		cancel: cancel,
		sup:    s,
		status: StatusProcessing,
	}
	s.workers[key] = w
	// Registered under s.mu so a concurrent deregister cannot stop the
	// heartbeat between this worker appearing and its Track call.
	s.heartbeat.Track(req.ProfileID, req.Credentials)
	s.mu.Unlock()

	go w.run()
	return nil
}

func (s *Supervisor) validate(req StartRequest) error {
	if req.ProfileID == "" {
		return ErrProfileRequired
	}
	if req.OperatorEmail == "" {
		return ErrOperatorRequired
	}
	if !req.Kind.Valid() {
		return ErrUnknownKind
	}
	if req.Message == "" {
		return ErrMessageRequired
	}
	if req.Kind == models.KindMail && len([]rune(req.Message)) < s.cfg.Current().MinMailLength {
		return ErrMailTooShort
	}
	return nil
}

// Stop signals cancellation; the worker deregisters itself after cleanup.
func (s *Supervisor) Stop(profileID string, kind models.MessageKind) bool {
	s.mu.Lock()
	w, ok := s.workers[workerKey{ProfileID: profileID, Kind: kind}]
	s.mu.Unlock()

	if !ok {
		return false
	}
	w.cancel()
	return true
}

// StopAll cancels every live worker.
func (s *Supervisor) StopAll() int {
	s.mu.Lock()
	workers := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	for _, w := range workers {
		w.cancel()
	}
	return len(workers)
}

// Status returns the latest known status for (profile, kind), defaulting to
// Ready when no worker is live.
func (s *Supervisor) Status(profileID string, kind models.MessageKind) string {
	s.mu.Lock()
	w, ok := s.workers[workerKey{ProfileID: profileID, Kind: kind}]
	s.mu.Unlock()

	if !ok {
		return StatusReady
	}
	return w.Status()
}

// ClearBlocks drops the block-list for (profile, kind) and returns the
// number of entries removed. Running workers keep their in-flight cycle;
// only future dedup decisions change.
func (s *Supervisor) ClearBlocks(profileID string, kind models.MessageKind) int {
	return s.blocks.Clear(profileID, kind)
}

// Processing reports whether any kind is live for the profile. Consumed by
// the heartbeat to decide whether to keep pinging.
func (s *Supervisor) Processing(profileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.workers {
		if key.ProfileID == profileID {
			return true
		}
	}
	return false
}

// WorkerCount returns the number of live workers.
func (s *Supervisor) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// deregister removes a finished worker and releases the profile's heartbeat
// when no other kind remains live.
func (s *Supervisor) deregister(key workerKey) {
	s.mu.Lock()
	delete(s.workers, key)
	var stillProcessing bool
	for k := range s.workers {
		if k.ProfileID == key.ProfileID {
			stillProcessing = true
			break
		}
	}
	if !stillProcessing {
		// Stopped under s.mu so a concurrent Start cannot Track against
		// the dying registration and lose its heartbeat.
		s.heartbeat.Stop(key.ProfileID)
	}
	s.mu.Unlock()

	log.Info().
		Str("profileId", key.ProfileID).
		Str("kind", string(key.Kind)).
		Msg("Worker deregistered")
}
