package proxy

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/bleproxy/internal/backend"
	"github.com/srg/bleproxy/internal/groutine"
	"github.com/srg/bleproxy/internal/protocol"
)

// Scanner drives the backend scan loop and converts scan events into
// advertisement records, drawn from acquire so sent records are recycled.
// State transitions are reported through onState so subscribed clients can
// follow the scanner lifecycle.
type Scanner struct {
	backend         backend.Backend
	logger          *logrus.Entry
	acquire         func() *Advertisement
	onAdvertisement func(*Advertisement)
	onState         func(state, mode uint32)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	active bool
	state  uint32
}

func NewScanner(b backend.Backend, acquire func() *Advertisement, onAdvertisement func(*Advertisement), onState func(state, mode uint32), logger *logrus.Logger) *Scanner {
	return &Scanner{
		backend:         b,
		logger:          logger.WithField("component", "scanner"),
		acquire:         acquire,
		onAdvertisement: onAdvertisement,
		onState:         onState,
		state:           protocol.ScannerStateIdle,
	}
}

// Start launches the scan loop. Restarting while running is a no-op unless
// the mode changed, in which case the loop is restarted in the new mode.
func (s *Scanner) Start(active bool) {
	s.mu.Lock()
	if s.cancel != nil {
		if s.active == active {
			s.mu.Unlock()
			return
		}
		s.stopLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.active = active
	s.setStateLocked(protocol.ScannerStateStarting)
	s.mu.Unlock()

	s.logger.WithField("active", active).Info("Starting BLE scan")

	groutine.Go(ctx, "ble-scan", func(ctx context.Context) {
		defer close(done)

		s.mu.Lock()
		s.setStateLocked(protocol.ScannerStateRunning)
		s.mu.Unlock()

		err := s.backend.Scan(ctx, active, s.handleEvent)

		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.logger.WithError(err).Error("BLE scan failed")
			s.setStateLocked(protocol.ScannerStateFailed)
			return
		}
		s.setStateLocked(protocol.ScannerStateIdle)
	})
}

// Stop cancels the scan loop and waits for it to exit.
func (s *Scanner) Stop() {
	s.mu.Lock()
	done := s.done
	s.stopLocked()
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	s.logger.Info("BLE scan stopped")
}

func (s *Scanner) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// State returns the current lifecycle state and scan mode in wire encoding.
func (s *Scanner) State() (state, mode uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mode = protocol.ScannerModePassive
	if s.active {
		mode = protocol.ScannerModeActive
	}
	return s.state, mode
}

func (s *Scanner) setStateLocked(state uint32) {
	if s.state == state {
		return
	}
	s.state = state
	mode := protocol.ScannerModePassive
	if s.active {
		mode = protocol.ScannerModeActive
	}
	// Invoked under s.mu: the callback must not call back into the scanner.
	if s.onState != nil {
		s.onState(state, mode)
	}
}

func (s *Scanner) handleEvent(ev backend.ScanEvent) {
	adv := s.acquire()
	if err := adv.populate(ev); err != nil {
		s.logger.WithError(err).WithField("address", ev.Address).Debug("Dropping malformed scan event")
		return
	}
	s.onAdvertisement(adv)
}
