package sim

import (
	"fmt"
	"time"

	"github.com/pacroyale/viewer/pkg/felt"
	"github.com/pacroyale/viewer/pkg/protocol"
)

// botBase is the first address handed out to bots
const botBase = 0xb0700

// AddBots joins count bot players to a session and returns their addresses
func (s *Service) AddBots(sessionID int64, count int) ([]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	g, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %d does not exist", sessionID)
	}
	var added []string
	for i := 0; i < count; i++ {
		addr := felt.FromInt(int64(botBase + len(g.players)))
		if err := s.addLocked(sessionID, addr); err != nil {
			return added, err
		}
		added = append(added, addr)
	}
	return added, nil
}

// StartBots moves every bot one random step per interval until StopBots
func (s *Service) StartBots(interval time.Duration) {
	s.botMutex.Lock()
	defer s.botMutex.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	s.log.Infof("Starting bots (interval: %v)", interval)
	go s.botLoop(interval, s.stopCh, s.done)
}

// StopBots halts the bot loop and waits for it to exit
func (s *Service) StopBots() {
	s.botMutex.Lock()
	defer s.botMutex.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	<-s.done
	s.log.Infof("Bots stopped")
}

func (s *Service) botLoop(interval time.Duration, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.StepBots()
		case <-stopCh:
			return
		}
	}
}

// StepBots moves each living bot of every running session once
func (s *Service) StepBots() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for id, g := range s.sessions {
		for _, p := range g.players {
			if g.over() {
				break
			}
			if p.dead || p.address == s.caller {
				continue
			}
			dir := protocol.Direction(s.rng.Intn(4))
			if err := s.moveLocked(id, p.address, dir); err != nil {
				s.log.Tracef("Bot %s: %v", p.address, err)
			}
		}
	}
}
