package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/pacroyale/viewer/pkg/faults"
	"github.com/pacroyale/viewer/pkg/snapshot"
	"golang.org/x/sync/errgroup"
)

// Resource names one of the four polled views of game state
type Resource string

const (
	ResourceBoard      Resource = "board"
	ResourcePositions  Resource = "positions"
	ResourceTopSession Resource = "top_session_id"
	ResourceWinner     Resource = "winner"
)

// Resources lists every polled resource
var Resources = []Resource{ResourceBoard, ResourcePositions, ResourceTopSession, ResourceWinner}

// GameReader is the read side of the remote game service
type GameReader interface {
	GetMap(ctx context.Context, sessionID int64) ([]string, error)
	GetPositions(ctx context.Context, sessionID int64) ([]string, error)
	GetTopSessionID(ctx context.Context) ([]string, error)
	GetWinner(ctx context.Context, sessionID int64) ([]string, error)
}

// Intervals holds the period of each resource loop
type Intervals struct {
	Board      time.Duration
	Positions  time.Duration
	TopSession time.Duration
	Winner     time.Duration
}

func (iv Intervals) of(r Resource) time.Duration {
	switch r {
	case ResourceBoard:
		return iv.Board
	case ResourcePositions:
		return iv.Positions
	case ResourceTopSession:
		return iv.TopSession
	default:
		return iv.Winner
	}
}

// Update is one decoded snapshot tagged with the scope that fetched it.
// Exactly one payload field is set, matching Resource.
type Update struct {
	Resource  Resource
	Epoch     uint64
	SessionID int64

	Board        *snapshot.Board
	Positions    snapshot.PositionSnapshot
	TopSessionID int64
	Winner       snapshot.Winner
}

// resourceStats counts outcomes per resource
type resourceStats struct {
	Success      int64 `json:"success"`
	Transport    int64 `json:"transport_faults"`
	Decode       int64 `json:"decode_faults"`
	LastSuccess  int64 `json:"last_success_ms"`
	LastDuration int64 `json:"last_duration_ms"`
}

// scope is one running generation of the four loops
type scope struct {
	cancel    context.CancelFunc
	group     *errgroup.Group
	epoch     uint64
	sessionID int64
}

// Poller runs the four resource loops for one session at a time
type Poller struct {
	reader    GameReader
	decoder   snapshot.Decoder
	intervals Intervals
	out       chan<- Update
	log       slog.Logger

	// OnFault, when set, is called from the resource loop after every
	// failed fetch or decode
	OnFault func(r Resource, sessionID int64, err error)

	// Execution control
	mutex   sync.Mutex
	current *scope
	starts  int64
	stops   int64

	statsMutex sync.RWMutex
	stats      map[Resource]*resourceStats
}

// NewPoller creates a poller delivering decoded updates to out
func NewPoller(reader GameReader, decoder snapshot.Decoder, intervals Intervals, out chan<- Update, log slog.Logger) *Poller {
	if log == nil {
		log = slog.Disabled
	}
	stats := make(map[Resource]*resourceStats, len(Resources))
	for _, r := range Resources {
		stats[r] = &resourceStats{}
	}
	return &Poller{
		reader:    reader,
		decoder:   decoder,
		intervals: intervals,
		out:       out,
		log:       log,
		stats:     stats,
	}
}

// Start begins polling sessionID under epoch. A running scope is stopped
// first, so every start is paired with exactly one stop.
func (p *Poller) Start(sessionID int64, epoch uint64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	s := &scope{
		cancel:    cancel,
		group:     group,
		epoch:     epoch,
		sessionID: sessionID,
	}

	for _, r := range Resources {
		resource := r
		group.Go(func() error {
			return RunPeriodic(gctx, p.intervals.of(resource), func(ctx context.Context) {
				p.tick(ctx, s, resource)
			})
		})
	}

	p.current = s
	p.starts++
	p.log.Infof("Polling session %d (epoch %d)", sessionID, epoch)
}

// Stop cancels the running scope and waits for its loops to exit
func (p *Poller) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if p.current == nil {
		return
	}
	s := p.current
	p.current = nil

	s.cancel()
	s.group.Wait()
	p.stops++
	p.log.Infof("Stopped polling session %d (epoch %d)", s.sessionID, s.epoch)
}

// IsRunning reports whether a scope is active
func (p *Poller) IsRunning() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.current != nil
}

// tick performs one fetch-decode-deliver cycle for a resource
func (p *Poller) tick(ctx context.Context, s *scope, r Resource) {
	started := time.Now()
	u, err := p.fetch(ctx, s.sessionID, r)
	if err != nil {
		if ctx.Err() != nil {
			// torn down mid-call, nothing to report
			return
		}
		p.recordFailure(r, err)
		if p.OnFault != nil {
			p.OnFault(r, s.sessionID, err)
		}
		return
	}
	p.recordSuccess(r, time.Since(started))

	u.Resource = r
	u.Epoch = s.epoch
	u.SessionID = s.sessionID

	select {
	case p.out <- u:
	case <-ctx.Done():
	}
}

func (p *Poller) fetch(ctx context.Context, sessionID int64, r Resource) (Update, error) {
	var u Update
	switch r {
	case ResourceBoard:
		raw, err := p.reader.GetMap(ctx, sessionID)
		if err != nil {
			return u, err
		}
		board, err := p.decoder.Board(raw)
		if err != nil {
			return u, err
		}
		u.Board = &board
	case ResourcePositions:
		raw, err := p.reader.GetPositions(ctx, sessionID)
		if err != nil {
			return u, err
		}
		u.Positions, err = p.decoder.Positions(raw)
		if err != nil {
			return u, err
		}
	case ResourceTopSession:
		raw, err := p.reader.GetTopSessionID(ctx)
		if err != nil {
			return u, err
		}
		u.TopSessionID, err = p.decoder.TopSessionID(raw)
		if err != nil {
			return u, err
		}
	case ResourceWinner:
		raw, err := p.reader.GetWinner(ctx, sessionID)
		if err != nil {
			return u, err
		}
		u.Winner, err = p.decoder.Winner(raw)
		if err != nil {
			return u, err
		}
	default:
		return u, errors.New("unknown resource")
	}
	return u, nil
}

func (p *Poller) recordSuccess(r Resource, d time.Duration) {
	p.statsMutex.Lock()
	defer p.statsMutex.Unlock()
	st := p.stats[r]
	st.Success++
	st.LastSuccess = time.Now().UnixMilli()
	st.LastDuration = d.Milliseconds()
}

func (p *Poller) recordFailure(r Resource, err error) {
	p.statsMutex.Lock()
	st := p.stats[r]
	if errors.Is(err, faults.ErrDecode) {
		st.Decode++
	} else {
		st.Transport++
	}
	p.statsMutex.Unlock()

	if errors.Is(err, faults.ErrDecode) {
		p.log.Warnf("Discarding %s snapshot: %v", r, err)
	} else {
		p.log.Warnf("Fetching %s failed, retrying next tick: %v", r, err)
	}
}

// GetStats returns poller statistics
func (p *Poller) GetStats() map[string]interface{} {
	p.mutex.Lock()
	running := p.current != nil
	var epoch uint64
	var sessionID int64
	if running {
		epoch = p.current.epoch
		sessionID = p.current.sessionID
	}
	starts, stops := p.starts, p.stops
	p.mutex.Unlock()

	p.statsMutex.RLock()
	defer p.statsMutex.RUnlock()
	perResource := make(map[string]interface{}, len(p.stats))
	for r, st := range p.stats {
		perResource[string(r)] = *st
	}

	return map[string]interface{}{
		"running":    running,
		"epoch":      epoch,
		"session_id": sessionID,
		"starts":     starts,
		"stops":      stops,
		"resources":  perResource,
	}
}
