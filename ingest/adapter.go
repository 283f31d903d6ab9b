package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"guardian/core"
	"guardian/metrics"
	"guardian/util/goroutine"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	xrate "golang.org/x/time/rate"
)

const (
	// DefaultSeenCacheSize bounds the recently-seen event ID cache
	DefaultSeenCacheSize = 4096
	// DefaultNotifyRateLimit caps notification-triggered scans per second
	DefaultNotifyRateLimit = 10
)

// Backend selects how the adapter learns about new spool records
type Backend string

const (
	// BackendWatch uses filesystem notifications plus a fallback re-scan
	BackendWatch Backend = "watch"
	// BackendPoll relies on the fallback re-scan alone
	BackendPoll Backend = "poll"
)

// ErrSourceUnavailable is returned when the spool directory cannot be read.
// The adapter never terminates on it; it flags connectivity and retries at
// the controller-governed interval.
var ErrSourceUnavailable = errors.New("event source unavailable")

// EventSink receives each successfully parsed event. The sink runs on the
// adapter's ingestion goroutine and must not block on subscriber work.
type EventSink func(*core.Event)

// Connectivity is the adapter's staleness signal to consumers. A zero
// LastUpdate means no successful scan has completed yet.
type Connectivity struct {
	Connected  bool      `json:"connected"`
	LastUpdate time.Time `json:"last_update,omitempty"`
}

// AdapterConfig holds the spool adapter settings
type AdapterConfig struct {
	// Dir is the spool directory; it is created if absent and its absence
	// is treated as "currently empty", not an error
	Dir string
	// Backend selects watch or poll triggering
	Backend Backend
	// SeenCacheSize bounds the redelivery-suppression cache
	SeenCacheSize int
	// NotifyRateLimit caps notification-triggered scans per second so a
	// notification storm cannot busy-loop the scanner
	NotifyRateLimit int
}

// Adapter ingests telemetry records from the agent's spool directory.
//
// Two triggers are combined: filesystem notifications (watch backend) scan
// immediately, and a fallback timer re-scans at the interval the rate
// controller hands out, so staleness is bounded even when notifications are
// lost. Processed files are removed after a successful batch; a bounded LRU
// of event IDs suppresses redelivery across overlapping scans.
type Adapter struct {
	cfg    AdapterConfig
	sink   EventSink
	rate   *RateController
	logger *zap.SugaredLogger

	watcher       *fsnotify.Watcher
	seen          *lru.Cache[string, struct{}]
	notifyLimiter *xrate.Limiter

	mu         sync.RWMutex
	started    bool
	connected  bool
	lastUpdate time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewAdapter creates a spool adapter. The backend is fixed at construction;
// tests inject a fake by driving the sink directly instead.
func NewAdapter(cfg AdapterConfig, rate *RateController, sink EventSink, logger *zap.SugaredLogger) (*Adapter, error) {
	if cfg.Dir == "" {
		return nil, errors.New("spool directory must not be empty")
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendWatch
	}
	if cfg.Backend != BackendWatch && cfg.Backend != BackendPoll {
		return nil, fmt.Errorf("unknown adapter backend %q", cfg.Backend)
	}
	if cfg.SeenCacheSize <= 0 {
		cfg.SeenCacheSize = DefaultSeenCacheSize
	}
	if cfg.NotifyRateLimit <= 0 {
		cfg.NotifyRateLimit = DefaultNotifyRateLimit
	}
	if rate == nil {
		return nil, errors.New("rate controller is required")
	}
	if sink == nil {
		return nil, errors.New("event sink is required")
	}

	seen, err := lru.New[string, struct{}](cfg.SeenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create seen cache: %w", err)
	}

	return &Adapter{
		cfg:           cfg,
		sink:          sink,
		rate:          rate,
		logger:        logger,
		seen:          seen,
		notifyLimiter: xrate.NewLimiter(xrate.Limit(cfg.NotifyRateLimit), cfg.NotifyRateLimit),
		stopCh:        make(chan struct{}),
	}, nil
}

// Start begins continuous ingestion. It is idempotent.
func (a *Adapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return nil
	}

	if err := os.MkdirAll(a.cfg.Dir, 0o750); err != nil {
		return fmt.Errorf("failed to create spool directory: %w", err)
	}

	if a.cfg.Backend == BackendWatch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			a.logger.Warnf("Filesystem notifications unavailable, falling back to polling: %v", err)
		} else if err := watcher.Add(a.cfg.Dir); err != nil {
			a.logger.Warnf("Cannot watch spool directory, falling back to polling: %v", err)
			watcher.Close()
		} else {
			a.watcher = watcher
		}
	}

	a.started = true
	a.wg.Add(1)
	go a.run()

	a.logger.Infow("Spool adapter started",
		"dir", a.cfg.Dir,
		"backend", a.cfg.Backend,
		"notifications", a.watcher != nil)
	return nil
}

// Stop halts ingestion. It is idempotent and safe to call concurrently with
// in-flight scans; no goroutines or timers are left behind.
func (a *Adapter) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
	a.wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watcher != nil {
		a.watcher.Close()
		a.watcher = nil
	}
	a.started = false
}

// Connectivity returns the current connectivity flag and the time of the
// last successful scan.
func (a *Adapter) Connectivity() Connectivity {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Connectivity{Connected: a.connected, LastUpdate: a.lastUpdate}
}

// run is the ingestion loop. Fallback re-scans ask the rate controller for
// the next interval before every wait; the notification path bypasses that
// gate but is capped by the notify limiter.
func (a *Adapter) run() {
	defer a.wg.Done()
	defer goroutine.Recover("spool-adapter", a.logger)

	var notifyCh chan fsnotify.Event
	var errCh chan error
	if a.watcher != nil {
		notifyCh = a.watcher.Events
		errCh = a.watcher.Errors
	}

	// Initial scan so consumers see the backlog without waiting a period.
	a.scan()

	timer := time.NewTimer(a.rate.NextInterval())
	defer timer.Stop()

	for {
		select {
		case <-a.stopCh:
			return

		case ev, ok := <-notifyCh:
			if !ok {
				notifyCh = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !isRecordFile(ev.Name) {
				continue
			}
			if !a.notifyLimiter.Allow() {
				// Storm of notifications; the fallback timer will pick
				// the records up.
				continue
			}
			a.scan()

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			a.logger.Warnf("Spool watcher error: %v", err)

		case <-timer.C:
			a.scan()
			timer.Reset(a.rate.NextInterval())
		}
	}
}

// scan ingests one batch from the spool. A malformed record never aborts
// the rest of its batch. The store lock is only taken inside the sink,
// after all file I/O for a record is done.
func (a *Adapter) scan() {
	start := time.Now()
	defer func() {
		metrics.SpoolScanDuration.Observe(time.Since(start).Seconds())
	}()

	entries, err := os.ReadDir(a.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			// Spool vanished: recreate and treat as currently empty.
			if mkErr := os.MkdirAll(a.cfg.Dir, 0o750); mkErr != nil {
				a.setConnected(false)
				a.logger.Errorf("Spool directory missing and cannot be recreated: %v", mkErr)
				return
			}
			a.markScanComplete()
			return
		}
		a.setConnected(false)
		a.logger.Errorf("%v: %v", ErrSourceUnavailable, err)
		return
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isRecordFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	ingested := 0
	for _, name := range names {
		path := filepath.Join(a.cfg.Dir, name)
		n, err := a.ingestFile(path)
		ingested += n
		if err != nil {
			a.logger.Warnf("Failed to read spool file %s: %v", name, err)
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			a.logger.Warnf("Failed to remove processed spool file %s: %v", name, err)
		}
	}

	if ingested > 0 {
		a.rate.RecordIngestion(ingested)
	}
	a.markScanComplete()
}

// ingestFile parses every record line in one spool file, skipping (and
// counting) malformed lines and redelivered event IDs.
func (a *Adapter) ingestFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	ingested := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		event, err := ParseRecord(line)
		if err != nil {
			metrics.ParseFailures.Inc()
			a.logger.Warnf("Skipping malformed record in %s: %v", filepath.Base(path), err)
			continue
		}
		if _, dup := a.seen.Get(event.EventID); dup {
			continue
		}
		a.seen.Add(event.EventID, struct{}{})

		a.sink(event)
		metrics.EventsIngested.WithLabelValues(event.Category.String()).Inc()
		ingested++
	}
	return ingested, scanner.Err()
}

// markScanComplete records a successful pass over the spool
func (a *Adapter) markScanComplete() {
	a.mu.Lock()
	a.connected = true
	a.lastUpdate = time.Now().UTC()
	a.mu.Unlock()
}

func (a *Adapter) setConnected(connected bool) {
	a.mu.Lock()
	a.connected = connected
	a.mu.Unlock()
}

func isRecordFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".json" || ext == ".jsonl"
}

// ReadSpool parses every record currently in dir and hands the events to
// sink, without consuming or deleting anything. One-shot tools use this to
// inspect a live spool that the daemon still owns. Returns the number of
// parsed events and the number of malformed records skipped.
func ReadSpool(dir string, sink EventSink, logger *zap.SugaredLogger) (int, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isRecordFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	parsed, failed := 0, 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warnf("Failed to read spool file %s: %v", name, err)
			continue
		}
		for _, line := range bytes.Split(data, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			event, err := ParseRecord(line)
			if err != nil {
				failed++
				logger.Debugf("Skipping malformed record in %s: %v", name, err)
				continue
			}
			sink(event)
			parsed++
		}
	}
	return parsed, failed, nil
}
