// Package journal implements the file-backed event spill used while the
// history store is unreachable. Events are appended as JSON lines to
// size-bounded segment files, replayed in order once the store recovers,
// and the segments removed after a successful replay.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/healthwatch/internal/domain"
)

const (
	segmentPrefix = "segment-"
	filePerm      = 0644
)

// Journal implements domain.EventJournal on the local filesystem.
type Journal struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	mu             sync.Mutex
	currentSegment *os.File
	currentSize    int64
}

// New creates a journal rooted at dir, creating it if needed.
func New(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory %s: %w", dir, err)
	}

	j := &Journal{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "event_journal"),
	}
	if err := j.openLatestSegment(); err != nil {
		return nil, err
	}
	return j, nil
}

// Write appends one event to the current segment, rotating when the
// segment outgrows its size bound. Writes beyond the total disk budget are
// rejected.
func (j *Journal) Write(ctx context.Context, event domain.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event for journal: %w", err)
	}
	data = append(data, '\n')

	if j.currentSegment == nil {
		if err := j.rotate(); err != nil {
			return err
		}
	}

	total, err := j.totalSize()
	if err != nil {
		return fmt.Errorf("could not verify journal disk usage: %w", err)
	}
	if total+int64(len(data)) > j.maxTotalSize {
		return fmt.Errorf("journal disk budget exceeded (%d > %d)", total+int64(len(data)), j.maxTotalSize)
	}

	n, err := j.currentSegment.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write journal segment: %w", err)
	}
	j.currentSize += int64(n)

	if j.currentSize >= j.maxSegmentSize {
		if err := j.rotate(); err != nil {
			j.logger.Error("failed to rotate journal segment", "error", err)
		}
	}
	return nil
}

// Replay reads every segment oldest-first and feeds each event to the
// handler. Unreadable lines are skipped; a handler error aborts the replay.
func (j *Journal) Replay(ctx context.Context, handler func(event domain.Event) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.currentSegment != nil {
		j.currentSegment.Close()
		j.currentSegment = nil
	}

	segments, err := j.sortedSegments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return nil
	}
	j.logger.Info("replaying journal", "segments", len(segments))

	for _, path := range segments {
		if err := j.replaySegment(ctx, path, handler); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) replaySegment(ctx context.Context, path string, handler func(event domain.Event) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segment %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var event domain.Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			j.logger.Warn("skipping unreadable journal line", "error", err)
			continue
		}
		if err := handler(event); err != nil {
			return fmt.Errorf("replay handler failed: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return nil
}

// Truncate removes every segment and opens a fresh one.
func (j *Journal) Truncate(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.currentSegment != nil {
		j.currentSegment.Close()
		j.currentSegment = nil
	}

	segments, err := j.sortedSegments()
	if err != nil {
		return err
	}
	for _, path := range segments {
		if err := os.Remove(path); err != nil {
			j.logger.Error("failed to remove journal segment", "path", path, "error", err)
		}
	}
	return j.openLatestSegment()
}

// Close syncs and closes the current segment.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.currentSegment == nil {
		return nil
	}
	if err := j.currentSegment.Sync(); err != nil {
		j.logger.Error("failed to sync journal segment on close", "error", err)
	}
	err := j.currentSegment.Close()
	j.currentSegment = nil
	return err
}

func (j *Journal) rotate() error {
	if j.currentSegment != nil {
		if err := j.currentSegment.Sync(); err != nil {
			j.logger.Error("failed to sync journal segment before rotating", "error", err)
		}
		if err := j.currentSegment.Close(); err != nil {
			j.logger.Error("failed to close journal segment before rotating", "error", err)
		}
		j.currentSegment = nil
	}

	path := filepath.Join(j.dir, fmt.Sprintf("%s%d.log", segmentPrefix, time.Now().UnixNano()))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create journal segment %s: %w", path, err)
	}
	j.currentSegment = f
	j.currentSize = 0
	return nil
}

func (j *Journal) openLatestSegment() error {
	segments, err := j.sortedSegments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return j.rotate()
	}

	latest := segments[len(segments)-1]
	stat, err := os.Stat(latest)
	if err != nil {
		return fmt.Errorf("failed to stat segment %s: %w", latest, err)
	}
	f, err := os.OpenFile(latest, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open segment %s: %w", latest, err)
	}
	j.currentSegment = f
	j.currentSize = stat.Size()
	return nil
}

func (j *Journal) sortedSegments() ([]string, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), segmentPrefix) {
			continue
		}
		segments = append(segments, filepath.Join(j.dir, entry.Name()))
	}
	sort.Strings(segments)
	return segments, nil
}

func (j *Journal) totalSize() (int64, error) {
	segments, err := j.sortedSegments()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, path := range segments {
		stat, err := os.Stat(path)
		if err != nil {
			continue
		}
		total += stat.Size()
	}
	return total, nil
}
