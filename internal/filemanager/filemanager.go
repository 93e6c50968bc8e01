// Package filemanager implements the FileManager (C10): naming,
// splitting, a save thread that drains batches/packets onto a Writer
// through a Converter, sidecar metadata, and offline read-back.
//
// Grounded on original_source/Source/File/FileManager.cpp for the
// save-thread processing order and the resumed sequence counter (see
// SPEC_FULL.md's EXPANDED COMPONENT NOTES); the wait/pop/write loop
// shape otherwise follows the teacher's internal/queue/runner.go
// ioLoop idiom of "check stop, do one unit of work, repeat".
package filemanager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"

	"github.com/fx3dev/fx3stream/internal/constants"
	"github.com/fx3dev/fx3stream/internal/converters"
	"github.com/fx3dev/fx3stream/internal/interfaces"
	"github.com/fx3dev/fx3stream/internal/logging"
	"github.com/fx3dev/fx3stream/internal/ratestats"
	"github.com/fx3dev/fx3stream/internal/writer"
)

// Status reflects the save thread's health, published alongside
// progress events.
type Status int

const (
	StatusIdle Status = iota
	StatusSaving
	StatusError
)

// Config configures a FileManager's naming, splitting, and output
// target.
type Config struct {
	BasePath        string
	Prefix          string
	AutoNaming      bool
	AppendTimestamp bool
	CreateSubfolder bool
	MaxFileSize     uint64
	MaxFileDuration time.Duration
	SaveMetadata    bool
	Options         map[string]string

	Converter converters.Converter // nil => raw passthrough semantics
	Params    converters.Params
	Format    uint8 // pixel format byte (constants.FormatRAW8/10/12), recorded in the sidecar metadata

	NewWriter func() writer.Writer // defaults to AsyncWriter
	Logger    *logging.Logger
	Observer  interfaces.Observer
	OnProgress func(ProgressEvent)
}

// ProgressEvent is published roughly every 200ms while saving.
type ProgressEvent struct {
	Status          Status
	CurrentFileBytes uint64
	TotalBytes      uint64
	FileCount       int
	RateMBPerSec    float64
}

// FileManager is the C10 component. It implements interfaces.DataSink
// so a Processor can fan directly into it.
type FileManager struct {
	cfg Config

	mu               sync.Mutex
	running          bool
	paused           bool
	currentWriter    writer.Writer
	currentPath      string
	currentFileBytes uint64
	currentFileStart time.Time
	fileCount        int
	totalBytes       uint64
	lastProgressAt   time.Time

	stats *ratestats.Stats
	ewma  *ratestats.EWMA

	queue  chan workItem
	stopCh chan struct{}
	done   chan struct{}
}

type workItem struct {
	batch []*interfaces.DataPacket
	single *interfaces.DataPacket
}

// New constructs a FileManager. Call Start before feeding it packets.
func New(cfg Config) *FileManager {
	if cfg.NewWriter == nil {
		cfg.NewWriter = func() writer.Writer { return writer.NewAsyncWriter() }
	}
	return &FileManager{
		cfg:   cfg,
		stats: ratestats.New(),
		ewma:  ratestats.NewEWMA(constants.SaveRateEWMAAlpha),
		queue: make(chan workItem, constants.ReadbackQueueCap),
	}
}

// Start scans base_path for existing split files to resume the
// sequence counter from, then starts the save goroutine.
func (fm *FileManager) Start() error {
	fm.mu.Lock()
	if fm.running {
		fm.mu.Unlock()
		return nil
	}
	fm.fileCount = fm.resumeSequenceCounter()
	fm.running = true
	fm.stopCh = make(chan struct{})
	fm.done = make(chan struct{})
	fm.mu.Unlock()

	go fm.saveLoop()
	return nil
}

// resumeSequenceCounter walks base_path (and its date subfolder, if
// configured for today) counting files that match this session's
// prefix, so a restarted capture continues numbering instead of
// overwriting earlier output.
func (fm *FileManager) resumeSequenceCounter() int {
	dir := BuildDirectory(fm.cfg.BasePath, fm.cfg.CreateSubfolder, time.Now())
	count := 0
	_ = godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			if strings.HasPrefix(filepath.Base(path), fm.cfg.Prefix+"_") {
				count++
			}
			return nil
		},
		ErrorCallback: func(string, error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
	})
	return count
}

// OnPacket implements interfaces.DataSink: a lone packet is enqueued
// for the save thread to write directly as raw bytes, bypassing the
// converter (spec.md §4.10 step 3).
func (fm *FileManager) OnPacket(pkt *interfaces.DataPacket) error {
	return fm.enqueue(workItem{single: pkt})
}

// OnBatch implements interfaces.DataSink: a batch of two or more
// packets is routed through the converter's ConvertBatch; a
// one-packet batch is handed to OnPacket and written as raw bytes.
func (fm *FileManager) OnBatch(batch []*interfaces.DataPacket) error {
	if len(batch) == 1 {
		return fm.OnPacket(batch[0])
	}
	return fm.enqueue(workItem{batch: batch})
}

func (fm *FileManager) enqueue(item workItem) error {
	select {
	case fm.queue <- item:
		return nil
	default:
		return fmt.Errorf("filemanager: save queue full")
	}
}

// StopSaving stops the save thread, flushing queued work first, then
// writes the sidecar metadata.json if configured.
func (fm *FileManager) StopSaving() error {
	fm.mu.Lock()
	if !fm.running {
		fm.mu.Unlock()
		return nil
	}
	fm.running = false
	stopCh := fm.stopCh
	done := fm.done
	fm.mu.Unlock()

	close(stopCh)
	<-done

	fm.mu.Lock()
	if fm.currentWriter != nil {
		_ = fm.currentWriter.Close()
		fm.currentWriter = nil
	}
	fm.mu.Unlock()

	if fm.cfg.SaveMetadata {
		return fm.writeMetadata()
	}
	return nil
}

func (fm *FileManager) saveLoop() {
	defer close(fm.done)
	for {
		// spec.md §4.10 step 1: wait for running ∧ ¬paused ∧ queue
		// non-empty. A paused manager leaves queued work untouched
		// rather than draining it, so a resumed capture picks up
		// exactly where it left off.
		if fm.isPaused() {
			select {
			case <-fm.stopCh:
				fm.drainQueue()
				return
			case <-time.After(constants.PausePollInterval):
			}
			continue
		}

		select {
		case item := <-fm.queue:
			// Pause may have been set while this receive was blocked;
			// hold the item until Resume (or stop) before writing it.
			for fm.isPaused() {
				select {
				case <-fm.stopCh:
					fm.process(item)
					fm.drainQueue()
					return
				case <-time.After(constants.PausePollInterval):
				}
			}
			fm.process(item)
		case <-fm.stopCh:
			fm.drainQueue()
			return
		}
	}
}

func (fm *FileManager) isPaused() bool {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.paused
}

func (fm *FileManager) drainQueue() {
	for {
		select {
		case item := <-fm.queue:
			fm.process(item)
		default:
			return
		}
	}
}

func (fm *FileManager) process(item workItem) {
	var data []byte
	var err error
	forceRaw := false

	if item.batch != nil {
		if fm.cfg.Converter != nil {
			data, err = fm.cfg.Converter.ConvertBatch(item.batch, fm.cfg.Params)
		} else {
			data, err = converters.RawConverter{}.ConvertBatch(item.batch, fm.cfg.Params)
			forceRaw = true
		}
	} else {
		// Single-packet path always bypasses the converter.
		data = item.single.Data
		forceRaw = true
	}

	if err != nil {
		fm.handleWriteFailure(err)
		return
	}

	if writeErr := fm.writeChunk(data, forceRaw); writeErr != nil {
		fm.handleWriteFailure(writeErr)
	}
}

func (fm *FileManager) writeChunk(data []byte, forceRaw bool) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.shouldSplitLocked() {
		if err := fm.rotateLocked(forceRaw); err != nil {
			return err
		}
	}

	start := time.Now()
	ok := fm.currentWriter.Write(data)
	latency := time.Since(start)
	if !ok {
		return errors.Errorf("filemanager: write failed: %s", fm.currentWriter.LastError())
	}

	fm.currentFileBytes += uint64(len(data))
	fm.totalBytes += uint64(len(data))
	fm.stats.AddBytes(uint64(len(data)))

	if fm.cfg.Observer != nil {
		fm.cfg.Observer.ObserveSaveWrite(uint64(len(data)), uint64(latency.Nanoseconds()), true)
	}

	fm.maybePublishProgressLocked()
	return nil
}

// shouldSplitLocked implements spec.md §4.10's should_split predicate.
// Caller must hold fm.mu.
func (fm *FileManager) shouldSplitLocked() bool {
	if fm.currentWriter == nil {
		return true
	}
	if fm.cfg.MaxFileSize > 0 && fm.currentFileBytes >= fm.cfg.MaxFileSize {
		return true
	}
	if fm.cfg.MaxFileDuration > 0 && time.Since(fm.currentFileStart) >= fm.cfg.MaxFileDuration {
		return true
	}
	return false
}

// rotateLocked closes the current writer (if any) and opens the next
// one per the naming policy. Caller must hold fm.mu.
func (fm *FileManager) rotateLocked(forceRaw bool) error {
	if fm.currentWriter != nil {
		_ = fm.currentWriter.Close()
	}

	ext := "raw"
	if !forceRaw && fm.cfg.Converter != nil {
		ext = fm.cfg.Converter.FileExtension()
	}

	now := time.Now()
	dir := BuildDirectory(fm.cfg.BasePath, fm.cfg.CreateSubfolder, now)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "filemanager: create directory")
	}

	fm.fileCount++
	name := BuildFileName(fm.cfg.Prefix, fm.fileCount, fm.cfg.AutoNaming, fm.cfg.AppendTimestamp, ext, now)
	path := filepath.Join(dir, name)

	w := fm.cfg.NewWriter()
	if err := w.Open(path); err != nil {
		return errors.Wrap(err, "filemanager: open output file")
	}

	fm.currentWriter = w
	fm.currentPath = path
	fm.currentFileBytes = 0
	fm.currentFileStart = now
	return nil
}

func (fm *FileManager) handleWriteFailure(err error) {
	if fm.cfg.Logger != nil {
		fm.cfg.Logger.WithError(err).Warn("save write failed")
	}
	fm.mu.Lock()
	if fm.currentWriter != nil {
		_ = fm.currentWriter.Close()
		fm.currentWriter = nil
	}
	fm.mu.Unlock()

	if fm.cfg.OnProgress != nil {
		fm.cfg.OnProgress(ProgressEvent{Status: StatusError})
	}
	time.Sleep(constants.WriteErrorBackoff)
}

// maybePublishProgressLocked recomputes the EWMA rate and publishes a
// progress event at most every 200ms. Caller must hold fm.mu.
func (fm *FileManager) maybePublishProgressLocked() {
	now := time.Now()
	if now.Sub(fm.lastProgressAt) < constants.SaveStatsIntervalMs*time.Millisecond {
		return
	}
	fm.lastProgressAt = now

	rate := fm.ewma.Update(fm.stats.RateMBPerSec())
	if fm.cfg.OnProgress != nil {
		fm.cfg.OnProgress(ProgressEvent{
			Status:           StatusSaving,
			CurrentFileBytes: fm.currentFileBytes,
			TotalBytes:       fm.totalBytes,
			FileCount:        fm.fileCount,
			RateMBPerSec:     rate,
		})
	}
}

// writeMetadata writes the sidecar metadata.json file per spec.md
// §4.10: timestamp, total bytes, file count, format, and the options
// map.
func (fm *FileManager) writeMetadata() error {
	fm.mu.Lock()
	meta := map[string]interface{}{
		"timestamp":  time.Now().Format(time.RFC3339),
		"totalBytes": fm.totalBytes,
		"fileCount":  fm.fileCount,
		"format":     fm.cfg.Format,
		"options":    fm.cfg.Options,
	}
	dir := fm.cfg.BasePath
	fm.mu.Unlock()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "filemanager: marshal metadata")
	}
	return os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644)
}

// Pause/Resume support the running && !paused gate from spec.md
// §4.10 step 1; a paused FileManager still queues new work but writes
// none of it until Resume, and keeps the current file open.
func (fm *FileManager) Pause()  { fm.mu.Lock(); fm.paused = true; fm.mu.Unlock() }
func (fm *FileManager) Resume() { fm.mu.Lock(); fm.paused = false; fm.mu.Unlock() }

// CurrentPath returns the path of the file currently being written,
// or "" if none is open.
func (fm *FileManager) CurrentPath() string {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.currentPath
}

// FileCount returns the number of files opened so far this session
// (including any resumed from a prior run).
func (fm *FileManager) FileCount() int {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.fileCount
}

var _ interfaces.DataSink = (*FileManager)(nil)
