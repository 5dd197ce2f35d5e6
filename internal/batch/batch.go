// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package batch implements the Batch Engine (C9): streaming input into
// bounded chunks, dispatching each chunk's probes under a concurrency
// semaphore, and flushing JSONL output at the end of every chunk — a
// buffered queue feeding a bounded worker pool, one chunk at a time.
package batch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/caffix/queue"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/copyleftdev/sentri/internal/probe"
	"github.com/copyleftdev/sentri/internal/ratelimit"
	"github.com/copyleftdev/sentri/internal/record"
)

const (
	// DefaultChunkSize is used when Config.ChunkSize is zero.
	DefaultChunkSize = 50
	// MaxChunkSize bounds Config.ChunkSize.
	MaxChunkSize = 10000
	// DefaultConcurrent is used when Config.Concurrent is zero.
	DefaultConcurrent = 5
	// ShutdownGrace bounds, measured from the start of each chunk, how long
	// runChunk keeps waiting for a concurrency permit once the context is
	// cancelled. Probes already in flight receive the cancelled context and
	// get no separate grace period; runChunk waits for them without a deadline.
	ShutdownGrace = 30 * time.Second
)

// Config controls chunking and concurrency for one Run call.
type Config struct {
	ChunkSize  int
	Concurrent int
}

func (c Config) normalized() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkSize > MaxChunkSize {
		c.ChunkSize = MaxChunkSize
	}
	if c.Concurrent <= 0 {
		c.Concurrent = DefaultConcurrent
	}
	return c
}

// ChunkProgress is the per-chunk diagnostic line emitted after each chunk drains.
type ChunkProgress struct {
	ChunkIndex int
	Processed  int
	Errors     int
	CacheHits  int
	Elapsed    time.Duration
}

// Engine runs the batch pipeline for repeated Run calls against the same
// shared Prober singletons.
type Engine struct {
	Prober   *probe.Prober
	Progress func(ChunkProgress)
}

// Run streams lines from in, skipping blank lines and '#' comments,
// chunks them per cfg, probes each chunk under a bounded concurrency
// semaphore, and writes one JSON object per line to out. It returns the
// aggregate error from any shutdown-path cleanup failures; per-domain
// probe failures are never returned here, only recorded in their Records.
func (e *Engine) Run(ctx context.Context, in io.Reader, out *record.Writer, cfg Config) error {
	cfg = cfg.normalized()

	lineQueue := queue.NewQueue()
	readErrCh := make(chan error, 1)

	go func() {
		defer close(readErrCh)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			lineQueue.Append(line)
		}
		if err := scanner.Err(); err != nil {
			readErrCh <- err
		}
	}()

	var (
		merr       *multierror.Error
		chunkIndex int
		done       bool
	)

	for !done {
		chunk, readerDone := drainChunk(ctx, lineQueue, readErrCh, cfg.ChunkSize)
		if len(chunk) == 0 && readerDone {
			break
		}
		if len(chunk) == 0 {
			continue
		}

		progress := e.runChunk(ctx, chunk, out, cfg.Concurrent, chunkIndex)
		if e.Progress != nil {
			e.Progress(progress)
		}
		chunkIndex++

		if err := out.FlushChunk(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("chunk %d flush: %w", chunkIndex, err))
		}

		if readerDone {
			done = true
		}
		if ctx.Err() != nil {
			done = true
		}
	}

	select {
	case err, ok := <-readErrCh:
		if ok && err != nil {
			merr = multierror.Append(merr, fmt.Errorf("input read: %w", err))
		}
	default:
	}

	return merr.ErrorOrNil()
}

// drainChunk pulls up to size lines off q, or fewer if the reader finished
// first. readerDone is true once the producer goroutine has exited and q is
// empty, or once ctx is done; a chunk that fills up reports false even when
// the producer has already exited.
func drainChunk(ctx context.Context, q queue.Queue, readErrCh <-chan error, size int) (chunk []string, readerDone bool) {
	for len(chunk) < size {
		select {
		case <-q.Signal():
			for len(chunk) < size {
				v, ok := q.Next()
				if !ok {
					break
				}
				chunk = append(chunk, v.(string))
			}
		case _, open := <-readErrCh:
			if !open {
				// Producer finished; drain whatever remains without
				// blocking on another Signal that will never arrive.
				for len(chunk) < size {
					v, ok := q.Next()
					if !ok {
						return chunk, true
					}
					chunk = append(chunk, v.(string))
				}
				return chunk, false
			}
		case <-ctx.Done():
			return chunk, true
		}
	}
	return chunk, false
}

// runChunk probes every domain in chunk concurrently, bounded by
// cfg.Concurrent permits, and writes each Record as it completes.
func (e *Engine) runChunk(ctx context.Context, chunk []string, out *record.Writer, concurrent int, chunkIndex int) ChunkProgress {
	start := time.Now()
	sem := ratelimit.NewConcurrencySemaphore(concurrent)
	e.Prober.ResetCacheHits()

	var (
		wg                  sync.WaitGroup
		processed, errCount int
		mu                  sync.Mutex
	)

	drainCtx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
	defer cancel()

	for _, d := range chunk {
		domain := d
		if err := sem.Acquire(ctx); err != nil {
			// Context cancelled before a permit freed up; give this probe
			// up to the shutdown grace period, then stop waiting on more.
			if acErr := sem.Acquire(drainCtx); acErr != nil {
				break
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release()

			rec := e.Prober.Run(ctx, domain)

			mu.Lock()
			processed++
			if rec.Failed() {
				errCount++
			}
			mu.Unlock()

			_ = out.Write(rec)
		}()
	}

	wg.Wait()

	return ChunkProgress{
		ChunkIndex: chunkIndex,
		Processed:  processed,
		Errors:     errCount,
		CacheHits:  int(e.Prober.CacheHits()),
		Elapsed:    time.Since(start),
	}
}
