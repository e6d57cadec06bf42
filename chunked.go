package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
)

// Chunks below this size aren't worth a separate connection; the plan
// collapses toward fewer chunks instead.
const minChunkSize = 1 << 20

// planChunks partitions [0, totalSize) into at most n contiguous inclusive
// ranges of equal size, with the last range absorbing the remainder. The
// result always covers the full span with no gaps or overlaps.
func planChunks(totalSize int64, n int) []ChunkRange {
	if n < 1 {
		n = 1
	}
	if totalSize < int64(n)*minChunkSize {
		n = int(totalSize / minChunkSize)
		if n < 1 {
			n = 1
		}
	}
	chunkSize := totalSize / int64(n)
	chunks := make([]ChunkRange, 0, n)
	var currentPosition int64
	for i := range n {
		startByte := currentPosition
		endByte := startByte + chunkSize - 1
		if i == n-1 || endByte >= totalSize {
			endByte = totalSize - 1
		}
		if endByte >= startByte {
			chunks = append(chunks, ChunkRange{ID: i, Start: startByte, End: endByte})
		}
		currentPosition = endByte + 1
	}
	return chunks
}

// downloadChunked downloads the task in concurrent byte ranges and merges the
// parts. The task's TotalSize must already be known and the server must have
// advertised range support; the facade verifies both before choosing this
// path.
func (c *Client) downloadChunked(ctx context.Context, task *DownloadTask, concurrency int, tr *tracker) error {
	log := GetLogger("chunked").With().Str("task", task.ID).Logger()
	if err := os.MkdirAll(filepath.Dir(task.Dest), 0755); err != nil {
		return newError(KindFatal, 0, "creating output directory", err)
	}
	task.Chunks = planChunks(task.TotalSize, concurrency)
	tr.setTotal(task.TotalSize)
	tr.setPhase(PhaseTransferring)
	log.Debug().Int("chunks", len(task.Chunks)).Int64("totalSize", task.TotalSize).Msg("Starting chunked download")

	// Bounded worker pool: workers claim pending chunks until none remain.
	// A chunk's failure does not abort its siblings; in-flight work is
	// allowed to finish so completed ranges aren't wasted on a retry that
	// may never come.
	jobCh := make(chan *ChunkRange)
	workers := min(concurrency, len(task.Chunks))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range jobCh {
				c.downloadChunk(ctx, task, chunk, tr)
			}
		}()
	}
	for i := range task.Chunks {
		jobCh <- &task.Chunks[i]
	}
	close(jobCh)
	wg.Wait()

	if ctx.Err() != nil {
		removeParts(task)
		return newError(KindCancelled, 0, "download cancelled", ctx.Err())
	}
	var failed []int
	for i := range task.Chunks {
		if task.Chunks[i].Status != ChunkDone {
			failed = append(failed, task.Chunks[i].ID)
		}
	}
	if len(failed) > 0 {
		removeParts(task)
		return newError(KindFatal, 0, fmt.Sprintf("download incomplete: %d chunks failed: %v", len(failed), failed), nil)
	}

	tr.setPhase(PhaseMerging)
	if err := c.assembleParts(task); err != nil {
		removeParts(task)
		return err
	}
	return nil
}

// downloadChunk fetches one byte range into its part file, retrying
// interrupted transfers per the client's retry policy. A part file left over
// from an earlier run is resumed rather than refetched.
func (c *Client) downloadChunk(ctx context.Context, task *DownloadTask, chunk *ChunkRange, tr *tracker) {
	log := GetLogger("chunk").With().Str("task", task.ID).Int("chunkId", chunk.ID).Logger()
	chunk.Status = ChunkInFlight
	partName := partPath(task.Dest, chunk.ID)
	expectedSize := chunk.Length()

	resumeOffset := int64(0)
	if fileInfo, err := os.Stat(partName); err == nil {
		resumeOffset = fileInfo.Size()
		switch {
		case resumeOffset == expectedSize:
			log.Debug().Str("file", filepath.Base(partName)).Msg("Chunk already downloaded, skipping")
			chunk.BytesWritten = expectedSize
			chunk.Status = ChunkDone
			tr.add(expectedSize)
			return
		case resumeOffset > expectedSize:
			log.Debug().Int64("size", resumeOffset).Int64("expected", expectedSize).Msg("Part file larger than expected, redownloading")
			os.Remove(partName)
			resumeOffset = 0
		default:
			log.Debug().Int64("size", resumeOffset).Int64("total", expectedSize).Msg("Resuming incomplete chunk")
		}
	}

	policy := c.cfg.Retry
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, policy.NextDelay(attempt-1)); err != nil {
				break
			}
			// Re-stat: a failed write can leave the file short of what we
			// counted. Roll the difference out of the progress tracker and
			// restart the chunk clean.
			resumeOffset = 0
			if fileInfo, err := os.Stat(partName); err == nil {
				resumeOffset = fileInfo.Size()
			}
			if resumeOffset != chunk.BytesWritten {
				log.Debug().Int64("fileSize", resumeOffset).Int64("counted", chunk.BytesWritten).Msg("Resetting chunk download")
				os.Remove(partName)
				tr.add(-chunk.BytesWritten)
				chunk.BytesWritten = 0
				resumeOffset = 0
			}
		}
		err := c.fetchChunkOnce(ctx, task, chunk, partName, tr, resumeOffset)
		if err == nil {
			chunk.Status = ChunkDone
			return
		}
		lastErr = err
		if ctx.Err() != nil || KindOf(err) == KindCancelled || KindOf(err) == KindClientError {
			break
		}
		log.Debug().Err(err).Int("attempt", attempt).Msg("Error downloading chunk")
	}
	log.Debug().Err(lastErr).Msg("Chunk failed")
	chunk.Status = ChunkFailed
}

// fetchChunkOnce issues a single ranged GET for the remainder of the chunk
// and appends it to the part file.
func (c *Client) fetchChunkOnce(ctx context.Context, task *DownloadTask, chunk *ChunkRange, partName string, tr *tracker, resumeOffset int64) error {
	flag := os.O_WRONLY | os.O_CREATE
	if resumeOffset > 0 {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	partFile, err := os.OpenFile(partName, flag, 0644)
	if err != nil {
		return newError(KindFatal, 0, "opening part file", err)
	}
	defer partFile.Close()

	startByte := chunk.Start + resumeOffset
	spec := c.newSpec(http.MethodGet, task.URL)
	spec.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", startByte, chunk.End))
	resp, err := c.exec.execute(ctx, spec)
	if err != nil {
		return err
	}
	defer resp.Close()
	if resp.StatusCode != http.StatusPartialContent {
		// The probe said ranges were supported but this response disagrees.
		return newError(KindFatal, resp.StatusCode, "server ignored range request", ErrRangeNotSupported)
	}
	if resp.Header.Get("Content-Range") == "" {
		return newError(KindFatal, resp.StatusCode, "missing Content-Range header", nil)
	}

	if resumeOffset > 0 && chunk.BytesWritten != resumeOffset {
		tr.add(resumeOffset - chunk.BytesWritten)
		chunk.BytesWritten = resumeOffset
	}
	remaining := chunk.End - startByte + 1
	buffer := make([]byte, bufferSize)
	var newBytes int64
	for {
		bytesRead, err := resp.Body.Read(buffer)
		if bytesRead > 0 {
			if _, writeErr := partFile.Write(buffer[:bytesRead]); writeErr != nil {
				return writeErr
			}
			newBytes += int64(bytesRead)
			chunk.BytesWritten += int64(bytesRead)
			tr.add(int64(bytesRead))
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	if newBytes != remaining {
		return fmt.Errorf("size mismatch: expected %d remaining bytes, got %d", remaining, newBytes)
	}
	if chunk.BytesWritten != chunk.Length() {
		return fmt.Errorf("total size mismatch: expected %d bytes, got %d", chunk.Length(), chunk.BytesWritten)
	}
	return nil
}

// assembleParts concatenates part files into the destination in range order
// and deletes them. Order comes from chunk start offsets, not completion
// order.
func (c *Client) assembleParts(task *DownloadTask) error {
	destFile, err := os.Create(task.Dest)
	if err != nil {
		return newError(KindFatal, 0, "creating destination file", err)
	}
	defer destFile.Close()

	var totalWritten int64
	for i := range task.Chunks {
		chunk := &task.Chunks[i]
		partName := partPath(task.Dest, chunk.ID)
		partFile, err := os.Open(partName)
		if err != nil {
			return newError(KindFatal, 0, fmt.Sprintf("opening part file %s", partName), err)
		}
		written, err := io.Copy(destFile, partFile)
		partFile.Close()
		if err != nil {
			return newError(KindFatal, 0, "copying chunk data", err)
		}
		if written != chunk.Length() {
			return newError(KindFatal, 0,
				fmt.Sprintf("wrote %d bytes but chunk %d covers %d", written, chunk.ID, chunk.Length()), nil)
		}
		totalWritten += written
	}
	if totalWritten != task.TotalSize {
		return newError(KindFatal, 0,
			fmt.Sprintf("total written bytes (%d) doesn't match expected file size (%d)", totalWritten, task.TotalSize),
			errors.New("incomplete assembly"))
	}
	removeParts(task)
	return nil
}

func partPath(dest string, chunkID int) string {
	return fmt.Sprintf("%s.part%d", dest, chunkID)
}

// removeParts deletes every part file of the task. Called on success,
// permanent failure, and cancellation; part files never survive an orderly
// completion.
func removeParts(task *DownloadTask) {
	for i := range task.Chunks {
		os.Remove(partPath(task.Dest, task.Chunks[i].ID))
	}
}
