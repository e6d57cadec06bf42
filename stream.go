package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Copy buffer for stream and chunk writes. A progress event follows every
// buffer written.
const bufferSize = 64 * 1024

// downloadStream downloads the task's URL to its destination as one HTTP
// stream, resuming from whatever partial file is already on disk. On
// interruption the destination keeps the bytes written so far, so a second
// call picks up where this one stopped.
func (c *Client) downloadStream(ctx context.Context, task *DownloadTask, tr *tracker) error {
	log := GetLogger("stream").With().Str("task", task.ID).Logger()
	if err := os.MkdirAll(filepath.Dir(task.Dest), 0755); err != nil {
		return newError(KindFatal, 0, "creating output directory", err)
	}

	var resumeOffset int64
	if fileInfo, err := os.Stat(task.Dest); err == nil {
		resumeOffset = fileInfo.Size()
	}
	task.ResumeOffset = resumeOffset

	spec := c.newSpec(http.MethodGet, task.URL)
	if resumeOffset > 0 {
		spec.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeOffset))
		log.Debug().Int64("resumeOffset", resumeOffset).Msg("Setting Range header for resume")
	}
	resp, err := c.exec.execute(ctx, spec)
	if err != nil {
		return err
	}
	defer resp.Close()

	fileMode := os.O_CREATE | os.O_WRONLY
	if resumeOffset > 0 {
		if resp.StatusCode == http.StatusPartialContent {
			fileMode |= os.O_APPEND
		} else {
			// Server ignored the range: restart from zero rather than
			// append a full body after a partial one.
			log.Warn().Int("statusCode", resp.StatusCode).Msg("Server doesn't support resume, starting from beginning")
			fileMode |= os.O_TRUNC
			resumeOffset = 0
			task.ResumeOffset = 0
		}
	} else {
		fileMode |= os.O_TRUNC
	}

	total := int64(-1)
	if resp.StatusCode == http.StatusPartialContent {
		if _, _, t, err := parseContentRange(resp.Header.Get("Content-Range")); err == nil && t > 0 {
			total = t
		} else if resp.ContentLength >= 0 {
			total = resumeOffset + resp.ContentLength
		}
	} else if resp.ContentLength >= 0 {
		total = resp.ContentLength
	}
	task.TotalSize = total
	tr.setTotal(total)
	tr.setPhase(PhaseTransferring)
	if resumeOffset > 0 {
		tr.add(resumeOffset)
	}

	outFile, err := os.OpenFile(task.Dest, fileMode, 0644)
	if err != nil {
		return newError(KindFatal, 0, "opening output file", err)
	}
	defer outFile.Close()

	written, err := copyWithProgress(outFile, resp.Body, tr)
	if err != nil {
		if ctx.Err() != nil {
			return newError(KindCancelled, 0, "download cancelled", ctx.Err())
		}
		return newError(KindTransient, 0, "stream interrupted", err)
	}
	if total >= 0 && resumeOffset+written != total {
		return newError(KindTransient, 0,
			fmt.Sprintf("truncated transfer: got %d of %d bytes", resumeOffset+written, total), ErrTruncated)
	}
	log.Debug().Int64("resumeOffset", resumeOffset).Int64("downloadedThisSession", written).
		Int64("totalDownloaded", resumeOffset+written).Msg("Stream download completed")
	return nil
}

// copyWithProgress streams src to dst in fixed-size buffers, reporting each
// write to the tracker.
func copyWithProgress(dst io.Writer, src io.Reader, tr *tracker) (int64, error) {
	buffer := make([]byte, bufferSize)
	var written int64
	for {
		bytesRead, err := src.Read(buffer)
		if bytesRead > 0 {
			if _, writeErr := dst.Write(buffer[:bytesRead]); writeErr != nil {
				return written, writeErr
			}
			written += int64(bytesRead)
			tr.add(int64(bytesRead))
		}
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, err
		}
	}
}
