package transfer

// ChunkStatus tracks one byte range through its download lifecycle.
type ChunkStatus int

const (
	ChunkPending ChunkStatus = iota
	ChunkInFlight
	ChunkDone
	ChunkFailed
)

// ChunkRange is one contiguous byte range of a chunked download. Start and
// End are inclusive offsets. The set of ranges for a task exactly partitions
// [0, TotalSize): no gaps, no overlaps, and each range starts one byte after
// its predecessor ends.
type ChunkRange struct {
	ID           int
	Start        int64
	End          int64
	Status       ChunkStatus
	BytesWritten int64
}

// Length returns the number of bytes the range covers.
func (c ChunkRange) Length() int64 {
	return c.End - c.Start + 1
}

// DownloadTask is the per-call state of one DownloadFile invocation. It lives
// for the duration of the transfer, including chunk retries, and is discarded
// once the destination file is finalized or the call fails.
type DownloadTask struct {
	ID           string
	URL          string
	Dest         string
	TotalSize    int64 // -1 until a HEAD or GET response reveals it
	ResumeOffset int64
	Chunks       []ChunkRange // empty when downloading as a single stream
}
