package chunk

import (
	"errors"
	"fmt"

	"github.com/MikeSquared-Agency/scribe/internal/record"
)

// ErrInvalidChunkSize is returned for a non-positive chunk size.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Chunk is a contiguous, order-preserving slice of records processed as one unit.
// Start and End are the inclusive record indices it covers.
type Chunk struct {
	Index   int
	Start   int
	End     int
	Records []record.Record
}

// Len returns the number of records in the chunk.
func (c Chunk) Len() int {
	return len(c.Records)
}

// Ref names the chunk in logs and diagnostics, e.g. "chunk-2[20-29]".
func (c Chunk) Ref() string {
	return fmt.Sprintf("chunk-%d[%d-%d]", c.Index, c.Start, c.End)
}

// Partition splits records into chunks of at most size records each. Concatenating
// the chunks reproduces the input order exactly; only the last chunk may be short.
// An empty input yields no chunks.
func Partition(records []record.Record, size int) ([]Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, size)
	}
	if len(records) == 0 {
		return nil, nil
	}

	chunks := make([]Chunk, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		chunks = append(chunks, buildChunk(records[start:end], len(chunks)))
	}
	return chunks, nil
}

func buildChunk(recs []record.Record, idx int) Chunk {
	c := Chunk{
		Index:   idx,
		Records: make([]record.Record, len(recs)),
		Start:   recs[0].Index,
		End:     recs[len(recs)-1].Index,
	}
	copy(c.Records, recs)
	return c
}
