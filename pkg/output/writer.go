package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer outputs JSONL run records.
//
// Implementations must be safe for concurrent use. Each Write* method
// emits a complete record as a single line of JSON followed by a newline.
type Writer interface {
	WriteProgram(ctx context.Context, p *ProgramRecord) error
	WriteSkip(ctx context.Context, skip *SkipRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error
	WriteReconcile(ctx context.Context, rec *ReconcileRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// Writes are serialized using a mutex so lines never interleave.
type JSONLWriter struct {
	w      io.Writer
	runID  string
	source string
	mu     sync.Mutex

	closed bool
}

// NewJSONLWriter creates a writer stamping every record with runID and
// source.
func NewJSONLWriter(w io.Writer, runID, source string) *JSONLWriter {
	return &JSONLWriter{
		w:      w,
		runID:  runID,
		source: source,
	}
}

// WithRun returns a writer on the same destination that stamps a different
// run and source.
func (jw *JSONLWriter) WithRun(runID, source string) *RunWriter {
	return &RunWriter{parent: jw, runID: runID, source: source}
}

func (jw *JSONLWriter) WriteProgram(ctx context.Context, p *ProgramRecord) error {
	return jw.writeRecord(ctx, jw.runID, jw.source, TypeProgram, p)
}

func (jw *JSONLWriter) WriteSkip(ctx context.Context, skip *SkipRecord) error {
	return jw.writeRecord(ctx, jw.runID, jw.source, TypeSkip, skip)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.writeRecord(ctx, jw.runID, jw.source, TypeError, err)
}

func (jw *JSONLWriter) WriteReconcile(ctx context.Context, rec *ReconcileRecord) error {
	return jw.writeRecord(ctx, jw.runID, jw.source, TypeReconcile, rec)
}

func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, jw.runID, jw.source, TypeSummary, sum)
}

// Close marks the writer as closed.
//
// If the underlying writer implements io.Closer, it is NOT closed.
// The caller is responsible for closing the underlying writer.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line while
// holding the mutex.
func (jw *JSONLWriter) writeRecord(ctx context.Context, runID, source, recordType string, data any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}

	record := Record{
		Type:   recordType,
		TS:     time.Now().UTC(),
		RunID:  runID,
		Source: source,
		Data:   dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may return n < len(p) with a nil error; a truncated line
	// would corrupt the stream.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	return nil
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// RunWriter stamps a run id and source onto records written through a
// shared JSONLWriter. Closing a RunWriter does not close the parent.
type RunWriter struct {
	parent *JSONLWriter
	runID  string
	source string
}

func (rw *RunWriter) WriteProgram(ctx context.Context, p *ProgramRecord) error {
	return rw.parent.writeRecord(ctx, rw.runID, rw.source, TypeProgram, p)
}

func (rw *RunWriter) WriteSkip(ctx context.Context, skip *SkipRecord) error {
	return rw.parent.writeRecord(ctx, rw.runID, rw.source, TypeSkip, skip)
}

func (rw *RunWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return rw.parent.writeRecord(ctx, rw.runID, rw.source, TypeError, err)
}

func (rw *RunWriter) WriteReconcile(ctx context.Context, rec *ReconcileRecord) error {
	return rw.parent.writeRecord(ctx, rw.runID, rw.source, TypeReconcile, rec)
}

func (rw *RunWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return rw.parent.writeRecord(ctx, rw.runID, rw.source, TypeSummary, sum)
}

func (rw *RunWriter) Close() error { return nil }

// Discard is a Writer that drops every record.
var Discard Writer = discard{}

type discard struct{}

func (discard) WriteProgram(context.Context, *ProgramRecord) error     { return nil }
func (discard) WriteSkip(context.Context, *SkipRecord) error           { return nil }
func (discard) WriteError(context.Context, *ErrorRecord) error         { return nil }
func (discard) WriteReconcile(context.Context, *ReconcileRecord) error { return nil }
func (discard) WriteSummary(context.Context, *SummaryRecord) error     { return nil }
func (discard) Close() error                                           { return nil }

var (
	_ Writer = (*JSONLWriter)(nil)
	_ Writer = (*RunWriter)(nil)
)
