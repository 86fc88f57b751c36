// Package recv implements the streaming multipart/form-data receive state
// machine: the component that consumes HTTP body chunks in whatever size
// the transport hands them over, locates part boundaries, separates small
// form fields from the file payload, writes the file payload to a TempSink
// with correct CRLF handling across chunk boundaries, and keeps a
// ProgressRegistry entry current.
//
// One FSM is created per in-flight upload request and is not safe for
// concurrent use — the scheduling model (see lifecycle) guarantees a
// single request's callbacks run serially on one goroutine.
package recv

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/repofs/seafhttp/internal/apperr"
	"github.com/repofs/seafhttp/internal/linebuf"
	appmetrics "github.com/repofs/seafhttp/internal/metrics"
	"github.com/repofs/seafhttp/internal/multipartx"
	"github.com/repofs/seafhttp/internal/progress"
	"github.com/repofs/seafhttp/internal/tempsink"
)

// State is one of the four states the machine can be in.
type State int

const (
	StateInit State = iota
	StateHeaders
	StateContent
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateHeaders:
		return "HEADERS"
	case StateContent:
		return "CONTENT"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MaxContentLine bounds how long a line of file-part data may grow before
// it is flushed to the sink as a raw byte run even without a CRLF
// terminator. Its value is an upper bound on any boundary line length.
const MaxContentLine = 10240

// MaxParts caps the number of parts a single request may contain, a
// backstop against a malformed or adversarial body with an unbounded
// number of tiny parts.
const MaxParts = 1000

var crlf = []byte("\r\n")

// FSM is the per-request receive state machine (spec §3, §4.5).
type FSM struct {
	state State

	boundary string
	RepoID   string
	User     string

	line    *linebuf.Buffer
	formKVs map[string]string

	headers   multipartx.PartHeaders
	inputName string
	inPart    bool
	fileName  string

	sink       *tempsink.Sink
	recvedCRLF bool
	partCount  int

	tempDir       string
	ProgressID    string
	progressEntry *progress.Entry
	registry      *progress.Registry
	contentLength int64

	logger  *slog.Logger
	metrics *appmetrics.Metrics
}

// SetMetrics attaches a Metrics sink the FSM reports wire bytes and parse
// failures to. Optional; a nil or never-called SetMetrics leaves the FSM
// fully functional with no instrumentation.
func (f *FSM) SetMetrics(m *appmetrics.Metrics) { f.metrics = m }

// New constructs an FSM bound to one request, inserting a fresh entry into
// registry under progressID. The caller must eventually call Release exactly
// once, on every termination path.
func New(boundary, repoID, user, tempDir, progressID string, contentLength int64, registry *progress.Registry, logger *slog.Logger) *FSM {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSM{
		state:         StateInit,
		boundary:      boundary,
		RepoID:        repoID,
		User:          user,
		line:          linebuf.New(),
		formKVs:       make(map[string]string),
		tempDir:       tempDir,
		ProgressID:    progressID,
		progressEntry: registry.Insert(progressID, contentLength),
		registry:      registry,
		contentLength: contentLength,
		logger:        logger,
	}
}

// State returns the FSM's current state.
func (f *FSM) State() State { return f.state }

// FormValue returns a form field's value by name.
func (f *FSM) FormValue(name string) (string, bool) {
	v, ok := f.formKVs[name]
	return v, ok
}

// HasFile reports whether a file part has begun (and therefore a sink was
// opened).
func (f *FSM) HasFile() bool { return f.sink != nil }

// TempPath returns the path of the sink's temp file. Only meaningful when
// HasFile is true.
func (f *FSM) TempPath() string {
	if f.sink == nil {
		return ""
	}
	return f.sink.Path()
}

// FileName returns the file part's original filename, as declared in its
// Content-Disposition header. Only meaningful when HasFile is true.
func (f *FSM) FileName() string { return f.fileName }

// FileSize stats the sink's temp file.
func (f *FSM) FileSize() (int64, error) {
	if f.sink == nil {
		return 0, fmt.Errorf("recv: no file part received")
	}
	return f.sink.Size()
}

// BytesRemaining returns ContentLength minus bytes received so far, used to
// detect a connection that closed before the declared body size arrived.
// It is <= 0 once the full declared body has arrived.
func (f *FSM) BytesRemaining() int64 {
	return f.contentLength - f.progressEntry.Snapshot().Uploaded
}

// Release closes the TempSink (if any) and removes the ProgressRegistry
// entry. It must run exactly once, on every request termination path
// (success, error, or client abort), and is safe to call more than once.
func (f *FSM) Release() {
	if f.sink != nil {
		f.sink.Close()
	}
	f.registry.Remove(f.ProgressID)
}

// Feed consumes one body chunk. It updates the progress counter before
// attempting to parse anything (wire bytes received, not bytes written to
// the sink — see spec §4.5), then drives the state machine as far as the
// currently buffered bytes allow.
func (f *FSM) Feed(chunk []byte) error {
	if f.state == StateError {
		return nil
	}

	f.progressEntry.Add(int64(len(chunk)))
	if f.metrics != nil {
		f.metrics.BytesReceived.Add(float64(len(chunk)))
	}
	f.line.Append(chunk)

	if err := f.drain(); err != nil {
		f.state = StateError
		if f.metrics != nil {
			f.metrics.FSMErrorsTotal.WithLabelValues(f.state.String()).Inc()
		}
		return err
	}
	return nil
}

// drain processes as many complete lines as are currently queued, stopping
// to wait for more bytes whenever a transition needs a line that isn't
// fully buffered yet.
func (f *FSM) drain() error {
	for {
		switch f.state {

		case StateInit:
			line, ok := f.line.ReadLine()
			if !ok {
				return nil
			}
			if !containsBoundary(line, f.boundary) {
				return apperr.BadRequest("expected initial multipart boundary", nil)
			}
			f.state = StateHeaders

		case StateHeaders:
			line, ok := f.line.ReadLine()
			if !ok {
				return nil
			}
			if len(line) == 0 {
				if err := f.endHeaders(); err != nil {
					return err
				}
				continue
			}
			if err := f.parseHeaderLine(line); err != nil {
				return err
			}

		case StateContent:
			if f.inputName == "file" {
				waitForMore, err := f.drainFileContent()
				if err != nil {
					return err
				}
				if waitForMore {
					return nil
				}
				// A line was consumed (if it was the boundary, state is now
				// HEADERS); loop continues.
			} else {
				waitForMore, err := f.drainFieldContent()
				if err != nil {
					return err
				}
				if waitForMore {
					return nil
				}
			}

		case StateError:
			return nil
		}
	}
}

// endHeaders runs when the blank line terminating a part's headers is
// reached: it opens the sink if this part is the file part, then switches
// to CONTENT.
func (f *FSM) endHeaders() error {
	if f.inputName == "file" {
		sink, err := tempsink.Open(f.tempDir, f.fileName, f.logger)
		if err != nil {
			return apperr.Internal("open temp file", err)
		}
		// Extra file parts overwrite the sink: the last file wins (spec
		// invariant). Close the stale sink before replacing it.
		if f.sink != nil {
			f.sink.Close()
		}
		f.sink = sink
	}
	f.recvedCRLF = false
	f.inPart = true
	f.state = StateContent
	return nil
}

func (f *FSM) parseHeaderLine(line []byte) error {
	handled, err := multipartx.ParsePartHeader(string(line), &f.headers)
	if err != nil {
		return apperr.BadRequest("malformed part header", err)
	}
	if handled {
		f.inputName = f.headers.InputName
		if f.inputName == "file" {
			f.fileName = f.headers.FileName
		}

		f.partCount++
		if f.partCount > MaxParts {
			return apperr.BadRequest("too many multipart parts", nil)
		}
	}
	return nil
}

// drainFieldContent consumes lines for a non-file part. waitForMore is true
// when no complete line is queued and the caller should wait for the next
// chunk.
func (f *FSM) drainFieldContent() (waitForMore bool, err error) {
	line, ok := f.line.ReadLine()
	if !ok {
		return true, nil
	}
	if containsBoundary(line, f.boundary) {
		f.inputName = ""
		f.inPart = false
		f.state = StateHeaders
		return false, nil
	}
	f.formKVs[f.inputName] = string(line)
	return false, nil
}

// drainFileContent implements the delicate file-payload path of spec §4.5:
// deferring each line's trailing CRLF write until the next line is known
// not to be the boundary, so the boundary's own CRLF is never written to
// the sink.
func (f *FSM) drainFileContent() (waitForMore bool, err error) {
	line, ok := f.line.ReadLine()
	if !ok {
		if f.line.Len() >= MaxContentLine {
			if f.recvedCRLF {
				if err := f.sink.WriteAll(crlf); err != nil {
					return false, apperr.Internal("write temp file", err)
				}
			}
			var raw bytes.Buffer
			if _, err := f.line.DrainTo(&raw); err != nil {
				return false, apperr.Internal("drain buffer", err)
			}
			if err := f.sink.WriteAll(raw.Bytes()); err != nil {
				return false, apperr.Internal("write temp file", err)
			}
			f.recvedCRLF = false
		}
		return true, nil
	}

	if containsBoundary(line, f.boundary) {
		f.inputName = ""
		f.inPart = false
		f.state = StateHeaders
		return false, nil
	}

	if f.recvedCRLF {
		if err := f.sink.WriteAll(crlf); err != nil {
			return false, apperr.Internal("write temp file", err)
		}
	}
	if err := f.sink.WriteAll(line); err != nil {
		return false, apperr.Internal("write temp file", err)
	}
	f.recvedCRLF = true
	return false, nil
}

// containsBoundary reports whether line contains the boundary string as a
// substring. This intentionally matches both the intermediate delimiter
// "--<boundary>" and the terminal "--<boundary>--", and tolerates trailing
// whitespace variants — a deliberate false-positive risk accepted because
// senders pick unique boundaries.
func containsBoundary(line []byte, boundary string) bool {
	return bytes.Contains(line, []byte(boundary))
}
