// Package diag defines the diagnostic record shape shared by every
// frontend and the injected emitter interface the semantic analyzer and
// lowerer report through. Nothing in this module writes to stderr
// directly; every failure path goes through an Emitter.
package diag

import (
	"fmt"
	"sort"
	"strings"
)

// Severity classifies a diagnostic as fatal to the compilation tally or
// merely advisory.
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// SourceLoc identifies a position in a source file by file id, 1-based
// line, and 1-based column.
type SourceLoc struct {
	FileID int
	Line   int
	Column int
}

func (l SourceLoc) String() string {
	return fmt.Sprintf("%d:%d:%d", l.FileID, l.Line, l.Column)
}

// Diagnostic is the structured error/warning record every failure path
// produces. Message is a template with "%s"-style positional
// placeholders; Replacements are substituted in order via fmt.Sprintf so
// that formatting stays a pure function of the record (no hidden
// locale/format state).
type Diagnostic struct {
	Severity     Severity
	Code         string
	Loc          SourceLoc
	Length       int
	Message      string
	Replacements []any
}

// Render expands the message template with its replacements.
func (d Diagnostic) Render() string {
	if len(d.Replacements) == 0 {
		return d.Message
	}
	return fmt.Sprintf(d.Message, d.Replacements...)
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s[%s] %s", d.Loc, d.Severity, d.Code, d.Render())
}

// Emitter receives diagnostics as they are produced. Analyzer and
// lowerer code never format or print directly; they call an injected
// Emitter so the host (CLI, test harness, language tooling) decides how
// diagnostics surface.
type Emitter interface {
	Emit(Diagnostic)
}

// Tally counts diagnostics by severity and accumulates every record in
// emission order, independent of how they were rendered. Errors and
// warnings are tallied separately per spec: a nonzero error tally is the
// sole signal for a nonzero compiler exit status.
type Tally struct {
	Diagnostics []Diagnostic
	errors      int
	warnings    int
}

// Emit implements Emitter.
func (t *Tally) Emit(d Diagnostic) {
	t.Diagnostics = append(t.Diagnostics, d)
	switch d.Severity {
	case Error:
		t.errors++
	default:
		t.warnings++
	}
}

// Errors reports the number of error-severity diagnostics tallied so far.
func (t *Tally) Errors() int { return t.errors }

// Warnings reports the number of warning-severity diagnostics tallied so far.
func (t *Tally) Warnings() int { return t.warnings }

// HasErrors reports whether any error-severity diagnostic was emitted.
func (t *Tally) HasErrors() bool { return t.errors > 0 }

// Sorted returns the tallied diagnostics ordered by source location, then
// by code, for deterministic display independent of emission order.
func (t *Tally) Sorted() []Diagnostic {
	out := make([]Diagnostic, len(t.Diagnostics))
	copy(out, t.Diagnostics)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Loc.FileID != b.Loc.FileID {
			return a.Loc.FileID < b.Loc.FileID
		}
		if a.Loc.Line != b.Loc.Line {
			return a.Loc.Line < b.Loc.Line
		}
		if a.Loc.Column != b.Loc.Column {
			return a.Loc.Column < b.Loc.Column
		}
		return a.Code < b.Code
	})
	return out
}

// WriterEmitter formats each diagnostic into an in-memory line buffer
// that String joins with newlines. cmd/vc collects its diagnostics with
// a Tally instead.
type WriterEmitter struct {
	lines []string
}

// Emit implements Emitter by formatting the diagnostic into an internal
// buffer retrievable via String.
func (w *WriterEmitter) Emit(d Diagnostic) {
	w.lines = append(w.lines, d.String())
}

func (w *WriterEmitter) String() string {
	return strings.Join(w.lines, "\n")
}
