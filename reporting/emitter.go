package reporting

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
)

// Paths lists the files written by Emit
type Paths struct {
	JUnit   string
	HTML    string
	Summary string
}

// Emitter writes every report format for a finished cycle
type Emitter struct {
	log     log.Logger
	junit   *JUnitWriter
	html    *HTMLWriter
	table   *TableWriter
	console io.Writer
}

// EmitterConfig holds configuration for an Emitter
type EmitterConfig struct {
	Log      log.Logger
	Console  io.Writer // defaults to os.Stdout unless Quiet
	Quiet    bool
	Color    bool
	Hostname string
}

// NewEmitter creates an Emitter
func NewEmitter(cfg EmitterConfig) (*Emitter, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	html, err := NewHTMLWriter()
	if err != nil {
		return nil, err
	}
	console := cfg.Console
	if console == nil && !cfg.Quiet {
		console = os.Stdout
	}
	return &Emitter{
		log:     cfg.Log,
		junit:   &JUnitWriter{Hostname: cfg.Hostname},
		html:    html,
		table:   &TableWriter{Color: cfg.Color},
		console: console,
	}, nil
}

// Emit writes junit.xml, summary.html and summary.log into dir and prints
// the console table
func (e *Emitter) Emit(dir string, r *Report) (*Paths, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}
	paths := &Paths{
		JUnit:   filepath.Join(dir, JUnitFilename),
		HTML:    filepath.Join(dir, HTMLFilename),
		Summary: filepath.Join(dir, SummaryFilename),
	}

	var buf bytes.Buffer
	if err := e.junit.Write(&buf, r); err != nil {
		return nil, err
	}
	if err := writeFile(paths.JUnit, buf.Bytes()); err != nil {
		return nil, err
	}

	buf.Reset()
	if err := e.html.Write(&buf, r, dir); err != nil {
		return nil, err
	}
	if err := writeFile(paths.HTML, buf.Bytes()); err != nil {
		return nil, err
	}

	buf.Reset()
	if err := WriteText(&buf, r); err != nil {
		return nil, err
	}
	if err := writeFile(paths.Summary, buf.Bytes()); err != nil {
		return nil, err
	}

	if e.console != nil {
		e.table.Write(e.console, r)
	}
	e.log.Info("Reports written", "junit", paths.JUnit, "html", paths.HTML, "summary", paths.Summary)
	return paths, nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
