// Package logging lays out a cycle's log directory and gives every test
// sub-invocation its own isolated log file.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
)

const (
	CycleDirectoryPrefix = "cycle-" // Prefix for per-run cycle directories
	CaseLogFilename      = "case.log"
)

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(path string) (*AsyncFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100), // Buffer channel to reduce blocking
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) (int, error) {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return 0, fmt.Errorf("async file is closed")
	}

	// The caller may reuse data after Write returns
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	af.queue <- dataCopy
	return len(data), nil
}

// processQueue processes the write queue in the background
func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	// Wait for all writes to complete
	af.wg.Wait()
	return af.file.Close()
}

// CycleLogger owns the <baseDir>/cycle-<runID>/ directory of one run
type CycleLogger struct {
	baseDir      string
	cycleDir     string
	log          log.Logger
	mu           sync.Mutex
	asyncWriters map[string]*AsyncFile
}

// NewCycleLogger creates the cycle directory and returns a logger for it.
// parent receives a copy of every case log record.
func NewCycleLogger(baseDir string, runID string, parent log.Logger) (*CycleLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}
	if parent == nil {
		parent = log.New()
	}

	cycleDir := filepath.Join(baseDir, CycleDirectoryPrefix+runID)
	if err := os.MkdirAll(cycleDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", cycleDir, err)
	}

	return &CycleLogger{
		baseDir:      baseDir,
		cycleDir:     cycleDir,
		log:          parent,
		asyncWriters: make(map[string]*AsyncFile),
	}, nil
}

// Dir returns the cycle directory
func (l *CycleLogger) Dir() string {
	return l.cycleDir
}

// CaseDir returns the directory holding the logs of sub-invocation seq
func (l *CycleLogger) CaseDir(seq int, name string) string {
	return filepath.Join(l.cycleDir, fmt.Sprintf("%03d-%s", seq, SafeFilename(name)))
}

// OpenCase creates the case directory and its log file. Records written to
// the returned CaseLogger go to the file and to the cycle's parent logger.
func (l *CycleLogger) OpenCase(seq int, name string) (*CaseLogger, error) {
	dir := l.CaseDir(seq, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, CaseLogFilename)
	file, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}

	fileHandler := log.NewTerminalHandlerWithLevel(file, log.LevelTrace, false)
	caseLog := log.NewLogger(slog.NewMultiHandler(l.log.Handler(), fileHandler)).With("case", name, "seq", seq)

	return &CaseLogger{
		Log:  caseLog,
		Dir:  dir,
		Path: path,
		file: file,
	}, nil
}

// getAsyncWriter gets or creates an AsyncFile for the given path
func (l *CycleLogger) getAsyncWriter(path string) (*AsyncFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if writer, exists := l.asyncWriters[path]; exists {
		return writer, nil
	}

	writer, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}
	l.asyncWriters[path] = writer
	return writer, nil
}

// WriteFile appends content to a file in the cycle directory and returns
// its path. The file is flushed by Close.
func (l *CycleLogger) WriteFile(name string, content []byte) (string, error) {
	path := filepath.Join(l.cycleDir, name)
	writer, err := l.getAsyncWriter(path)
	if err != nil {
		return "", err
	}
	if _, err := writer.Write(content); err != nil {
		return "", err
	}
	return path, nil
}

// Close flushes and closes every file opened with WriteFile
func (l *CycleLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, writer := range l.asyncWriters {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.asyncWriters = make(map[string]*AsyncFile)
	return firstErr
}

// CaseLogger is the isolated logging context of one sub-invocation
type CaseLogger struct {
	Log  log.Logger
	Dir  string
	Path string

	file *AsyncFile
	once sync.Once
	err  error
}

// Output returns a writer appending raw process output to the case log
func (c *CaseLogger) Output() *AsyncFile {
	return c.file
}

// Close flushes the case log. It is safe to call more than once.
func (c *CaseLogger) Close() error {
	c.once.Do(func() {
		c.err = c.file.Close()
	})
	return c.err
}

// Text closes the case log and returns its contents with ANSI escape
// sequences removed
func (c *CaseLogger) Text() (string, error) {
	if err := c.Close(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return "", fmt.Errorf("reading case log: %w", err)
	}
	return StripANSI(string(data)), nil
}

// StripANSI removes ANSI escape sequences from s
func StripANSI(s string) string {
	return stripansi.Strip(s)
}

// SafeFilename converts a string to a safe filename by replacing problematic characters
func SafeFilename(s string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	s = replacer.Replace(s)
	s = strings.ReplaceAll(s, "...", "")
	return s
}
