package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// maxLoggedBody caps how much of a request body ends up in the log.
const maxLoggedBody = 64 << 10

// redactedHeaders never reach the request log.
var redactedHeaders = map[string]bool{
	"Authorization": true,
	"X-Api-Key":     true,
	"Cookie":        true,
}

// RequestLog defines the JSON structure for a log entry.
type RequestLog struct {
	Timestamp  time.Time           `json:"timestamp"`
	Method     string              `json:"method"`
	URL        string              `json:"url"`
	Headers    map[string][]string `json:"headers"`
	RemoteAddr string              `json:"remote_addr"`
	Body       string              `json:"body"`
	Truncated  bool                `json:"truncated,omitempty"`
}

// RequestLogger writes inbound requests to rotating JSON Lines files from a
// background goroutine. Entries are dropped when the buffer is full.
type RequestLogger struct {
	fileTemplate  string // e.g. "/var/log/gateway/requests-%s.jsonl"
	maxSize       int64
	maxFiles      int
	flushInterval time.Duration

	mu          sync.Mutex
	currentFile string
	file        *os.File
	writer      *bufio.Writer
	currentSize int64

	logCh  chan RequestLog
	doneCh chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewRequestLogger opens the first log file and starts the writer goroutine.
func NewRequestLogger(fileTemplate string, maxSize int64, maxFiles, bufferSize int, flushInterval time.Duration) (*RequestLogger, error) {
	if flushInterval <= 0 {
		flushInterval = time.Minute
	}
	logger := &RequestLogger{
		fileTemplate:  fileTemplate,
		maxSize:       maxSize,
		maxFiles:      maxFiles,
		flushInterval: flushInterval,
		logCh:         make(chan RequestLog, bufferSize),
		doneCh:        make(chan struct{}),
	}

	if err := logger.openFile(); err != nil {
		return nil, err
	}

	logger.wg.Add(1)
	go logger.run()

	return logger, nil
}

// Middleware records every request before passing it on.
func (logger *RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.LogRequest(r)
		next.ServeHTTP(w, r)
	})
}

// LogRequest queues a request for logging and restores its body for the
// next handler.
func (logger *RequestLogger) LogRequest(r *http.Request) {
	headers := make(map[string][]string, len(r.Header))
	for k, v := range r.Header {
		if redactedHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		headers[k] = v
	}

	entry := RequestLog{
		Timestamp:  time.Now(),
		Method:     r.Method,
		URL:        r.URL.String(),
		Headers:    headers,
		RemoteAddr: r.RemoteAddr,
	}

	if r.Body != nil && r.Body != http.NoBody {
		bodyBytes, err := io.ReadAll(r.Body)
		if err == nil {
			if len(bodyBytes) > maxLoggedBody {
				entry.Body = string(bodyBytes[:maxLoggedBody])
				entry.Truncated = true
			} else {
				entry.Body = string(bodyBytes)
			}
		}
		r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	select {
	case logger.logCh <- entry:
	default:
	}
}

// Shutdown flushes buffered entries and closes the file.
func (logger *RequestLogger) Shutdown() {
	logger.mu.Lock()
	if logger.closed {
		logger.mu.Unlock()
		return
	}
	logger.closed = true
	logger.mu.Unlock()

	close(logger.doneCh)
	logger.wg.Wait()
}

// CurrentFile returns the path of the active log file.
func (logger *RequestLogger) CurrentFile() string {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	return logger.currentFile
}

func (logger *RequestLogger) newFileName() string {
	return fmt.Sprintf(logger.fileTemplate, time.Now().Format("20060102150405.000000"))
}

// openFile opens a fresh file from the template, creating its directory.
func (logger *RequestLogger) openFile() error {
	logger.currentFile = logger.newFileName()
	if err := os.MkdirAll(filepath.Dir(logger.currentFile), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logger.currentFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	logger.currentSize = fi.Size()
	logger.file = file
	logger.writer = bufio.NewWriter(file)
	return nil
}

// rotateIfNeeded switches to a new file when n more bytes would exceed
// maxSize. It reports whether a rotation happened. Callers hold mu.
func (logger *RequestLogger) rotateIfNeeded(n int) (bool, error) {
	if logger.currentSize+int64(n) < logger.maxSize {
		return false, nil
	}
	if err := logger.writer.Flush(); err != nil {
		return false, err
	}
	if err := logger.file.Close(); err != nil {
		return false, err
	}
	return true, logger.openFile()
}

// cleanupOldFiles keeps at most maxFiles files matching the template.
func (logger *RequestLogger) cleanupOldFiles() error {
	matches, err := filepath.Glob(fmt.Sprintf(logger.fileTemplate, "*"))
	if err != nil {
		return err
	}

	modTimes := make(map[string]time.Time, len(matches))
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil {
			modTimes[m] = fi.ModTime()
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if modTimes[matches[i]].Equal(modTimes[matches[j]]) {
			return matches[i] < matches[j]
		}
		return modTimes[matches[i]].Before(modTimes[matches[j]])
	})

	for i := 0; i < len(matches)-logger.maxFiles; i++ {
		if matches[i] == logger.currentFile {
			continue
		}
		_ = os.Remove(matches[i])
	}
	return nil
}

func (logger *RequestLogger) run() {
	defer logger.wg.Done()
	ticker := time.NewTicker(logger.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-logger.logCh:
			logger.writeEntry(entry)
		case <-ticker.C:
			logger.mu.Lock()
			_ = logger.writer.Flush()
			logger.mu.Unlock()
		case <-logger.doneCh:
			for {
				select {
				case entry := <-logger.logCh:
					logger.writeEntry(entry)
				default:
					logger.mu.Lock()
					_ = logger.writer.Flush()
					_ = logger.file.Close()
					logger.mu.Unlock()
					return
				}
			}
		}
	}
}

func (logger *RequestLogger) writeEntry(entry RequestLog) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	logger.mu.Lock()
	defer logger.mu.Unlock()

	rotated, err := logger.rotateIfNeeded(len(data))
	if err != nil {
		Errorf("request log rotation failed: %v", err)
	}
	n, _ := logger.writer.Write(data)
	logger.currentSize += int64(n)

	if rotated {
		_ = logger.cleanupOldFiles()
	}
}
