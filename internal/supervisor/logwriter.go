package supervisor

import (
	"bytes"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/KONFeature/wordforge/internal/events"
	"github.com/KONFeature/wordforge/internal/limits"
)

const maxPendingBytes = 16 * 1024

// lineWriter publishes each complete line written to it on the bus.
type lineWriter struct {
	bus    *events.Bus
	topic  string
	stream string
	logger *zap.SugaredLogger

	mu  sync.Mutex
	buf bytes.Buffer
}

func newLineWriter(bus *events.Bus, topic, stream string, logger *zap.SugaredLogger) *lineWriter {
	return &lineWriter{bus: bus, topic: topic, stream: stream, logger: logger}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		w.publish(string(bytes.TrimRight(data[:idx], "\r")))
		w.buf.Next(idx + 1)
	}

	if w.buf.Len() > maxPendingBytes {
		w.publish(w.buf.String())
		w.buf.Reset()
	}
	return len(p), nil
}

// Flush publishes a trailing line that never got its newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.publish(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) publish(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	line = limitLine(line)
	w.logger.Debugw("sidecar output", "stream", w.stream, "line", line)
	w.bus.Publish(w.topic, line)
}

func limitLine(line string) string {
	runes := []rune(line)
	if len(runes) <= limits.LogLine {
		return line
	}
	return string(runes[:limits.LogLine]) + " …[truncated]"
}
