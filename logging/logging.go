// Package logging sends daemon output to stdout and a size-capped file.
// The TUI dashboard tails that file and parses the standard date-time
// prefix, so Setup pins the stdlib flags.
package logging

import (
	"io"
	"log"
	"os"
	"sync"
)

// The active file stays under logCap; one .1 backup is kept.
const logCap = 2 << 20

// RotatingWriter is the file half of the log output.
type RotatingWriter struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	backup string
	size   int64
}

// Setup points the stdlib logger at stdout plus the rotating file and
// returns the writer so the caller can close it on shutdown.
func Setup(logPath string) (*RotatingWriter, error) {
	f, size, err := openAppend(logPath)
	if err != nil {
		return nil, err
	}
	w := &RotatingWriter{file: f, path: logPath, backup: logPath + ".1", size: size}

	log.SetFlags(log.LstdFlags)
	log.SetOutput(io.MultiWriter(os.Stdout, w))
	return w, nil
}

// openAppend opens the log for appending. A file already past the cap is
// rotated out first instead of growing further.
func openAppend(path string) (*os.File, int64, error) {
	if info, err := os.Stat(path); err == nil && info.Size() > logCap {
		os.Rename(path, path+".1")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > logCap {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// rotate moves the active file into the backup slot and starts a fresh one.
func (w *RotatingWriter) rotate() error {
	w.file.Close()
	os.Rename(w.path, w.backup)

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	w.file = f
	w.size = 0
	return nil
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
