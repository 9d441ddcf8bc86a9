package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// rotator is an io.Writer that rotates the log file once it grows past
// maxSize bytes, keeping at most maxBackups older files.
type rotator struct {
	filename   string
	maxSize    int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

// Setup routes the standard logger to stdout and a size-rotated file.
// If the file cannot be opened the logger keeps writing to stdout only.
func Setup(filename string, maxSizeMB int64, maxBackups int) {
	r := &rotator{
		filename:   filename,
		maxSize:    maxSizeMB * 1024 * 1024,
		maxBackups: maxBackups,
	}

	if err := r.open(); err != nil {
		log.Printf("⚠️  Failed to open log file %s, using stdout only: %v", filename, err)
		return
	}

	log.SetOutput(io.MultiWriter(os.Stdout, r))
	log.SetFlags(log.LstdFlags)
}

func (r *rotator) open() error {
	info, err := os.Stat(r.filename)
	if os.IsNotExist(err) {
		return r.create()
	}
	if err != nil {
		return err
	}

	f, err := os.OpenFile(r.filename, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = info.Size()
	return nil
}

func (r *rotator) create() error {
	f, err := os.OpenFile(r.filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = 0
	return nil
}

func (r *rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}

	if r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			// Keep writing to the old file rather than losing lines.
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate shifts backups up one slot (log.1 -> log.2, ...) and starts a
// fresh file.
func (r *rotator) rotate() error {
	if r.file != nil {
		r.file.Close()
	}

	for i := r.maxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", r.filename, i)
		if _, err := os.Stat(oldPath); os.IsNotExist(err) {
			continue
		}
		os.Rename(oldPath, fmt.Sprintf("%s.%d", r.filename, i+1))
	}

	if _, err := os.Stat(r.filename); err == nil {
		os.Rename(r.filename, r.filename+".1")
	}

	return r.create()
}
