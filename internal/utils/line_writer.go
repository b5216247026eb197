package utils

import (
	"bufio"
	"bytes"
	"io"
	"sync"
)

const lineTerminatorConstant = '\n'

type flusher interface {
	Flush() error
}

// LineWriter serializes command output and releases it one complete line at a time so rendered
// results never split around console log lines emitted by concurrent resolution workers.
type LineWriter struct {
	mutex       sync.Mutex
	buffer      *bufio.Writer
	destination io.Writer
}

// NewLineWriter wraps the destination. A destination that is already a LineWriter is returned as is.
func NewLineWriter(destination io.Writer) *LineWriter {
	if existingWriter, alreadyWrapped := destination.(*LineWriter); alreadyWrapped {
		return existingWriter
	}
	return &LineWriter{buffer: bufio.NewWriter(destination), destination: destination}
}

// Write buffers the data and flushes through the last complete line it contains.
func (lineWriter *LineWriter) Write(data []byte) (int, error) {
	lineWriter.mutex.Lock()
	defer lineWriter.mutex.Unlock()

	lastTerminator := bytes.LastIndexByte(data, lineTerminatorConstant)
	if lastTerminator == -1 {
		return lineWriter.buffer.Write(data)
	}

	bytesWritten, writeError := lineWriter.buffer.Write(data[:lastTerminator+1])
	if writeError != nil {
		return bytesWritten, writeError
	}
	if flushError := lineWriter.flushLocked(); flushError != nil {
		return bytesWritten, flushError
	}

	remainderWritten, remainderError := lineWriter.buffer.Write(data[lastTerminator+1:])
	return bytesWritten + remainderWritten, remainderError
}

// Flush releases any buffered partial line.
func (lineWriter *LineWriter) Flush() error {
	lineWriter.mutex.Lock()
	defer lineWriter.mutex.Unlock()
	return lineWriter.flushLocked()
}

func (lineWriter *LineWriter) flushLocked() error {
	if flushError := lineWriter.buffer.Flush(); flushError != nil {
		return flushError
	}
	if destinationFlusher, flushable := lineWriter.destination.(flusher); flushable {
		return destinationFlusher.Flush()
	}
	return nil
}
