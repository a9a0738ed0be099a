//go:build linux && amd64
// +build linux,amd64

// Filename: pipe.go
// Package pipe provides high-level pipe operations (os.File based) on top of
// the low-level syscalls in sys_pipe_linux_amd64.go. It is comcom's one
// source of pipe plumbing: the invocation's stdin/stdout/error pipes are all
// built on top of this package (the session's child-exit notification is a
// Go channel in internal/reaper, not a pipe).
package pipe

import (
	"os"
)

// Pipe wraps one pipe(2)/pipe2(2) pair as *os.File ends.
type Pipe struct {
	rf   *os.File // Read end of the pipe
	wf   *os.File // Write end of the pipe
	flgs int      // Flags the pipe was created with
}

// NewPipe is like os.Pipe(), but uses our own pipe(2) shim under the hood.
func NewPipe() (*Pipe, error) { // ------------ NewPipe ------------- //
	rfd, wfd, err := Pipe()    // Call the low-level pipe syscall
	if err != nil {            // Did we error getting the pipe's fd?
		return nil, err        // Yes, return nil object and error.
	}                          // Done with error creating pipe.
	return &Pipe{              // Return our pipe object.
		rf: os.NewFile(uintptr(rfd), "pipe-r"), // Create the read end of the pipe
		wf: os.NewFile(uintptr(wfd), "pipe-w"), // Create the write end of the pipe
	}, nil // Done creating pipe object.
} // ------------ NewPipe ------------- //

// NewPipe2 is like NewPipe but calls pipe2(2); flags is any combination of
// O_NONBLOCK, O_CLOEXEC.
func NewPipe2(flags int) (*Pipe, error) { // ------------ NewPipe2 ------------ //
	rfd, wfd, err := Pipe2(flags) // Call the low-level pipe2 syscall
	if err != nil {               // Did we error getting the pipe's fd?
		return nil, err // Yes, return nil object and error.
	} // Done with error creating pipe.
	return &Pipe{ // Return our pipe object.
		rf:   os.NewFile(uintptr(rfd), "pipe-r"), // Create the read end of the pipe
		wf:   os.NewFile(uintptr(wfd), "pipe-w"), // Create the write end of the pipe
		flgs: flags,                              // Set the flags for the pipe
	}, nil // Done creating pipe object.
} // ------------ NewPipe2 ------------ //

// ReadEnd returns the read end of the pipe.
func (p *Pipe) ReadEnd() (*os.File, error) { // ----------- ReadEnd ----------- //
	if p.rf == nil { // Is the read end of the pipe nil?
		return nil, os.ErrInvalid // Yes, return nil and error
	} // Done checking if the read end of the pipe is nil.
	return p.rf, nil // Return the read end of the pipe
} // ----------- ReadEnd ----------- //

// WriteEnd returns the write end of the pipe.
func (p *Pipe) WriteEnd() (*os.File, error) { // ----------- WriteEnd ---------- //
	if p.wf == nil { // Is the write end of the pipe nil?
		return nil, os.ErrInvalid // Yes, return nil and error
	} // Done checking if the write end of the pipe is nil.
	return p.wf, nil // Return the write end of the pipe
} // ----------- WriteEnd ---------- //

// Close closes both ends of the pipe, idempotently. It returns the first
// error encountered and still attempts to close the other end, so that a
// failure to close the read end never leaks the write end (spec.md 4.1's
// "close-pair" contract).
func (p *Pipe) Close() error { // ------------ Close --------------- //
	var first error
	if p.rf != nil { // Still have a read end?
		if err := CloseFD(int(p.rf.Fd())); err != nil { // Did we error closing it?
			first = err // Remember the first error.
		}
		p.rf = nil
	}
	if p.wf != nil { // Still have a write end?
		if err := CloseFD(int(p.wf.Fd())); err != nil && first == nil { // Error, none recorded yet?
			first = err // Remember it.
		}
		p.wf = nil
	}
	return first // Return the first error, if any.
} // ------------ Close --------------- //

// CloseRead closes the read end of the pipe. Idempotent on an already-closed
// read end (nil sentinel).
func (p *Pipe) CloseRead() error { // ------------ CloseRead ----------- //
	if p.rf == nil { // Is the read end of the pipe nil?
		return nil // Nothing to do, return nil.
	} // Done checking if the read end of the pipe is nil.
	err := CloseFD(int(p.rf.Fd())) // Close the read end of the pipe.
	p.rf = nil                     // Set the read end of the pipe to nil.
	return err                     // Return the error closing the read end of the pipe.
} // ------------ CloseRead ----------- //

// CloseWrite closes the write end of the pipe. Idempotent.
func (p *Pipe) CloseWrite() error { // ------------ CloseWrite ---------- //
	if p.wf == nil { // Is the write end of the pipe nil?
		return nil // Nothing to do, return nil.
	} // Done checking if the write end of the pipe is nil.
	err := CloseFD(int(p.wf.Fd())) // Close the write end of the pipe.
	p.wf = nil                     // Set the write end of the pipe to nil.
	return err                     // Return the error closing the write end of the pipe.
} // ------------ CloseWrite ---------- //

// DupFile duplicates f's descriptor (dup(2)) and returns a new *os.File.
func DupFile(f *os.File) (*os.File, error) { // ------------ DupFile -------------- //
	if f == nil { // Did they give us a file
		return nil, os.ErrInvalid // Yes, return nil and error.
	} // Done checking if the file is nil.
	oldfd := int(f.Fd())   // Get the file descriptor of the file.
	newfd, err := Dup(oldfd) // Duplicate the file descriptor.
	if err != nil {        // Did we error duplicating the file descriptor?
		return nil, err // Yes, return nil and error.
	} // Done with error duplicating the file descriptor.
	return os.NewFile(uintptr(newfd), f.Name()), nil // Return new file and nil error.
} // ------------ DupFile -------------- //

// Dup2File makes newfd a copy of f's descriptor (dup2(2)).
func Dup2File(f *os.File, newfd int) (*os.File, error) { // ------ Dup2File ------- //
	if f == nil { // Did they give us a file
		return nil, os.ErrInvalid // Yes, return nil and error.
	} // Done checking if the file is nil.
	oldfd := int(f.Fd())              // Get the file descriptor of the file.
	got, err := Dup2(oldfd, newfd)    // Duplicate the file descriptor.
	if err != nil {                   // Did we error duplicating the file descriptor?
		return nil, err // Yes, return nil and error.
	} // Done with error duplicating the file descriptor.
	return os.NewFile(uintptr(got), f.Name()), nil // Return new file and nil error.
} // ------------ Dup2File ------------- //

// Dup3File makes newfd a copy of f.Fd() with flags (e.g. O_CLOEXEC), closing
// newfd first.
func Dup3File(f *os.File, newfd int, flags int) (*os.File, error) { // -- Dup3File --- //
	if f == nil { // Did they give us a file
		return nil, os.ErrInvalid // Yes, return nil and error.
	} // Done checking if the file is nil.
	oldfd := int(f.Fd())                       // Get the file descriptor of the file.
	got, err := Dup3(oldfd, newfd, flags)      // Duplicate the file descriptor.
	if err != nil {                            // Did we error duplicating the file descriptor?
		return nil, err // Yes, return nil and error.
	} // Done with error duplicating the file descriptor.
	return os.NewFile(uintptr(got), f.Name()), nil // Return new file and nil error.
} // ------------ Dup3File ------------- //

// SetCapacity sets the pipe buffer size (bytes) on the write end.
// Returns the new (kernel-adjusted) size.
func (p *Pipe) SetCapacity(size int) (int, error) {
	return SetPipeSize(int(p.wf.Fd()), size)
}

// Capacity returns the current pipe buffer capacity (bytes).
func (p *Pipe) Capacity() (int, error) {
	return GetPipeSize(int(p.wf.Fd()))
}

// Available returns the number of bytes queued in the pipe ready to read.
func (p *Pipe) Available() (int, error) {
	return GetAvailableBytes(int(p.rf.Fd()))
}

// AtomicWriteSize is the platform's guaranteed-atomic pipe write size
// (PIPE_BUF on Linux). The parent event loop never writes more than this in
// one write(2) call, so the kernel never tears or interleaves a write.
func AtomicWriteSize() int {
	return pipeBufSize
}
