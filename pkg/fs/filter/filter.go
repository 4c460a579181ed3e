// Package filter provides the stream transformations applied between an
// archive codec and its backing store: compression and encryption.
//
// Filters are listed innermost first. For a chain [gzip, raes] the codec
// output is compressed, then encrypted, then stored.
package filter

import (
	"errors"
	"fmt"
	"io"
)

// Filter transforms an archive byte stream in both directions.
type Filter interface {
	// Name identifies the filter in logs and metrics.
	Name() string

	// NewReader returns a reader producing the decoded form of r.
	NewReader(r io.Reader) (io.ReadCloser, error)

	// NewWriter returns a writer encoding into w. Close flushes the
	// encoded trailer but does not close w.
	NewWriter(w io.Writer) (io.WriteCloser, error)
}

// NewReader stacks the filters over r so that reading yields the innermost
// decoded stream. Closing the result closes every filter reader.
func NewReader(r io.Reader, filters ...Filter) (io.ReadCloser, error) {
	stack := &readStack{Reader: r}
	for i := len(filters) - 1; i >= 0; i-- {
		fr, err := filters[i].NewReader(stack.Reader)
		if err != nil {
			_ = stack.Close()
			return nil, fmt.Errorf("%s: %w", filters[i].Name(), err)
		}
		stack.closers = append(stack.closers, fr)
		stack.Reader = fr
	}
	return stack, nil
}

// NewWriter stacks the filters over w. Closing the result flushes every
// filter writer innermost first; w itself is not closed.
func NewWriter(w io.Writer, filters ...Filter) (io.WriteCloser, error) {
	stack := &writeStack{Writer: w}
	for i := len(filters) - 1; i >= 0; i-- {
		fw, err := filters[i].NewWriter(stack.Writer)
		if err != nil {
			_ = stack.Close()
			return nil, fmt.Errorf("%s: %w", filters[i].Name(), err)
		}
		stack.closers = append(stack.closers, fw)
		stack.Writer = fw
	}
	return stack, nil
}

// Names returns the filter names in chain order.
func Names(filters []Filter) []string {
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		out = append(out, f.Name())
	}
	return out
}

type readStack struct {
	io.Reader
	closers []io.Closer
}

func (s *readStack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

type writeStack struct {
	io.Writer
	closers []io.Closer
}

// Close flushes the outermost writer (the last created, innermost filter)
// first so each trailer reaches the writer below it.
func (s *writeStack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
