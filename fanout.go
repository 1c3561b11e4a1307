package locator

import (
	"fmt"

	"github.com/xraph/locator/errors"
	"github.com/xraph/locator/internal/capability"
	"github.com/xraph/locator/logger"
)

// Fanout calls every provider of T live at the time of the call. A
// provider that panics is skipped and reported as an error.
type Fanout[T any] struct {
	many   Many[T]
	logger logger.Logger
}

func newFanout[T any](src capability.Source, l logger.Logger) Fanout[T] {
	return Fanout[T]{many: capability.NewMany[T](src), logger: l}
}

// Len returns the number of live providers.
func (f Fanout[T]) Len() int {
	return f.many.Len()
}

// Each calls fn for every provider and joins the errors returned.
func (f Fanout[T]) Each(fn func(T) error) error {
	var errs []error
	for p := range f.many.All() {
		if err := f.call(p, fn); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// First returns the first provider for which fn reports true.
func (f Fanout[T]) First(fn func(T) bool) (T, bool) {
	for p := range f.many.All() {
		var ok bool
		err := f.call(p, func(v T) error {
			ok = fn(v)
			return nil
		})
		if err == nil && ok {
			return p, true
		}
	}
	var zero T
	return zero, false
}

func (f Fanout[T]) call(p T, fn func(T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider %T panicked: %v", p, r)
			if f.logger != nil {
				f.logger.Warn("fan-out provider panicked", logger.Error(err))
			}
		}
	}()
	return fn(p)
}

// Collect calls fn for every provider and returns the results of those
// that did not fail.
func Collect[T, R any](f Fanout[T], fn func(T) (R, error)) ([]R, error) {
	var out []R
	err := f.Each(func(p T) error {
		r, err := fn(p)
		if err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}
