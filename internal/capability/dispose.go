package capability

import (
	"fmt"
	"io"
)

// Disposer is implemented by instances that release resources when their
// publication is withdrawn.
type Disposer interface {
	Dispose()
}

// Dispose releases instance when it is a Disposer or an io.Closer. A panic
// during disposal is returned as an error.
func Dispose(instance any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispose panicked: %v", r)
		}
	}()

	switch v := instance.(type) {
	case Disposer:
		v.Dispose()
	case io.Closer:
		return v.Close()
	}
	return nil
}
