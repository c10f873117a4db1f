//go:build windows

package daemon

import (
	"context"
	"errors"
)

func (d *Daemon) watchJobControl(ctx context.Context) {
	<-ctx.Done()
}

// SuspendProcess is not supported on Windows
func SuspendProcess() error {
	return errors.New("job control is not supported on windows")
}
