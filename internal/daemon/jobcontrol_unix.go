//go:build !windows

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// watchJobControl treats SIGTSTP as moving to the background and SIGCONT
// as returning to the foreground
func (d *Daemon) watchJobControl(ctx context.Context) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGTSTP, syscall.SIGCONT)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGTSTP:
				d.lifecycle.Background()
				if err := SuspendProcess(); err != nil {
					d.logger.Warn().Err(err).Msg("Failed to stop process")
				}
			case syscall.SIGCONT:
				d.lifecycle.Foreground(ctx)
			}
		}
	}
}

// SuspendProcess stops the current process until it receives SIGCONT
func SuspendProcess() error {
	return syscall.Kill(syscall.Getpid(), syscall.SIGSTOP)
}
