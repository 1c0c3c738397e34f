package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/chatlogs/logscrape/driver"
)

// display is an Xvfb server backing a headful Chrome.
type display struct {
	name   string
	cmd    *exec.Cmd
	logger *slog.Logger
}

// displayReady bounds the wait for the X socket of a new display.
const displayReady = 5 * time.Second

// startDisplay runs Xvfb on name with a width x height screen and returns
// once its socket accepts clients.
func startDisplay(ctx context.Context, name string, width, height int, logger *slog.Logger) (*display, error) {
	sock, err := displaySocket(name)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("Xvfb", name, "-screen", "0", fmt.Sprintf("%dx%dx24", width, height), "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	d := &display{name: name, cmd: cmd, logger: logger}

	deadline := time.Now().Add(displayReady)
	for {
		if _, err := os.Stat(sock); err == nil {
			break
		}
		if time.Now().After(deadline) {
			d.stop()
			return nil, fmt.Errorf("display %s not ready after %v", name, displayReady)
		}
		if err := driver.Sleep(ctx, 50*time.Millisecond); err != nil {
			d.stop()
			return nil, err
		}
	}
	logger.Info("browser: xvfb started", "display", name, "pid", cmd.Process.Pid)
	return d, nil
}

// displaySocket maps an X display name such as ":99" or ":99.0" to the
// Unix socket Xvfb creates for it.
func displaySocket(name string) (string, error) {
	num, ok := strings.CutPrefix(name, ":")
	if !ok {
		return "", fmt.Errorf("display %q: want :N", name)
	}
	num, _, _ = strings.Cut(num, ".")
	if num == "" || strings.Trim(num, "0123456789") != "" {
		return "", fmt.Errorf("display %q: want :N", name)
	}
	return filepath.Join("/tmp/.X11-unix", "X"+num), nil
}

func (d *display) stop() {
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
		d.cmd.Wait()
	}
	d.logger.Info("browser: xvfb stopped", "display", d.name)
}
