package stats

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
)

const viewerPath = "/debug/statsview"

// Viewer serves runtime statistics (goroutines, heap, GC) over HTTP.
type Viewer struct {
	mgr *statsview.ViewManager
}

// LaunchViewer starts the statsview server on addr in a new goroutine.
//
// Graphical statistics are then viewable at <addr>/debug/statsview and the
// standard pprof endpoints at <addr>/debug/pprof/.
func LaunchViewer(addr string, output io.Writer) *Viewer {
	viewer.SetConfiguration(viewer.WithAddr(addr))
	mgr := statsview.New()

	go func() {
		// Start blocks until Stop
		mgr.Start()
	}()

	slog.Info("stats: viewer started", "addr", addr)
	if output != nil {
		fmt.Fprintf(output, "stats server available at %s%s\n", addr, viewerPath)
	}

	return &Viewer{mgr: mgr}
}

// Stop shuts the viewer down. Safe on a nil viewer.
func (v *Viewer) Stop() {
	if v == nil {
		return
	}
	v.mgr.Stop()
}
