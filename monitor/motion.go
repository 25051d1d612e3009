package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/ilievs/panelagent/core"
)

const (
	PrefMotionEnabled     = "motion-enabled"
	PrefMotionItem        = "motion-item"
	PrefMotionGranularity = "motion-granularity"
	PrefMotionLeniency    = "motion-leniency"
	PrefMotionFPS         = "motion-fps"

	MotionStatusKey = "Motion Detection"

	DefaultMotionGranularity = 20
	DefaultMotionLeniency    = 20
	DefaultMotionFPS         = 2
)

// Camera delivers preview frames as luma data. onEnd is called once, from the
// frame goroutine, when the preview stops on its own. StopPreview must not return
// while a callback is still running.
type Camera interface {
	Lock() error
	Unlock()
	StartPreview(onFrame func(*LumaData), onEnd func(error)) error
	StopPreview()
}

// MotionMonitor runs a MotionDetector over camera previews and reports motion to
// one item, CLOSED while motion is seen and OPEN otherwise.
type MotionMonitor struct {
	conn   core.ServerConnection
	camera Camera
	logger *slog.Logger

	mu        sync.Mutex
	enabled   bool
	locked    bool
	item      atomic.Pointer[string]
	previewOn atomic.Bool
	cameraErr atomic.Pointer[string]

	valMu     sync.Mutex
	detector  *MotionDetector
	limiter   *rate.Limiter
	motion    bool
	hasMotion bool
	itemState string
}

func NewMotionMonitor(conn core.ServerConnection, camera Camera, logger *slog.Logger) *MotionMonitor {
	m := &MotionMonitor{
		conn:     conn,
		camera:   camera,
		logger:   logger.With("monitor", "motion"),
		detector: NewMotionDetector(DefaultMotionGranularity, DefaultMotionLeniency),
		limiter:  rate.NewLimiter(rate.Limit(DefaultMotionFPS), 1),
	}
	empty := ""
	m.item.Store(&empty)
	m.cameraErr.Store(&empty)
	return m
}

func (m *MotionMonitor) UpdateFromPreferences(prefs core.Preferences) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := prefs.GetString(PrefMotionItem, "")
	if old := m.item.Swap(&item); *old != item {
		m.valMu.Lock()
		m.itemState = ""
		m.hasMotion = false
		m.valMu.Unlock()
	}

	granularity := prefs.GetInt(PrefMotionGranularity, DefaultMotionGranularity)
	leniency := prefs.GetInt(PrefMotionLeniency, DefaultMotionLeniency)
	fps := prefs.GetInt(PrefMotionFPS, DefaultMotionFPS)
	if granularity <= 0 {
		granularity = DefaultMotionGranularity
	}
	if fps <= 0 {
		fps = DefaultMotionFPS
	}
	m.valMu.Lock()
	m.detector.Configure(granularity, max(leniency, 0))
	m.limiter.SetLimit(rate.Limit(fps))
	m.valMu.Unlock()

	enabled := prefs.GetBool(PrefMotionEnabled, false)
	m.enabled = enabled
	switch {
	case !enabled:
		m.stopCamera()
	case !m.previewOn.Load():
		// first enable, or a retry after the camera failed or its stream ended
		m.startCamera()
	}

	if enabled {
		m.conn.SubscribeItems(m, item)
	} else {
		m.conn.SubscribeItems(m)
	}
}

func (m *MotionMonitor) startCamera() {
	m.releaseCamera()

	if err := m.camera.Lock(); err != nil {
		m.setCameraErr(err)
		m.logger.Warn("failed to lock camera", "error", err)
		return
	}
	m.locked = true
	m.previewOn.Store(true)
	if err := m.camera.StartPreview(m.onFrame, m.onPreviewEnd); err != nil {
		m.previewOn.Store(false)
		m.setCameraErr(err)
		m.logger.Warn("failed to start camera preview", "error", err)
		m.releaseCamera()
		return
	}
	m.setCameraErr(nil)
	m.logger.Debug("camera preview started")
}

func (m *MotionMonitor) stopCamera() {
	m.previewOn.Store(false)
	m.releaseCamera()
}

// releaseCamera stops the preview and gives the camera back. mu must be held.
func (m *MotionMonitor) releaseCamera() {
	if !m.locked {
		return
	}
	m.camera.StopPreview()
	m.camera.Unlock()
	m.locked = false
	m.logger.Debug("camera released")
}

func (m *MotionMonitor) onPreviewEnd(err error) {
	if !m.previewOn.CompareAndSwap(true, false) {
		return
	}
	if err == nil {
		err = errors.New("camera preview ended")
	}
	m.setCameraErr(err)
	m.logger.Warn("camera preview ended, will retry on next preferences update", "error", err)
}

func (m *MotionMonitor) setCameraErr(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	m.cameraErr.Store(&msg)
}

func (m *MotionMonitor) onFrame(l *LumaData) {
	if !m.previewOn.Load() {
		return
	}
	item := *m.item.Load()

	m.valMu.Lock()
	if !m.limiter.Allow() {
		m.valMu.Unlock()
		return
	}
	changed, ok := m.detector.Detect(l)
	if !ok {
		m.valMu.Unlock()
		return
	}
	motion := len(changed) > 0
	push := !m.hasMotion || motion != m.motion
	m.motion = motion
	m.hasMotion = true
	m.valMu.Unlock()

	if push && item != "" {
		m.logger.Debug("motion state changed", "motion", motion, "boxes", len(changed))
		m.conn.UpdateState(item, core.BoolState(motion))
	}
}

func (m *MotionMonitor) ItemUpdated(name string, value string) {
	if name == "" || name != *m.item.Load() {
		return
	}
	m.valMu.Lock()
	m.itemState = value
	m.valMu.Unlock()
}

func (m *MotionMonitor) ReportStatus(sink core.StatusSink) {
	m.mu.Lock()
	enabled := m.enabled
	m.mu.Unlock()

	if !enabled {
		sink.Set(MotionStatusKey, StatusDisabled)
		return
	}

	item := *m.item.Load()
	if item == "" {
		sink.Set(MotionStatusKey, StatusEnabled)
		return
	}

	m.valMu.Lock()
	motion := "unknown"
	if m.hasMotion {
		motion = fmt.Sprintf("%t", m.motion)
	}
	state := m.itemState
	m.valMu.Unlock()

	if !m.previewOn.Load() {
		if cameraErr := *m.cameraErr.Load(); cameraErr != "" {
			motion = "camera error: " + cameraErr
		}
	}

	sink.Set(MotionStatusKey, fmt.Sprintf("%s\nMotion: %s (%s: %s)", StatusEnabled, motion, item, orUnknown(state)))
}

func (m *MotionMonitor) Terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCamera()
	m.enabled = false
	m.conn.SubscribeItems(m)
}
