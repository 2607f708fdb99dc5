package engine

import (
	"github.com/verte-zerg/klsim/internal/model"
	"github.com/verte-zerg/klsim/internal/policy"
)

// StartAVScan moves the antivirus from idle to scanning and schedules the
// detection. Calls from any other state are ignored.
func (e *Engine) StartAVScan() {
	e.update(func() bool {
		if e.st.avStatus != model.AVIdle {
			return false
		}
		e.st.avStatus = model.AVScanning
		e.st.scanCount++
		e.st.timelineStage = clampStage(model.StageScanning)
		e.metrics.AVTransition(model.AVScanning)

		dur := e.st.settings.AVScanDuration
		if dur < policy.MinScanDuration {
			dur = policy.MinScanDuration
		}
		e.scanGen++
		gen := e.scanGen
		e.scanTimer = e.clock.AfterFunc(dur, func() {
			e.completeScan(gen)
		})
		e.logger.Info("av scan started", "duration", dur, "scan", e.st.scanCount)
		return true
	})
}

func (e *Engine) completeScan(gen uint64) {
	e.update(func() bool {
		if gen != e.scanGen || e.st.avStatus != model.AVScanning {
			e.logger.Debug("stale scan completion ignored")
			return false
		}
		e.scanTimer = nil
		e.st.avStatus = model.AVDetected
		e.st.timelineStage = clampStage(model.StageDetected)
		e.metrics.AVTransition(model.AVDetected)
		e.logger.Info("threat detected")
		return true
	})
}

// QuarantineThreat moves a detected threat to quarantine.
func (e *Engine) QuarantineThreat() {
	e.update(func() bool {
		if e.st.avStatus != model.AVDetected {
			return false
		}
		e.st.avStatus = model.AVQuarantined
		e.metrics.AVTransition(model.AVQuarantined)
		e.logger.Info("threat quarantined")
		return true
	})
}

// RemoveThreat removes a detected threat.
func (e *Engine) RemoveThreat() {
	e.update(func() bool {
		if e.st.avStatus != model.AVDetected {
			return false
		}
		e.st.avStatus = model.AVRemoved
		e.st.timelineStage = clampStage(model.StageRemoved)
		e.metrics.AVTransition(model.AVRemoved)
		e.logger.Info("threat removed")
		return true
	})
}

// cancelScanLocked invalidates any pending scan callback.
func (e *Engine) cancelScanLocked() {
	if e.scanTimer != nil {
		e.scanTimer.Stop()
		e.scanTimer = nil
	}
	e.scanGen++
}
