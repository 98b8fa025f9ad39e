package pixelmap

import (
	"time"

	"github.com/sirupsen/logrus"
)

// debugStats holds per-redraw timing and command counts.
// Only logged when the scene is in debug mode.
type debugStats struct {
	traverseTime time.Duration
	submitTime   time.Duration
	commandCount int
	culled       int
}

// debugLog writes redraw stats at debug level.
func (s *GridScene) debugLog(stats debugStats) {
	if !s.debug {
		return
	}
	s.log.WithFields(logrus.Fields{
		"frame":    s.frames,
		"traverse": stats.traverseTime,
		"submit":   stats.submitTime,
		"total":    stats.traverseTime + stats.submitTime,
		"commands": stats.commandCount,
		"culled":   stats.culled,
	}).Debug("redraw")
}

// debugCheckChildCount warns if a node has more than debugMaxChildCount
// children. A full 100x100 layer sits right at the threshold.
const debugMaxChildCount = 10000

func debugCheckChildCount(n *Node) {
	if len(n.children) > debugMaxChildCount {
		logger.WithFields(logrus.Fields{
			"node":      n.Name,
			"children":  len(n.children),
			"threshold": debugMaxChildCount,
		}).Warn("node has too many children")
	}
}
