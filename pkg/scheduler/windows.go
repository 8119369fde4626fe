package scheduler

import (
	"time"

	"github.com/quillpost/botengine/pkg/types"
)

const (
	hourWindowMs = int64(time.Hour / time.Millisecond)
	dayWindowMs  = 24 * hourWindowMs
)

// rollBotWindows resets expired rolling windows in a bot's top-level
// comment stats. A zero window start anchors at now.
func rollBotWindows(st *types.TopLevelCommentStats, nowMs int64) {
	if st.HourWindowStartMs == 0 || nowMs-st.HourWindowStartMs >= hourWindowMs {
		st.HourWindowStartMs = nowMs
		st.HourCount = 0
	}
	if st.DayWindowStartMs == 0 || nowMs-st.DayWindowStartMs >= dayWindowMs {
		st.DayWindowStartMs = nowMs
		st.DayCount = 0
	}
}

// rollGlobalWindows resets expired rolling windows in the shared global
// comment state.
func rollGlobalWindows(g *types.GlobalCommentState, nowMs int64) {
	if g.HourWindowStartMs == 0 || nowMs-g.HourWindowStartMs >= hourWindowMs {
		g.HourWindowStartMs = nowMs
		g.HourCount = 0
	}
	if g.DayWindowStartMs == 0 || nowMs-g.DayWindowStartMs >= dayWindowMs {
		g.DayWindowStartMs = nowMs
		g.DayCount = 0
	}
}
