package schedule

import (
	"time"
)

// Resolver derives session state for a doctor on a date. It is the single
// authority for a session's effective end: breaks never extend a session on
// their own, only a recorded SessionExtension moves the end.
type Resolver struct{}

// ResolveSession folds stored breaks and any confirmed extension for the
// given session into a SessionInfo.
func (Resolver) ResolveSession(doc *Doctor, date time.Time, sessionIndex int) (SessionInfo, error) {
	sessions := doc.SessionsOn(date)
	if len(sessions) == 0 {
		return SessionInfo{}, ErrNoSessions
	}
	if sessionIndex < 0 || sessionIndex >= len(sessions) {
		return SessionInfo{}, ErrNoSuchSession
	}

	win := sessions[sessionIndex]
	start := win.Start.On(date)
	end := win.End.On(date)

	breaks := Resolver{}.SessionBreaks(doc, date, sessionIndex)

	info := SessionInfo{
		SessionIndex:      sessionIndex,
		Start:             start,
		End:               end,
		Breaks:            breaks,
		TotalBreakMinutes: TotalBreakMinutes(breaks),
		EffectiveEnd:      end,
		OriginalEnd:       end,
	}

	if ext, ok := extensionFor(doc, date, sessionIndex); ok {
		info.EffectiveEnd = end.Add(time.Duration(ext.TotalExtendedMinutes) * time.Minute)
	}

	return info, nil
}

// CurrentActiveSession returns the session whose [start, effectiveEnd)
// window contains now, or false when no session is active.
func (r Resolver) CurrentActiveSession(doc *Doctor, now, date time.Time) (SessionInfo, bool) {
	sessions := doc.SessionsOn(date)
	for i := range sessions {
		info, err := r.ResolveSession(doc, date, i)
		if err != nil {
			continue
		}
		if !now.Before(info.Start) && now.Before(info.EffectiveEnd) {
			return info, true
		}
	}
	return SessionInfo{}, false
}

// ActiveOrUpcomingSession is the fallback used outside active hours: the
// active session if any, else the next session that has not yet ended, else
// the last session of the day so break scheduling stays possible.
func (r Resolver) ActiveOrUpcomingSession(doc *Doctor, now, date time.Time) (SessionInfo, error) {
	if info, ok := r.CurrentActiveSession(doc, now, date); ok {
		return info, nil
	}

	sessions := doc.SessionsOn(date)
	if len(sessions) == 0 {
		return SessionInfo{}, ErrNoSessions
	}

	for i := range sessions {
		info, err := r.ResolveSession(doc, date, i)
		if err != nil {
			return SessionInfo{}, err
		}
		if now.Before(info.EffectiveEnd) {
			return info, nil
		}
	}

	return r.ResolveSession(doc, date, len(sessions)-1)
}

// SessionBreaks filters the date's stored breaks down to one session.
func (Resolver) SessionBreaks(doc *Doctor, date time.Time, sessionIndex int) []BreakPeriod {
	stored := doc.Breaks[date.Format(DateLayout)]
	return breaksForSession(stored, sessionIndex)
}

// SessionEndOn returns the template end time for the session on the date
// with no extension applied. This is the baseline for overrun detection.
func (Resolver) SessionEndOn(doc *Doctor, date time.Time, sessionIndex int) (time.Time, error) {
	sessions := doc.SessionsOn(date)
	if sessionIndex < 0 || sessionIndex >= len(sessions) {
		return time.Time{}, ErrNoSuchSession
	}
	return sessions[sessionIndex].End.On(date), nil
}

func extensionFor(doc *Doctor, date time.Time, sessionIndex int) (SessionExtension, bool) {
	for _, ext := range doc.Extensions[date.Format(DateLayout)] {
		if ext.SessionIndex == sessionIndex {
			return ext, true
		}
	}
	return SessionExtension{}, false
}
