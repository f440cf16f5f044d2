package attendance

import "classroom/internal/model"

// BonusEvery is the streak length that earns one bonus unit.
const BonusEvery = 5

// Advance applies a mark for day to st and returns the new state and the
// bonus units it earned.
//
// absent resets the streak, late changes nothing. present extends the streak
// when day follows the last present day, restarts it after a gap and ignores
// days at or before the last present day.
func Advance(st model.Streak, status model.AttendanceStatus, day model.Date) (model.Streak, int) {
	before := st.Current
	switch status {
	case model.AttendanceAbsent:
		st.Current = 0
	case model.AttendanceLate:
		return st, 0
	case model.AttendancePresent:
		if st.LastPresent == nil {
			st.Current = 1
		} else {
			switch diff := day.DaysSince(*st.LastPresent); {
			case diff <= 0:
				return st, 0
			case diff == 1:
				st.Current++
			default:
				st.Current = 1
			}
		}
		d := day
		st.LastPresent = &d
	}

	if st.Current != before && st.Current > 0 && st.Current%BonusEvery == 0 {
		st.Bonus++
		return st, 1
	}
	return st, 0
}
