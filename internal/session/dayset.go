package session

// DaySet is a bitmap of days-of-month (1-31) with activity.
type DaySet uint32

func (d DaySet) Has(day int) bool {
	if day < 1 || day > 31 {
		return false
	}
	return d&(1<<uint(day)) != 0
}

func (d DaySet) With(day int) DaySet {
	if day < 1 || day > 31 {
		return d
	}
	return d | 1<<uint(day)
}

func (d DaySet) Empty() bool {
	return d == 0
}

// Days lists the set days in ascending order.
func (d DaySet) Days() []int {
	if d == 0 {
		return nil
	}
	days := make([]int, 0, 8)
	for day := 1; day <= 31; day++ {
		if d&(1<<uint(day)) != 0 {
			days = append(days, day)
		}
	}
	return days
}

// Union merges two day sets.
func (d DaySet) Union(other DaySet) DaySet {
	return d | other
}
