package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidTimeFormat = errors.New("invalid time format, expected HH:MM")
	ErrInvalidWeekday    = errors.New("invalid weekday")
)

var weekdayNames = [7]string{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

// TimeToMinutes converts a zero-padded "HH:MM" clock string into the
// minute offset from midnight.
func TimeToMinutes(value string) (int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, ErrInvalidTimeFormat
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, ErrInvalidTimeFormat
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, ErrInvalidTimeFormat
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, ErrInvalidTimeFormat
	}
	return hours*60 + minutes, nil
}

// MinutesToTime is the inverse of TimeToMinutes.
func MinutesToTime(total int) string {
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// WeekdayName maps an ordinal 0-6 (Sunday = 0) to its English name.
func WeekdayName(ordinal int) (string, error) {
	if ordinal < 0 || ordinal > 6 {
		return "", ErrInvalidWeekday
	}
	return weekdayNames[ordinal], nil
}

// WeekdayOrdinal maps a weekday name back to its ordinal, Sunday = 0.
func WeekdayOrdinal(name string) (int, error) {
	for i, n := range weekdayNames {
		if strings.EqualFold(n, name) {
			return i, nil
		}
	}
	return 0, ErrInvalidWeekday
}
