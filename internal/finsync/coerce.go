package finsync

import (
	"strconv"
	"time"
)

// The API ships numbers and dates as strings. Unparseable numerics coerce to
// zero rather than failing the record; unparseable dates become NULL. That
// matches how the rest of the pipeline treats missing data.

func toFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func toInt64(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func toInt(s string) int {
	return int(toInt64(s))
}

// epochTime converts epoch-seconds-as-string to UTC time. Zero and negative
// epochs are Dolibarr's way of saying "not set".
func epochTime(s string) *time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}

func optInt64(s string) *int64 {
	n := toInt64(s)
	if n <= 0 {
		return nil
	}
	return &n
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
