// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gps turns NMEA output of a serial GPS receiver into location
// records for the dashboard.
package gps

import (
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// Fix is one location record as written to the location path. The dashboard
// reads lat and lon; the rest is for consoles and logs.
type Fix struct {
	Time       string  `json:"time,omitempty"`        // e.g. "12:34:56.0000"
	Date       string  `json:"date,omitempty"`        // e.g. "06/12/25"
	Latitude   float64 `json:"lat"`                   // decimal degrees
	Longitude  float64 `json:"lon"`                   // decimal degrees
	SpeedKnots float64 `json:"speed_knots,omitempty"` // speed over ground
	CourseDeg  float64 `json:"course_deg,omitempty"`  // course over ground
	Validity   string  `json:"validity"`              // "A" valid, "V" void
}

// Valid reports whether the receiver had a fix.
func (f Fix) Valid() bool {
	return f.Validity == nmea.ValidRMC
}

// FixFromRMC copies an RMC sentence into a Fix.
func FixFromRMC(m nmea.RMC) Fix {
	return Fix{
		Time:       m.Time.String(),
		Date:       m.Date.String(),
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		SpeedKnots: m.Speed,
		CourseDeg:  m.Course,
		Validity:   m.Validity,
	}
}

// SyntheticFix builds a valid fix at lat, lon stamped with t, for producers
// that have no receiver.
func SyntheticFix(lat, lon float64, t time.Time) Fix {
	t = t.UTC()
	return Fix{
		Time:      t.Format("15:04:05.0000"),
		Date:      t.Format("02/01/06"),
		Latitude:  lat,
		Longitude: lon,
		Validity:  nmea.ValidRMC,
	}
}
