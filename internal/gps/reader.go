// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

var (
	// ErrNotRMC is returned for lines that are not RMC sentences.
	ErrNotRMC = errors.New("gps: not an RMC sentence")
	// ErrNoFix is returned for RMC sentences flagged void.
	ErrNoFix = errors.New("gps: receiver has no fix")
)

// ParseLine parses one NMEA line. Only RMC sentences carry a fix; anything
// else yields ErrNotRMC.
func ParseLine(line string) (Fix, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Fix{}, ErrNotRMC
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return Fix{}, fmt.Errorf("gps: %w", err)
	}
	if sentence.DataType() != nmea.TypeRMC {
		return Fix{}, ErrNotRMC
	}

	fix := FixFromRMC(sentence.(nmea.RMC))
	if !fix.Valid() {
		return fix, ErrNoFix
	}
	return fix, nil
}

// ReadFixes reads NMEA lines from r and calls fn with every valid fix until
// r is exhausted, ctx is done or fn fails. Malformed lines and void fixes
// are passed to skip, which may be nil.
func ReadFixes(ctx context.Context, r io.Reader, fn func(Fix) error, skip func(line string, err error)) error {
	reader := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadString('\n')
		if line != "" {
			fix, perr := ParseLine(line)
			switch {
			case perr == nil:
				if ferr := fn(fix); ferr != nil {
					return ferr
				}
			case errors.Is(perr, ErrNotRMC) && !strings.HasPrefix(strings.TrimSpace(line), "$"):
				// noise between sentences
			case skip != nil:
				skip(strings.TrimSpace(line), perr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("gps: read: %w", err)
		}
	}
}
