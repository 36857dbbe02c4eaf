// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package firebase

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Event is one server-sent event from a REST stream.
type Event struct {
	Name string
	Data string
}

// ParseEvents reads an event stream and calls fn for every complete event.
// It returns nil at EOF and stops early when fn returns an error.
func ParseEvents(r io.Reader, fn func(Event) error) error {
	br := bufio.NewReader(r)
	var (
		ev   Event
		data []string
	)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimRight(line, "\r\n")
			switch {
			case line == "":
				if ev.Name != "" || len(data) > 0 {
					ev.Data = strings.Join(data, "\n")
					if ferr := fn(ev); ferr != nil {
						return ferr
					}
				}
				ev, data = Event{}, nil
			case strings.HasPrefix(line, ":"):
			default:
				field, value, _ := strings.Cut(line, ":")
				value = strings.TrimPrefix(value, " ")
				switch field {
				case "event":
					ev.Name = value
				case "data":
					data = append(data, value)
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Tree is the locally cached value of one streamed path.
type Tree struct {
	value any
}

type change struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

// Apply merges a put or patch event. changed is false when the cached value
// is the same afterwards.
func (t *Tree) Apply(ev Event) (changed bool, err error) {
	var c change
	if err := json.Unmarshal([]byte(ev.Data), &c); err != nil {
		return false, fmt.Errorf("decode %s event: %w", ev.Name, err)
	}
	var data any
	if len(c.Data) > 0 {
		if err := json.Unmarshal(c.Data, &data); err != nil {
			return false, fmt.Errorf("decode %s data: %w", ev.Name, err)
		}
	}

	before := t.Raw()
	segs := splitPath(c.Path)
	switch ev.Name {
	case "put":
		t.value = setAt(t.value, segs, data)
	case "patch":
		fields, ok := data.(map[string]any)
		if !ok {
			return false, fmt.Errorf("patch data is not an object")
		}
		for k, v := range fields {
			t.value = setAt(t.value, append(append([]string(nil), segs...), splitPath(k)...), v)
		}
	default:
		return false, fmt.Errorf("unsupported event %q", ev.Name)
	}
	return !bytes.Equal(before, t.Raw()), nil
}

// Raw returns the cached value as JSON, nil when empty.
func (t *Tree) Raw() json.RawMessage {
	if t.value == nil {
		return nil
	}
	raw, err := json.Marshal(t.value)
	if err != nil {
		return nil
	}
	return raw
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// setAt writes v below root. A nil v deletes, and emptied objects collapse
// to nil the way the database prunes them.
func setAt(root any, segs []string, v any) any {
	if len(segs) == 0 {
		return v
	}
	m, ok := root.(map[string]any)
	if !ok {
		if v == nil {
			return root
		}
		m = make(map[string]any)
	}
	child := setAt(m[segs[0]], segs[1:], v)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
