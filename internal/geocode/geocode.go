// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package geocode turns walker positions into street addresses.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"googlemaps.github.io/maps"

	"github.com/relabs-tech/navigation_guide/internal/geomap"
)

// ErrNoResult is returned when no address is known for a position.
var ErrNoResult = errors.New("geocode: no address found")

// Resolver looks up the address of a position.
type Resolver interface {
	Reverse(ctx context.Context, p geomap.LatLng) (string, error)
}

// Google resolves addresses with the Google Maps Geocoding API.
type Google struct {
	client *maps.Client
}

// NewGoogle creates a resolver using apiKey. Extra options are passed to the
// maps client.
func NewGoogle(apiKey string, opts ...maps.ClientOption) (*Google, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("error creating Google Maps client: %w", err)
	}
	return &Google{client: client}, nil
}

// Reverse returns the formatted address closest to p.
func (g *Google) Reverse(ctx context.Context, p geomap.LatLng) (string, error) {
	resp, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: p.Lat, Lng: p.Lon},
	})
	if err != nil {
		return "", fmt.Errorf("error requesting reverse geocode from google: %w", err)
	}
	if len(resp) == 0 || resp[0].FormattedAddress == "" {
		return "", ErrNoResult
	}
	return resp[0].FormattedAddress, nil
}

// Cached reuses the last address until the position moves more than
// minMove meters.
type Cached struct {
	next    Resolver
	minMove float64

	mu   sync.Mutex
	have bool
	last geomap.LatLng
	addr string
}

// NewCached wraps next.
func NewCached(next Resolver, minMove float64) *Cached {
	return &Cached{next: next, minMove: minMove}
}

// Reverse implements Resolver.
func (c *Cached) Reverse(ctx context.Context, p geomap.LatLng) (string, error) {
	c.mu.Lock()
	if c.have && geomap.Distance(c.last, p) < c.minMove {
		addr := c.addr
		c.mu.Unlock()
		return addr, nil
	}
	c.mu.Unlock()

	addr, err := c.next.Reverse(ctx, p)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.have = true
	c.last = p
	c.addr = addr
	c.mu.Unlock()
	return addr, nil
}

// Follower resolves positions in the background, one at a time, always
// skipping to the newest position offered.
type Follower struct {
	resolver Resolver
	timeout  time.Duration
	fn       func(p geomap.LatLng, addr string, err error)
	latest   chan geomap.LatLng
}

// NewFollower calls fn with the result of every lookup it makes.
func NewFollower(r Resolver, timeout time.Duration, fn func(p geomap.LatLng, addr string, err error)) *Follower {
	return &Follower{
		resolver: r,
		timeout:  timeout,
		fn:       fn,
		latest:   make(chan geomap.LatLng, 1),
	}
}

// Offer queues p, replacing a position not yet looked up. It never blocks.
func (f *Follower) Offer(p geomap.LatLng) {
	for {
		select {
		case f.latest <- p:
			return
		default:
		}
		select {
		case <-f.latest:
		default:
		}
	}
}

// Run looks up offered positions until ctx is done.
func (f *Follower) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-f.latest:
			lookupCtx, cancel := context.WithTimeout(ctx, f.timeout)
			addr, err := f.resolver.Reverse(lookupCtx, p)
			cancel()
			if ctx.Err() != nil {
				return
			}
			f.fn(p, addr, err)
		}
	}
}
