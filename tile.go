package main

import (
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"simplemap/internal/tile"
)

// Set a safety set
type Set struct {
	sync.RWMutex
	M maptile.Set
}

// Add records num, ignoring its world copy.
func (s *Set) Add(num tile.Num) {
	s.Lock()
	defer s.Unlock()
	if s.M == nil {
		s.M = make(maptile.Set)
	}
	s.M[num.MapTile()] = true
}

func (s *Set) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.M)
}

// FeatureCollection outlines every tile of the set.
func (s *Set) FeatureCollection() *geojson.FeatureCollection {
	s.RLock()
	defer s.RUnlock()
	return s.M.ToFeatureCollection()
}
