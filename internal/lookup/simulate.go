package lookup

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

var (
	conditions = []string{"Sunny", "Partly Cloudy", "Cloudy", "Rainy", "Thunderstorms", "Snowy", "Foggy", "Clear"}

	forecasts = []string{
		"Expect similar conditions tomorrow.",
		"Weather will improve over the next few days.",
		"A cold front is expected later this week.",
		"Conditions should remain stable for the next few days.",
		"Chance of precipitation increasing tomorrow.",
	}

	turns   = []string{"left", "right"}
	exits   = []string{"first", "second", "third"}
	streets = []string{"Elm", "Cedar", "Walnut", "Birch", "Spruce", "Willow", "Aspen"}
)

// Simulator produces random but plausible weather and directions without
// contacting any external service. It is safe for concurrent use.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var (
	_ WeatherSource    = (*Simulator)(nil)
	_ DirectionsSource = (*Simulator)(nil)
)

// SimulatorOption configures a [Simulator].
type SimulatorOption func(*Simulator)

// WithRand injects the random source. Tests use a seeded source to make
// results deterministic.
func WithRand(r *rand.Rand) SimulatorOption {
	return func(s *Simulator) { s.rng = r }
}

// NewSimulator creates a Simulator.
func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{}
	for _, o := range opts {
		o(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// Weather implements [WeatherSource]. Temperature is 5-34 °C, humidity
// 30-89 % and wind 2-21 km/h.
func (s *Simulator) Weather(ctx context.Context, location string) (Weather, error) {
	if err := ctx.Err(); err != nil {
		return Weather{}, err
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return Weather{}, fmt.Errorf("simulated weather: empty location: %w", ErrNoResult)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return Weather{
		Location:    location,
		Condition:   s.pick(conditions),
		Temperature: s.rng.IntN(30) + 5,
		Humidity:    s.rng.IntN(60) + 30,
		WindSpeed:   s.rng.IntN(20) + 2,
		Forecast:    s.pick(forecasts),
	}, nil
}

// Directions implements [DirectionsSource]. The route takes 10-54 minutes,
// covers 2-16 kilometers and has 3-5 random steps plus an arrival step.
func (s *Simulator) Directions(ctx context.Context, from, to string) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if to == "" {
		return Route{}, fmt.Errorf("simulated directions: empty destination: %w", ErrNoResult)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	minutes := s.rng.IntN(45) + 10
	km := s.rng.IntN(15) + 2
	templates := s.stepTemplates(to)

	n := s.rng.IntN(3) + 3
	steps := make([]string, 0, n+1)
	for range n {
		steps = append(steps, s.pick(templates))
	}
	steps = append(steps, "Arrive at your destination, "+to)

	return Route{
		Start:       from,
		Destination: to,
		TravelTime:  fmt.Sprintf("%d minutes", minutes),
		Distance:    fmt.Sprintf("%d kilometers", km),
		Steps:       steps,
	}, nil
}

// stepTemplates fills the step catalogue once per route, so repeated picks of
// the same template read identically. Callers hold s.mu.
func (s *Simulator) stepTemplates(to string) []string {
	return []string{
		fmt.Sprintf("Head %s on Main Street for 500 meters", s.pick(turns)),
		fmt.Sprintf("Turn %s onto Oak Avenue and continue for 1.2 kilometers", s.pick(turns)),
		fmt.Sprintf("At the roundabout, take the %s exit onto Pine Road", s.pick(exits)),
		"Continue straight onto Maple Boulevard for 800 meters",
		fmt.Sprintf("Turn %s at the light and proceed for 600 meters", s.pick(turns)),
		fmt.Sprintf("Merge onto the highway and continue for %d kilometers", s.rng.IntN(5)+1),
		fmt.Sprintf("Take exit %d toward %s", s.rng.IntN(20)+1, to),
		fmt.Sprintf("Turn %s onto %s Street", s.pick(turns), s.pick(streets)),
	}
}

func (s *Simulator) pick(pool []string) string {
	return pool[s.rng.IntN(len(pool))]
}
