package lookup_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/maxassist/internal/lookup"
)

func TestRenderWeather(t *testing.T) {
	t.Parallel()

	got := lookup.RenderWeather(lookup.Weather{
		Location:    "Paris",
		Temperature: 21,
		Humidity:    55,
		WindSpeed:   10,
		Condition:   "Partly Cloudy",
		Forecast:    "Expect similar conditions tomorrow.",
	})
	want := "The current weather in Paris is partly cloudy with a temperature of 21°C. " +
		"The humidity is 55% and wind speed is 10 km/h. Expect similar conditions tomorrow."
	if got != want {
		t.Errorf("RenderWeather:\n got %q\nwant %q", got, want)
	}
}

func TestRenderRoute(t *testing.T) {
	t.Parallel()

	base := lookup.Route{
		Start:       "home",
		Destination: "the airport",
		TravelTime:  "25 minutes",
		Distance:    "12 kilometers",
	}
	head := "Here are the directions from home to the airport. " +
		"The journey is approximately 12 kilometers and will take about 25 minutes."

	tests := []struct {
		name  string
		steps []string
		want  string
	}{
		{
			name:  "two or more steps",
			steps: []string{"Head left on Main Street for 500 meters", "Turn right onto Elm Street", "Arrive at your destination, the airport"},
			want:  head + " To start: Head left on Main Street for 500 meters. Then Turn right onto Elm Street.",
		},
		{
			name:  "single step",
			steps: []string{"Arrive at your destination, the airport"},
			want:  head + " To start: Arrive at your destination, the airport.",
		},
		{
			name: "no steps",
			want: head,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := base
			r.Steps = tt.steps
			if got := lookup.RenderRoute(r); got != tt.want {
				t.Errorf("RenderRoute:\n got %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestSimulator_WeatherRanges(t *testing.T) {
	t.Parallel()

	sim := lookup.NewSimulator(lookup.WithRand(rand.New(rand.NewPCG(1, 2))))
	conditions := []string{"Sunny", "Partly Cloudy", "Cloudy", "Rainy", "Thunderstorms", "Snowy", "Foggy", "Clear"}

	for range 500 {
		w, err := sim.Weather(context.Background(), " Berlin ")
		if err != nil {
			t.Fatalf("Weather: %v", err)
		}
		if w.Location != "Berlin" {
			t.Fatalf("Location = %q, want Berlin", w.Location)
		}
		if w.Temperature < 5 || w.Temperature > 34 {
			t.Errorf("Temperature %d outside [5,34]", w.Temperature)
		}
		if w.Humidity < 30 || w.Humidity > 89 {
			t.Errorf("Humidity %d outside [30,89]", w.Humidity)
		}
		if w.WindSpeed < 2 || w.WindSpeed > 21 {
			t.Errorf("WindSpeed %d outside [2,21]", w.WindSpeed)
		}
		if !slices.Contains(conditions, w.Condition) {
			t.Errorf("unexpected condition %q", w.Condition)
		}
		if w.Forecast == "" {
			t.Error("empty forecast")
		}
	}
}

func TestSimulator_DirectionsShape(t *testing.T) {
	t.Parallel()

	sim := lookup.NewSimulator(lookup.WithRand(rand.New(rand.NewPCG(3, 4))))
	for range 500 {
		r, err := sim.Directions(context.Background(), "home", "Central Station")
		if err != nil {
			t.Fatalf("Directions: %v", err)
		}
		if r.Start != "home" || r.Destination != "Central Station" {
			t.Fatalf("endpoints = %q -> %q", r.Start, r.Destination)
		}
		if n := len(r.Steps); n < 4 || n > 6 {
			t.Errorf("len(Steps) = %d, want 4..6", n)
		}
		if last := r.Steps[len(r.Steps)-1]; last != "Arrive at your destination, Central Station" {
			t.Errorf("last step = %q", last)
		}

		var minutes, km int
		if _, err := fmt.Sscanf(r.TravelTime, "%d minutes", &minutes); err != nil || minutes < 10 || minutes > 54 {
			t.Errorf("TravelTime = %q", r.TravelTime)
		}
		if _, err := fmt.Sscanf(r.Distance, "%d kilometers", &km); err != nil || km < 2 || km > 16 {
			t.Errorf("Distance = %q", r.Distance)
		}
		for _, s := range r.Steps {
			if strings.Contains(s, "%!") {
				t.Errorf("malformed step %q", s)
			}
		}
	}
}

func TestSimulator_Deterministic(t *testing.T) {
	t.Parallel()

	a := lookup.NewSimulator(lookup.WithRand(rand.New(rand.NewPCG(7, 7))))
	b := lookup.NewSimulator(lookup.WithRand(rand.New(rand.NewPCG(7, 7))))

	ctx := context.Background()
	wa, _ := a.Weather(ctx, "Oslo")
	wb, _ := b.Weather(ctx, "Oslo")
	if diff := cmp.Diff(wa, wb); diff != "" {
		t.Errorf("weather differs with same seed (-a +b):\n%s", diff)
	}
	ra, _ := a.Directions(ctx, "here", "there")
	rb, _ := b.Directions(ctx, "here", "there")
	if diff := cmp.Diff(ra, rb); diff != "" {
		t.Errorf("route differs with same seed (-a +b):\n%s", diff)
	}
}

func TestSimulator_Errors(t *testing.T) {
	t.Parallel()

	sim := lookup.NewSimulator()

	if _, err := sim.Weather(context.Background(), "  "); !errors.Is(err, lookup.ErrNoResult) {
		t.Errorf("empty location: err = %v, want ErrNoResult", err)
	}
	if _, err := sim.Directions(context.Background(), "home", ""); !errors.Is(err, lookup.ErrNoResult) {
		t.Errorf("empty destination: err = %v, want ErrNoResult", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sim.Weather(ctx, "Rome"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled ctx: err = %v, want context.Canceled", err)
	}
}
