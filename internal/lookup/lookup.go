// Package lookup provides the structured data collaborators used to answer
// weather and directions questions.
//
// Each collaborator fetches a structured result ([Weather], [Route]) and the
// package offers a pure rendering function that turns the result into the
// sentence spoken back to the user. Two implementations exist: [Simulator]
// produces plausible random data offline, and [MCPSource] calls tools on a
// Model Context Protocol server.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoResult is returned when a source answered but had nothing usable for
// the query.
var ErrNoResult = errors.New("lookup: no result")

// Weather is a current-conditions report for one location.
type Weather struct {
	Location    string `json:"location"`
	Temperature int    `json:"temperature"`
	Humidity    int    `json:"humidity"`
	WindSpeed   int    `json:"wind_speed"`
	Condition   string `json:"condition"`
	Forecast    string `json:"forecast"`
}

// Route is a set of driving directions between two places.
type Route struct {
	Start       string   `json:"start"`
	Destination string   `json:"destination"`
	TravelTime  string   `json:"travel_time"`
	Distance    string   `json:"distance"`
	Steps       []string `json:"steps"`
}

// WeatherSource fetches the current weather for a location.
type WeatherSource interface {
	Weather(ctx context.Context, location string) (Weather, error)
}

// DirectionsSource fetches directions between two places.
type DirectionsSource interface {
	Directions(ctx context.Context, from, to string) (Route, error)
}

// RenderWeather renders w as a spoken sentence.
func RenderWeather(w Weather) string {
	return fmt.Sprintf(
		"The current weather in %s is %s with a temperature of %d°C. The humidity is %d%% and wind speed is %d km/h. %s",
		w.Location, strings.ToLower(w.Condition), w.Temperature, w.Humidity, w.WindSpeed, w.Forecast,
	)
}

// RenderRoute renders r as a spoken summary. Only the first two steps are
// read out; a route with fewer steps omits the missing sentences.
func RenderRoute(r Route) string {
	var b strings.Builder
	fmt.Fprintf(&b,
		"Here are the directions from %s to %s. The journey is approximately %s and will take about %s.",
		r.Start, r.Destination, r.Distance, r.TravelTime,
	)
	if len(r.Steps) > 0 {
		b.WriteString(" To start: " + r.Steps[0] + ".")
	}
	if len(r.Steps) > 1 {
		b.WriteString(" Then " + r.Steps[1] + ".")
	}
	return b.String()
}
