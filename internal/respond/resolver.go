// Package respond turns a classified utterance into reply text.
//
// A [Resolver] routes each utterance, chooses how to answer it and records
// the exchange in the session's conversation memory. Answers come from one
// of four strategies: a pure computation (arithmetic, time, date), a random
// pick from a canned pool, a structured lookup rendered as a sentence
// (weather, directions), or escalation to the generative model.
//
// Resolution never fails. Lookup errors become an apology, and a generative
// escalation that errors, times out or returns a degenerate reply falls
// back to the fallback pool.
package respond

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/maxassist/internal/config"
	"github.com/MrWong99/maxassist/internal/convo"
	"github.com/MrWong99/maxassist/internal/generate"
	"github.com/MrWong99/maxassist/internal/intent"
	"github.com/MrWong99/maxassist/internal/lookup"
	"github.com/MrWong99/maxassist/internal/observe"
)

// Strategy names how a reply was produced.
type Strategy string

const (
	StrategyTemplate  Strategy = "template"
	StrategyCompute   Strategy = "compute"
	StrategyLookup    Strategy = "lookup"
	StrategyGenerated Strategy = "generated"
	StrategyDegraded  Strategy = "degraded"
)

// Generator produces free-form replies. [*generate.Model] implements it.
type Generator interface {
	Generate(ctx context.Context, req generate.Request) (string, error)
}

// Reply is the outcome of resolving one utterance.
type Reply struct {
	Text     string
	Intent   intent.Intent
	Strategy Strategy

	// Escalated is true when the generative path was attempted, whether or
	// not it succeeded.
	Escalated bool

	// Sticky is true when the intent was inherited from the previous turn.
	Sticky bool

	// Reminder is set when the user asked to be reminded of something after
	// a delay. Scheduling it is the caller's job.
	Reminder *Reminder
}

// Reminder is a confirmed request to speak Text after After has elapsed.
type Reminder struct {
	Task  string
	After time.Duration
	Text  string
}

// Config tunes a [Resolver].
type Config struct {
	// AssistantName is used in canned replies. Default: "Max".
	AssistantName string

	// DefaultLocation answers weather questions that name no place when the
	// user's location is unknown.
	DefaultLocation string

	// Location is the time zone for time and date replies. Default: time.Local.
	Location *time.Location

	// GenerationEnabled turns escalation on.
	GenerationEnabled bool

	// EscalationThreshold: when the fallback streak before the current turn
	// exceeds this value, the turn escalates regardless of intent.
	// Default: 1.
	EscalationThreshold int

	// MinChars is the shortest generated reply accepted. Default: 8.
	MinChars int

	// HistoryTurns is how many recent exchanges are sent to the model.
	// Default: 3.
	HistoryTurns int

	// LookupTimeout bounds one weather or directions lookup. Default: 5s.
	LookupTimeout time.Duration
}

// ConfigFrom derives resolver settings from the application configuration.
// cfg must have had defaults applied.
func ConfigFrom(cfg *config.Config) Config {
	loc := time.Local
	if tz := cfg.Assistant.Timezone; tz != "" && tz != "Local" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	return Config{
		AssistantName:       cfg.Assistant.Name,
		DefaultLocation:     cfg.Assistant.DefaultLocation,
		Location:            loc,
		GenerationEnabled:   cfg.Generation.IsEnabled(),
		EscalationThreshold: cfg.Generation.EscalationThreshold,
		MinChars:            cfg.Generation.MinChars,
		LookupTimeout:       cfg.Lookup.Timeout,
	}
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithGenerator sets the generative collaborator. Without one, escalation
// always degrades.
func WithGenerator(g Generator) Option {
	return func(r *Resolver) { r.gen = g }
}

// WithWeather sets the weather source.
func WithWeather(s lookup.WeatherSource) Option {
	return func(r *Resolver) { r.weather = s }
}

// WithDirections sets the directions source.
func WithDirections(s lookup.DirectionsSource) Option {
	return func(r *Resolver) { r.directions = s }
}

// WithRouter replaces the default intent router.
func WithRouter(rt *intent.Router) Option {
	return func(r *Resolver) { r.router = rt }
}

// WithMetrics records resolution metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithClock injects the wall clock used for time and date replies.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// Resolver answers utterances. It holds no per-conversation state and is
// safe for concurrent use; each call operates on the caller's
// [convo.Memory].
type Resolver struct {
	cfg        Config
	pools      Pools
	router     *intent.Router
	gen        Generator
	weather    lookup.WeatherSource
	directions lookup.DirectionsSource
	metrics    *observe.Metrics
	now        func() time.Time
}

// New creates a Resolver.
func New(cfg Config, opts ...Option) *Resolver {
	if cfg.AssistantName == "" {
		cfg.AssistantName = "Max"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = 1
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = 8
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 3
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 5 * time.Second
	}
	r := &Resolver{
		cfg:    cfg,
		pools:  NewPools(cfg.AssistantName),
		router: intent.NewRouter(nil),
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Pools returns the canned replies in use.
func (r *Resolver) Pools() Pools { return r.pools }

// Resolve answers text within the conversation held by mem and records the
// exchange there before returning.
func (r *Resolver) Resolve(ctx context.Context, mem *convo.Memory, text string) Reply {
	ctx, span := observe.StartSpan(ctx, "respond.Resolve")
	defer span.End()

	c := r.router.Classify(text, intent.Intent(mem.LastTopic()))
	prior := mem.RecordTurn(string(c.Intent), c.IsFallback())

	reply := Reply{Intent: c.Intent, Sticky: c.Sticky}
	if r.shouldEscalate(c, prior) {
		reply.Escalated = true
		reply.Text, reply.Strategy = r.escalate(ctx, mem, text)
	} else {
		r.answer(ctx, mem, c, &reply)
	}

	mem.AddExchange(text, reply.Text, string(c.Intent))

	span.SetAttributes(
		attribute.String("intent", string(reply.Intent)),
		attribute.String("strategy", string(reply.Strategy)),
		attribute.Bool("sticky", reply.Sticky),
		attribute.Int("prior_fallbacks", prior),
	)
	if r.metrics != nil {
		r.metrics.RecordIntent(ctx, string(reply.Intent), string(reply.Strategy))
	}
	observe.Logger(ctx).Debug("respond: resolved",
		"intent", reply.Intent, "strategy", reply.Strategy,
		"sticky", reply.Sticky, "prior_fallbacks", prior)
	return reply
}

// shouldEscalate applies the escalation policy. Computed intents
// (arithmetic, time, date) never escalate.
func (r *Resolver) shouldEscalate(c intent.Classification, prior int) bool {
	if !r.cfg.GenerationEnabled || computed(c.Intent) {
		return false
	}
	switch c.Intent {
	case intent.Fallback, intent.Capabilities, intent.Identity:
		return true
	}
	return prior > r.cfg.EscalationThreshold
}

func computed(i intent.Intent) bool {
	switch i {
	case intent.Calculation, intent.Time, intent.Date:
		return true
	}
	return false
}

func (r *Resolver) escalate(ctx context.Context, mem *convo.Memory, text string) (string, Strategy) {
	if r.gen == nil {
		return r.degrade(ctx, mem, errors.New("no generator configured"))
	}

	out, err := r.gen.Generate(ctx, r.buildRequest(mem, text))
	if err == nil && len([]rune(strings.TrimSpace(out))) < r.cfg.MinChars {
		err = fmt.Errorf("degenerate reply %q", out)
	}
	if err != nil {
		return r.degrade(ctx, mem, err)
	}

	if r.metrics != nil {
		r.metrics.RecordEscalation(ctx, "generated")
	}
	return out, StrategyGenerated
}

func (r *Resolver) degrade(ctx context.Context, mem *convo.Memory, cause error) (string, Strategy) {
	if errors.Is(cause, generate.ErrNotReady) {
		observe.Logger(ctx).Debug("respond: model not ready, using fallback pool")
	} else {
		observe.Logger(ctx).Warn("respond: generation degraded", "err", cause)
	}
	if r.metrics != nil {
		r.metrics.RecordEscalation(ctx, "degraded")
	}
	return mem.Pick(r.pools.Fallback), StrategyDegraded
}

func (r *Resolver) buildRequest(mem *convo.Memory, text string) generate.Request {
	recent := mem.Recent(r.cfg.HistoryTurns)
	history := make([]generate.Turn, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		history = append(history, generate.Turn{User: recent[i].Input, Assistant: recent[i].Response})
	}

	var notes []string
	if name, ok := mem.Entity(convo.EntityUserName); ok {
		notes = append(notes, "The user's name is "+name+".")
	}
	if loc, ok := mem.Entity(convo.EntityUserLocation); ok {
		notes = append(notes, "The user is in "+loc+".")
	}
	return generate.Request{Prompt: text, History: history, Notes: notes}
}

func (r *Resolver) answer(ctx context.Context, mem *convo.Memory, c intent.Classification, reply *Reply) {
	reply.Strategy = StrategyTemplate
	p := &r.pools

	switch c.Intent {
	case intent.Greeting:
		if _, ok := mem.Entity(convo.EntityUserName); ok {
			reply.Text = mem.ContextualGreeting()
		} else {
			reply.Text = mem.Pick(p.Greeting)
		}
	case intent.Farewell:
		reply.Text = mem.Pick(p.Farewell)
	case intent.Capabilities:
		reply.Text = mem.Pick(p.Capabilities)
	case intent.Identity:
		reply.Text = mem.Pick(p.Identity)
	case intent.Weather:
		reply.Text, reply.Strategy = r.answerWeather(ctx, mem, c.Slots)
	case intent.Time:
		reply.Text, reply.Strategy = "The current time is "+r.now().In(r.cfg.Location).Format("03:04 PM"), StrategyCompute
	case intent.Date:
		reply.Text, reply.Strategy = "Today is "+r.now().In(r.cfg.Location).Format("Monday, January 2, 2006")+".", StrategyCompute
	case intent.Joke:
		reply.Text = mem.Pick(p.Joke)
	case intent.Music:
		reply.Text = mem.Pick(p.Music)
	case intent.Mobile:
		reply.Text = mem.Pick(p.Mobile)
	case intent.Reminder:
		if s := c.Slots; s.Task != "" && s.Duration > 0 {
			reply.Text = "Okay, I'll remind you to " + s.Task + " in " + s.DurationText + "."
			reply.Reminder = &Reminder{Task: s.Task, After: s.Duration, Text: "Reminder: " + s.Task}
		} else {
			reply.Text = mem.Pick(p.Reminder)
		}
	case intent.Thanks:
		reply.Text = mem.Pick(p.Thanks)
	case intent.Calculation:
		reply.Text, reply.Strategy = Calculate(c.Calc), StrategyCompute
	case intent.Directions:
		reply.Text, reply.Strategy = r.answerDirections(ctx, mem, c.Slots)
	case intent.Facts:
		reply.Text = mem.Pick(p.Facts)
	case intent.Chat:
		if isPhilosophical(c.Normalized) {
			reply.Text = mem.Pick(p.Philosophical)
		} else {
			reply.Text = mem.Pick(p.Starters)
		}
	default:
		reply.Text = mem.Pick(p.Fallback)
	}
}

func isPhilosophical(norm string) bool {
	for _, k := range []string{"meaning of life", "philosophy", "what do you think about"} {
		if strings.Contains(norm, k) {
			return true
		}
	}
	return false
}

// Calculate renders the answer to an arithmetic request. A nil calc means
// the user asked for a calculation without giving one.
func Calculate(calc *intent.Calc) string {
	if calc == nil {
		return "What would you like me to calculate? Try something like 7 plus 3."
	}
	v, ok := calc.Result()
	if !ok {
		return "I can't divide by zero"
	}
	return fmt.Sprintf("%s %s %s equals %s", calc.A, calc.Op, calc.B, v)
}

func (r *Resolver) answerWeather(ctx context.Context, mem *convo.Memory, s intent.Slots) (string, Strategy) {
	if r.weather == nil {
		return mem.Pick(r.pools.Weather), StrategyTemplate
	}

	location := s.Location
	if location == "" {
		location, _ = mem.Entity(convo.EntityUserLocation)
	}
	if location == "" {
		location = r.cfg.DefaultLocation
	}
	if location == "" {
		return "Which city would you like the weather for?", StrategyTemplate
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.LookupTimeout)
	defer cancel()

	start := time.Now()
	w, err := r.weather.Weather(ctx, location)
	r.recordLookup(ctx, "weather", err, time.Since(start))
	if err != nil {
		observe.Logger(ctx).Warn("respond: weather lookup failed", "location", location, "err", err)
		return "I'm sorry, I was unable to retrieve weather information for " + location + ". Please try again later.", StrategyLookup
	}
	return lookup.RenderWeather(w), StrategyLookup
}

func (r *Resolver) answerDirections(ctx context.Context, mem *convo.Memory, s intent.Slots) (string, Strategy) {
	if s.To == "" {
		return "Where would you like to go?", StrategyTemplate
	}
	if r.directions == nil {
		return "I can't look up directions right now, but " + s.To + " sounds like a great place to go.", StrategyTemplate
	}

	from := s.From
	if from == "" {
		from, _ = mem.Entity(convo.EntityUserLocation)
	}
	if from == "" {
		from = "your current location"
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.LookupTimeout)
	defer cancel()

	start := time.Now()
	route, err := r.directions.Directions(ctx, from, s.To)
	r.recordLookup(ctx, "directions", err, time.Since(start))
	if err != nil {
		observe.Logger(ctx).Warn("respond: directions lookup failed", "to", s.To, "err", err)
		return "I'm sorry, I was unable to retrieve directions to " + s.To + ". Please try again later.", StrategyLookup
	}
	return lookup.RenderRoute(route), StrategyLookup
}

func (r *Resolver) recordLookup(ctx context.Context, kind string, err error, d time.Duration) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.RecordLookup(ctx, kind, status, d)
}

// WakeUp returns the acknowledgement spoken when the wake phrase is heard:
// a personalised greeting when the user's name is known, otherwise a random
// wake-up line.
func (r *Resolver) WakeUp(mem *convo.Memory) string {
	if _, ok := mem.Entity(convo.EntityUserName); ok {
		return mem.ContextualGreeting()
	}
	return mem.Pick(r.pools.WakeUp)
}
