// Package convo holds the short-term conversational state of one session:
// a bounded exchange history, entities learned from what the user said,
// recently discussed topics, user preferences, and the consecutive-fallback
// streak that drives escalation.
//
// A [Memory] is owned by exactly one session. Its methods are guarded by a
// mutex so read-only observers (session listings, health probes) may call
// them from other goroutines, but all mutation is expected to come from the
// owning session's loop.
package convo

import (
	"maps"
	"math/rand/v2"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
)

// Well-known entity keys populated by [Memory.AddExchange].
const (
	EntityUserName     = "userName"
	EntityUserLocation = "userLocation"
)

const (
	defaultCapacity   = 10
	defaultTopicLimit = 5
)

var (
	reName     = regexp.MustCompile(`(?i)my name is (\w+)`)
	reLocation = regexp.MustCompile(`(?i)I (?:am|live) (?:in|at|near) ([a-zA-Z\s]+)`)
)

// Entry is one recorded exchange.
type Entry struct {
	Input     string
	Response  string
	Topic     string
	Timestamp time.Time
}

// Option configures a [Memory].
type Option func(*Memory)

// WithCapacity sets the number of exchanges retained. Values below 1 are
// ignored. Default: 10.
func WithCapacity(n int) Option {
	return func(m *Memory) {
		if n > 0 {
			m.capacity = n
		}
	}
}

// WithTopicLimit sets how many distinct recent topics are remembered.
// Default: 5.
func WithTopicLimit(n int) Option {
	return func(m *Memory) {
		if n > 0 {
			m.topicLimit = n
		}
	}
}

// WithRand injects the random source used for greeting selection.
func WithRand(r *rand.Rand) Option {
	return func(m *Memory) { m.rng = r }
}

// WithClock injects the time source used to timestamp entries.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// WithAssistantName sets the name used in greetings. Default: "Max".
func WithAssistantName(name string) Option {
	return func(m *Memory) {
		if name != "" {
			m.name = name
		}
	}
}

// Memory is the per-session conversation memory and state.
type Memory struct {
	capacity   int
	topicLimit int
	name       string
	now        func() time.Time

	mu        sync.RWMutex
	rng       *rand.Rand
	entries   []Entry // newest first
	topics    []string
	entities  map[string]string
	prefs     map[string]string
	lastTopic string
	streak    int
}

// New returns an empty Memory.
func New(opts ...Option) *Memory {
	m := &Memory{
		capacity:   defaultCapacity,
		topicLimit: defaultTopicLimit,
		name:       "Max",
		now:        time.Now,
		entities:   make(map[string]string),
		prefs:      make(map[string]string),
	}
	for _, o := range opts {
		o(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6d6178))
	}
	return m
}

// AddExchange records an exchange as the most recent entry, evicting the
// oldest entry beyond capacity. A non-empty topic joins the topic set.
// Name and location mentions in input are extracted into the entity map;
// the latest mention wins.
func (m *Memory) AddExchange(input, response, topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(Entry{Input: input, Response: response, Topic: topic, Timestamp: m.now()})
}

func (m *Memory) addLocked(e Entry) {
	m.entries = slices.Insert(m.entries, 0, e)
	if len(m.entries) > m.capacity {
		m.entries = m.entries[:m.capacity]
	}
	if e.Topic != "" {
		m.addTopicLocked(e.Topic)
	}
	m.extractEntitiesLocked(e.Input)
}

func (m *Memory) addTopicLocked(topic string) {
	if slices.Contains(m.topics, topic) {
		return
	}
	m.topics = append(m.topics, topic)
	if len(m.topics) > m.topicLimit {
		m.topics = slices.Delete(m.topics, 0, len(m.topics)-m.topicLimit)
	}
}

func (m *Memory) extractEntitiesLocked(input string) {
	if sm := reName.FindStringSubmatch(input); sm != nil {
		m.entities[EntityUserName] = sm[1]
	}
	if sm := reLocation.FindStringSubmatch(input); sm != nil {
		if loc := strings.TrimSpace(sm[1]); loc != "" {
			m.entities[EntityUserLocation] = loc
		}
	}
}

// Restore replays archived entries (newest first, as returned by an
// exchange store) into an empty-or-not memory, oldest first, so ordering,
// topics, and entities match what live recording would have produced.
func (m *Memory) Restore(entries []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range slices.Backward(entries) {
		m.addLocked(e)
	}
}

// Recent returns up to n most recent entries, newest first. n larger than
// the buffer returns everything; n <= 0 returns nil.
func (m *Memory) Recent(n int) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	n = min(n, len(m.entries))
	return slices.Clone(m.entries[:n])
}

// Len returns the number of entries held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Entity returns the value for key and whether it is known.
func (m *Memory) Entity(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entities[key]
	return v, ok
}

// Entities returns a copy of all known entities.
func (m *Memory) Entities() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.entities)
}

// Topics returns the remembered topics, oldest first.
func (m *Memory) Topics() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.topics)
}

// HasTopic reports whether topic is in the topic set.
func (m *Memory) HasTopic(topic string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.topics, topic)
}

// SetPreference stores a user preference. Keys are case-insensitive.
func (m *Memory) SetPreference(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[normalizeKey(key)] = value
}

// Preference returns a stored user preference.
func (m *Memory) Preference(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.prefs[normalizeKey(key)]
	return v, ok
}

func normalizeKey(k string) string {
	return strings.Join(strings.Fields(strings.ToLower(k)), " ")
}

// LastTopic returns the intent of the most recent classified turn, or "".
func (m *Memory) LastTopic() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastTopic
}

// FallbackStreak returns the number of consecutive fallback turns.
func (m *Memory) FallbackStreak() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.streak
}

// RecordTurn updates conversation state after a turn is classified.
// A fallback turn extends the streak and leaves the last topic unchanged;
// any other turn resets the streak and becomes the last topic.
// It returns the streak as it was before this turn.
func (m *Memory) RecordTurn(topic string, fallback bool) (prior int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prior = m.streak
	if fallback {
		m.streak++
		return prior
	}
	m.streak = 0
	if topic != "" {
		m.lastTopic = topic
	}
	return prior
}

// Clear resets every piece of state.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.topics = nil
	m.lastTopic = ""
	m.streak = 0
	clear(m.entities)
	clear(m.prefs)
}

// ContextualGreeting returns a personalised greeting when the user's name
// is known, and otherwise a random pick from the stock greetings.
func (m *Memory) ContextualGreeting() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name, ok := m.entities[EntityUserName]; ok {
		return "Hello " + name + "! How can I help you today?"
	}
	return m.pickLocked(greetings(m.name))
}

// Pick returns a uniformly random element of pool using the memory's
// random source. pool must not be empty.
func (m *Memory) Pick(pool []string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pickLocked(pool)
}

func (m *Memory) pickLocked(pool []string) string {
	return pool[m.rng.IntN(len(pool))]
}

func greetings(name string) []string {
	return []string{
		"Hi, I'm " + name + "! How can I help you today?",
		"Hey there! " + name + " at your service. What can I do for you?",
		"Hello! I'm " + name + ", your personal assistant. How may I assist you?",
		name + " here, ready to help! What do you need?",
		"Good day! " + name + " at your service. How can I be of assistance?",
	}
}
