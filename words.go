package main

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
)

// defaultVocabulary is the built-in word set, overridable with --wordlist.
var defaultVocabulary = []string{
	"cat", "dog", "house", "tree", "car", "sun", "moon", "star", "flower", "bird",
	"fish", "boat", "plane", "train", "bike", "book", "pen", "phone", "computer", "chair",
	"table", "cup", "bottle", "hat", "shoe", "apple", "banana", "pizza", "cake", "ice cream",
	"guitar", "piano", "drum", "camera", "clock", "key", "door", "window", "lamp", "bed",
	"umbrella", "rainbow", "cloud", "mountain", "beach", "ocean", "river", "bridge", "castle", "rocket",
	"butterfly", "elephant", "lion", "giraffe", "penguin", "dolphin", "turtle", "frog", "snake", "spider",
}

// offerCount is how many words the turn-holder picks between. A
// three-way choice is a protocol invariant; the selector never offers
// fewer.
const offerCount = 3

// ErrPoolExhausted is returned when not even the full vocabulary can
// supply three unconsumed words for an offer.
var ErrPoolExhausted = errors.New("word pool exhausted")

// loadVocabulary returns the built-in word set, or the contents of
// path (one word per line, blank lines skipped) when one is given.
func loadVocabulary(path string) ([]string, error) {
	if path == "" {
		return defaultVocabulary, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading wordlist: %w", err)
	}

	var vocab []string
	for _, line := range strings.Split(string(data), "\n") {
		word := strings.TrimSpace(line)
		if word == "" {
			continue
		}
		vocab = append(vocab, word)
	}

	if len(vocab) < offerCount {
		return nil, fmt.Errorf("wordlist %s has %d words, need at least %d", path, len(vocab), offerCount)
	}

	return vocab, nil
}

// SelectionState enumerates the turn/word-selection machine's states.
type SelectionState int

const (
	StateIdle SelectionState = iota
	StatePoolGenerating
	StateAwaitingSelection
	StateWordChosen
	StateRoundActive
)

func (s SelectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePoolGenerating:
		return "pool-generating"
	case StateAwaitingSelection:
		return "awaiting-selection"
	case StateWordChosen:
		return "word-chosen"
	case StateRoundActive:
		return "round-active"
	default:
		return "unknown"
	}
}

// selectionTransitions is the machine's transition table. Anything not
// listed here is an invalid transition.
var selectionTransitions = map[SelectionState][]SelectionState{
	StateIdle:              {StatePoolGenerating},
	StatePoolGenerating:    {StateAwaitingSelection},
	StateAwaitingSelection: {StateWordChosen},
	StateWordChosen:        {StateRoundActive},
	StateRoundActive:       {StateIdle},
}

// WordSelector drives word selection for one session: it keeps the word
// pool, offers three options to the turn-holder, and consumes chosen
// words without replacement. It is independent of the transport; the
// protocol client wires its events to the websocket.
type WordSelector struct {
	mu sync.Mutex

	vocab []string
	rng   *rand.Rand

	state SelectionState

	// pool maps position to word; selected words are deleted and never
	// reoffered within the session.
	pool     map[int]string
	nextPos  int
	consumed map[string]bool

	offered []string
	holder  string
}

// NewWordSelector creates a selector over vocab. The seed keeps draws
// reproducible in tests; pass a clock-derived seed in production.
func NewWordSelector(vocab []string, seed int64) *WordSelector {
	return &WordSelector{
		vocab:    vocab,
		rng:      rand.New(rand.NewSource(seed)),
		state:    StateIdle,
		pool:     make(map[int]string),
		consumed: make(map[string]bool),
	}
}

// State returns the machine's current state.
func (ws *WordSelector) State() SelectionState {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	return ws.state
}

// PoolSize returns the number of words currently in the pool.
func (ws *WordSelector) PoolSize() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	return len(ws.pool)
}

// Holder returns the current turn-holder, if any.
func (ws *WordSelector) Holder() string {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	return ws.holder
}

// Offered returns the words currently offered to the turn-holder.
func (ws *WordSelector) Offered() []string {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	out := make([]string, len(ws.offered))
	copy(out, ws.offered)
	return out
}

func (ws *WordSelector) canTransitionLocked(to SelectionState) bool {
	for _, allowed := range selectionTransitions[ws.state] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (ws *WordSelector) transitionLocked(to SelectionState) error {
	if !ws.canTransitionLocked(to) {
		return fmt.Errorf("invalid selection transition: %s -> %s", ws.state, to)
	}
	ws.state = to
	return nil
}

// GeneratePool builds the session's word pool once the participant
// count is known: participantCount x 3 words drawn without replacement,
// truncated to the vocabulary size. Calling it again while a pool
// exists only advances the state, keeping the existing pool.
func (ws *WordSelector) GeneratePool(participantCount int) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if participantCount < 1 {
		return fmt.Errorf("invalid participant count: %d", participantCount)
	}

	if err := ws.transitionLocked(StatePoolGenerating); err != nil {
		return err
	}

	if len(ws.pool) > 0 {
		return nil
	}

	wanted := participantCount * offerCount
	if wanted > len(ws.vocab) {
		wanted = len(ws.vocab)
	}

	shuffled := make([]string, len(ws.vocab))
	copy(shuffled, ws.vocab)
	ws.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for _, word := range shuffled[:wanted] {
		ws.pool[ws.nextPos] = word
		ws.nextPos++
	}

	return nil
}

// Offer draws exactly three distinct words from the pool for the given
// turn-holder. A pool with fewer than three words is a recoverable
// fault: it is replenished from the unconsumed vocabulary first, and
// only when the vocabulary itself cannot supply three does Offer fail
// with ErrPoolExhausted. Re-offering to the same holder while a
// selection is already pending returns the pending words unchanged.
func (ws *WordSelector) Offer(holder string) ([]string, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.state == StateAwaitingSelection && ws.holder == holder {
		out := make([]string, len(ws.offered))
		copy(out, ws.offered)
		return out, nil
	}

	// Reject invalid states before touching the pool, so a failed
	// Offer leaves no trace. A pending offer whose holder went away is
	// withdrawn and redrawn for the new holder; otherwise this must be
	// a legal transition into AwaitingSelection.
	if ws.state != StateAwaitingSelection && !ws.canTransitionLocked(StateAwaitingSelection) {
		return nil, fmt.Errorf("invalid selection transition: %s -> %s", ws.state, StateAwaitingSelection)
	}

	if len(ws.pool) < offerCount {
		ws.replenishLocked()
		if len(ws.pool) < offerCount {
			return nil, ErrPoolExhausted
		}
	}

	if ws.state != StateAwaitingSelection {
		ws.state = StateAwaitingSelection
	}

	positions := make([]int, 0, len(ws.pool))
	for pos := range ws.pool {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	ws.rng.Shuffle(len(positions), func(i, j int) {
		positions[i], positions[j] = positions[j], positions[i]
	})

	offered := make([]string, offerCount)
	for i := range offered {
		offered[i] = ws.pool[positions[i]]
	}

	ws.offered = offered
	ws.holder = holder

	out := make([]string, len(offered))
	copy(out, offered)
	return out, nil
}

// replenishLocked expands the pool with vocabulary words that were
// neither consumed this session nor already pooled.
func (ws *WordSelector) replenishLocked() {
	pooled := make(map[string]bool, len(ws.pool))
	for _, word := range ws.pool {
		pooled[word] = true
	}

	for _, word := range ws.vocab {
		if len(ws.pool) >= offerCount {
			return
		}
		if ws.consumed[word] || pooled[word] {
			continue
		}
		ws.pool[ws.nextPos] = word
		ws.nextPos++
		pooled[word] = true
	}
}

// Select commits the turn-holder's choice: the word leaves the pool for
// good, the offer is withdrawn, and turn-holder status is cleared.
func (ws *WordSelector) Select(word string) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	found := false
	for _, offered := range ws.offered {
		if offered == word {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("word %q was not offered", word)
	}

	if err := ws.transitionLocked(StateWordChosen); err != nil {
		return err
	}

	for pos, pooled := range ws.pool {
		if pooled == word {
			delete(ws.pool, pos)
			break
		}
	}
	ws.consumed[word] = true

	ws.offered = nil
	ws.holder = ""

	return nil
}

// StartRound moves into active drawing/guessing. Round timing and
// scoring live outside this machine.
func (ws *WordSelector) StartRound() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	return ws.transitionLocked(StateRoundActive)
}

// EndTurn returns the machine to idle for the next turn; the pool and
// consumed set carry over within the session.
func (ws *WordSelector) EndTurn() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	return ws.transitionLocked(StateIdle)
}
