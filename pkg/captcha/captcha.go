// Package captcha issues single-use arithmetic challenges that let a
// rate-limited caller prove it is a person.
package captcha

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"igstories/pkg/clock"
	"igstories/pkg/logger"
)

// Rejection reasons returned by Validate
const (
	ReasonUnknown       = "invalid or expired"
	ReasonAlreadyUsed   = "already used"
	ReasonExpired       = "expired"
	ReasonInvalidAnswer = "invalid answer"
	ReasonWrongAnswer   = "wrong answer"
)

// Challenge is what a caller is shown
type Challenge struct {
	Token            string `json:"token"`
	Question         string `json:"question"`
	ExpiresInSeconds int    `json:"expiresIn"`
}

// Validation is the outcome of answering a challenge
type Validation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

type challenge struct {
	answer    int
	expiresAt time.Time
	used      bool
}

// Issuer generates and validates challenges
type Issuer struct {
	mu         sync.Mutex
	challenges map[string]*challenge
	clock      clock.Clock
	ttl        time.Duration
	sweep      time.Duration
	log        logger.Logger

	// intn returns a value in [0, n); replaced in tests
	intn func(n int) int

	stopCh  chan struct{}
	started sync.Once
	stopped sync.Once
}

// Option configures an Issuer
type Option func(*Issuer)

// WithLogger sets the issuer logger
func WithLogger(l logger.Logger) Option {
	return func(i *Issuer) { i.log = l }
}

// NewIssuer creates an issuer whose challenges live for ttl
func NewIssuer(c clock.Clock, ttl, sweepInterval time.Duration, opts ...Option) *Issuer {
	i := &Issuer{
		challenges: make(map[string]*challenge),
		clock:      clock.OrReal(c),
		ttl:        ttl,
		sweep:      sweepInterval,
		log:        logger.NewNopLogger(),
		intn:       rand.IntN,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// between returns a value in [lo, hi]
func (i *Issuer) between(lo, hi int) int {
	return lo + i.intn(hi-lo+1)
}

// question picks an operator and operands. Subtraction never goes negative
// and factors stay between 1 and 10.
func (i *Issuer) question() (string, int) {
	switch i.intn(3) {
	case 0:
		a, b := i.between(1, 20), i.between(1, 20)
		return fmt.Sprintf("%d + %d", a, b), a + b
	case 1:
		a := i.between(1, 20)
		b := i.between(1, a)
		return fmt.Sprintf("%d - %d", a, b), a - b
	default:
		a, b := i.between(1, 10), i.between(1, 10)
		return fmt.Sprintf("%d x %d", a, b), a * b
	}
}

// Generate issues a new challenge
func (i *Issuer) Generate() Challenge {
	q, answer := i.question()
	token := uuid.NewString()

	i.mu.Lock()
	i.challenges[token] = &challenge{
		answer:    answer,
		expiresAt: i.clock.Now().Add(i.ttl),
	}
	i.mu.Unlock()

	return Challenge{
		Token:            token,
		Question:         q,
		ExpiresInSeconds: int(i.ttl / time.Second),
	}
}

// Validate checks answer against the challenge issued under token.
// A correct answer consumes the token; a wrong one leaves it open for
// another try until it expires.
func (i *Issuer) Validate(token, answer string) Validation {
	now := i.clock.Now()

	i.mu.Lock()
	defer i.mu.Unlock()

	c, ok := i.challenges[token]
	if !ok {
		return i.reject(token, ReasonUnknown)
	}
	if c.used {
		delete(i.challenges, token)
		return i.reject(token, ReasonAlreadyUsed)
	}
	if !now.Before(c.expiresAt) {
		delete(i.challenges, token)
		return i.reject(token, ReasonExpired)
	}

	n, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil {
		return i.reject(token, ReasonInvalidAnswer)
	}
	if n != c.answer {
		return i.reject(token, ReasonWrongAnswer)
	}

	c.used = true
	i.log.WithField("token", token).Debug("Captcha solved")
	return Validation{Valid: true}
}

func (i *Issuer) reject(token, reason string) Validation {
	i.log.WithFields(map[string]interface{}{
		"token":  token,
		"reason": reason,
	}).Debug("Captcha rejected")
	return Validation{Valid: false, Reason: reason}
}

// Pending returns the number of stored challenges
func (i *Issuer) Pending() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.challenges)
}

// Sweep deletes expired challenges and returns how many were removed
func (i *Issuer) Sweep() int {
	now := i.clock.Now()

	i.mu.Lock()
	defer i.mu.Unlock()

	removed := 0
	for token, c := range i.challenges {
		if !now.Before(c.expiresAt) {
			delete(i.challenges, token)
			removed++
		}
	}
	return removed
}

// Start launches the periodic sweep. Calling it more than once is a no-op.
func (i *Issuer) Start() {
	if i.sweep <= 0 {
		return
	}
	i.started.Do(func() {
		go func() {
			ticker := time.NewTicker(i.sweep)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					i.Sweep()
				case <-i.stopCh:
					return
				}
			}
		}()
	})
}

// Stop halts the sweep. Safe to call multiple times.
func (i *Issuer) Stop() {
	i.stopped.Do(func() {
		close(i.stopCh)
	})
}
