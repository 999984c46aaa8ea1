package usecase_vote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fastvote/client-go/internal/model"
)

var (
	ErrEmptySelection     = errors.New("empty selection")
	ErrMultipleNotAllowed = errors.New("room does not allow multiple selections")
	ErrUnknownOption      = errors.New("option not in room")
	ErrDuplicateOption    = errors.New("option selected twice")
	ErrAlreadyVoted       = errors.New("already voted")
	ErrVoteInFlight       = errors.New("vote already in flight")
	ErrUnableToVote       = errors.New("unable to vote")
)

//go:generate mockery --name=VoteAPI --output=./mocks --filename=vote_api.go
type VoteAPI interface {
	Vote(ctx context.Context, id model.RoomID, options []string, fingerprint string) error
}

// Notifier is the side channel for celebratory feedback. It never affects
// the data path; a nop implementation is the default.
type Notifier interface {
	VoteAccepted(id model.RoomID)
	AlreadyVoted(id model.RoomID)
}

type nopNotifier struct{}

func (nopNotifier) VoteAccepted(model.RoomID) {}
func (nopNotifier) AlreadyVoted(model.RoomID) {}

// Controller submits votes: it validates the selection locally, guarantees
// a single in-flight submission per room+fingerprint and folds the
// conflict response into the terminal already-voted outcome.
type Controller struct {
	api      VoteAPI
	notifier Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

type ControllerOption func(*Controller)

func WithNotifier(notifier Notifier) ControllerOption {
	return func(c *Controller) {
		c.notifier = notifier
	}
}

func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

func New(api VoteAPI, opts ...ControllerOption) *Controller {
	c := &Controller{
		api:      api,
		notifier: nopNotifier{},
		logger:   slog.Default(),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateSelection enforces the room's multiplicity rule before any
// network round-trip.
func ValidateSelection(room *model.Room, selection []string) error {
	if len(selection) == 0 {
		return ErrEmptySelection
	}
	if len(selection) > 1 && !room.AllowMultiple {
		return ErrMultipleNotAllowed
	}

	seen := make(map[string]struct{}, len(selection))
	for _, option := range selection {
		if !room.HasOption(option) {
			return fmt.Errorf("%w : %q", ErrUnknownOption, option)
		}
		if _, dup := seen[option]; dup {
			return fmt.Errorf("%w : %q", ErrDuplicateOption, option)
		}
		seen[option] = struct{}{}
	}
	return nil
}

// Submit casts the vote. Outcomes:
//   - nil: accepted; the open feed carries the new tally.
//   - ErrAlreadyVoted: the device voted before; terminal but not a failure.
//   - ErrVoteInFlight: a submission for this room+fingerprint is pending.
//   - anything else: retryable, the caller keeps its selection.
//
// The tally is never mutated locally; the authoritative push does that.
func (c *Controller) Submit(ctx context.Context, room *model.Room, selection []string, fingerprint string) error {
	if err := ValidateSelection(room, selection); err != nil {
		return err
	}

	key := string(room.ID) + "|" + fingerprint
	if !c.acquire(key) {
		return ErrVoteInFlight
	}
	defer c.release(key)

	if err := c.api.Vote(ctx, room.ID, selection, fingerprint); err != nil {
		if errors.Is(err, model.ErrConflict) {
			c.logger.Info("duplicate vote folded into voted state",
				slog.String("room_id", string(room.ID)))
			c.notifier.AlreadyVoted(room.ID)
			return fmt.Errorf("%w : %w", ErrAlreadyVoted, err)
		}
		return fmt.Errorf("%w : %w", ErrUnableToVote, err)
	}

	c.notifier.VoteAccepted(room.ID)
	return nil
}

// AlreadyVoted raises the duplicate-vote notice for a vote that was cut
// short before any submission, for example when a pushed snapshot already
// settled the state.
func (c *Controller) AlreadyVoted(id model.RoomID) {
	c.notifier.AlreadyVoted(id)
}

func (c *Controller) acquire(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.inflight[key]; busy {
		return false
	}
	c.inflight[key] = struct{}{}
	return true
}

func (c *Controller) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
}
