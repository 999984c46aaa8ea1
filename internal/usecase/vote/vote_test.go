package usecase_vote

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"

	"github.com/fastvote/client-go/internal/model"
)

/*
'Object Mother' helpers.
*/
func validRoom() *model.Room {
	return &model.Room{
		ID:      model.RoomID("0b54f0ff-9431-4c33-a6ac-ef5f8a8fe31a"),
		Title:   "lunch",
		Options: []string{"A", "B"},
	}
}

func multiRoom() *model.Room {
	room := validRoom()
	room.AllowMultiple = true
	room.Options = []string{"A", "B", "C"}
	return room
}

const fp = "device-fp-1"

type fakeVoteAPI struct {
	mu      sync.Mutex
	calls   int
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeVoteAPI) Vote(ctx context.Context, id model.RoomID, options []string, fingerprint string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	if f.release != nil {
		<-f.release
	}
	return f.err
}

func (f *fakeVoteAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	accepted int
	already  int
}

func (n *recordingNotifier) VoteAccepted(model.RoomID) { n.accepted++ }
func (n *recordingNotifier) AlreadyVoted(model.RoomID) { n.already++ }

type UsecaseVoteUnitSuite struct {
	suite.Suite

	ctx context.Context
}

func (s *UsecaseVoteUnitSuite) BeforeEach(t provider.T) {
	s.ctx = context.Background()
}

func (s *UsecaseVoteUnitSuite) TestValidateSelection(t provider.T) {
	t.Run("Should accept single option on single-choice room", func(t provider.T) {
		assert.NoError(t, ValidateSelection(validRoom(), []string{"A"}))
	})

	t.Run("Should accept subset on multi-choice room", func(t provider.T) {
		assert.NoError(t, ValidateSelection(multiRoom(), []string{"A", "C"}))
	})

	t.Run("Should reject empty selection", func(t provider.T) {
		assert.ErrorIs(t, ValidateSelection(validRoom(), nil), ErrEmptySelection)
	})

	t.Run("Should reject two options on single-choice room", func(t provider.T) {
		assert.ErrorIs(t, ValidateSelection(validRoom(), []string{"A", "B"}), ErrMultipleNotAllowed)
	})

	t.Run("Should reject unknown option", func(t provider.T) {
		assert.ErrorIs(t, ValidateSelection(validRoom(), []string{"Z"}), ErrUnknownOption)
	})

	t.Run("Should reject duplicated option", func(t provider.T) {
		assert.ErrorIs(t, ValidateSelection(multiRoom(), []string{"A", "A"}), ErrDuplicateOption)
	})
}

func (s *UsecaseVoteUnitSuite) TestSubmit(t provider.T) {
	t.Run("Should submit valid selection exactly once", func(t provider.T) {
		api := &fakeVoteAPI{}
		notifier := &recordingNotifier{}
		controller := New(api, WithNotifier(notifier))

		err := controller.Submit(s.ctx, validRoom(), []string{"A"}, fp)

		assert.NoError(t, err)
		assert.Equal(t, 1, api.callCount())
		assert.Equal(t, 1, notifier.accepted)
		assert.Equal(t, 0, notifier.already)
	})

	t.Run("Should reject invalid selection before any network call", func(t provider.T) {
		api := &fakeVoteAPI{}
		controller := New(api)

		err := controller.Submit(s.ctx, validRoom(), []string{"A", "B"}, fp)

		assert.ErrorIs(t, err, ErrMultipleNotAllowed)
		assert.Equal(t, 0, api.callCount())
	})

	t.Run("Should fold conflict into already-voted outcome", func(t provider.T) {
		api := &fakeVoteAPI{err: model.ErrConflict}
		notifier := &recordingNotifier{}
		controller := New(api, WithNotifier(notifier))

		err := controller.Submit(s.ctx, validRoom(), []string{"A"}, fp)

		assert.ErrorIs(t, err, ErrAlreadyVoted)
		assert.Equal(t, 1, notifier.already)
		assert.Equal(t, 0, notifier.accepted)
	})

	t.Run("Should surface retryable error on backend failure", func(t provider.T) {
		api := &fakeVoteAPI{err: errors.New("boom")}
		notifier := &recordingNotifier{}
		controller := New(api, WithNotifier(notifier))

		err := controller.Submit(s.ctx, validRoom(), []string{"A"}, fp)

		assert.ErrorIs(t, err, ErrUnableToVote)
		assert.NotErrorIs(t, err, ErrAlreadyVoted)
		assert.Equal(t, 0, notifier.accepted)
	})

	t.Run("Should refuse concurrent submission for same room and fingerprint", func(t provider.T) {
		api := &fakeVoteAPI{
			started: make(chan struct{}),
			release: make(chan struct{}),
		}
		controller := New(api)
		started := api.started

		firstDone := make(chan error, 1)
		go func() {
			firstDone <- controller.Submit(s.ctx, validRoom(), []string{"A"}, fp)
		}()

		<-started
		err := controller.Submit(s.ctx, validRoom(), []string{"B"}, fp)
		assert.ErrorIs(t, err, ErrVoteInFlight)

		close(api.release)
		assert.NoError(t, <-firstDone)
		assert.Equal(t, 1, api.callCount())
	})

	t.Run("Should allow concurrent submissions for different fingerprints", func(t provider.T) {
		api := &fakeVoteAPI{}
		controller := New(api)

		assert.NoError(t, controller.Submit(s.ctx, validRoom(), []string{"A"}, "fp-1"))
		assert.NoError(t, controller.Submit(s.ctx, validRoom(), []string{"B"}, "fp-2"))
		assert.Equal(t, 2, api.callCount())
	})
}

func TestUnitSuite(t *testing.T) {
	suite.RunSuite(t, new(UsecaseVoteUnitSuite))
}
