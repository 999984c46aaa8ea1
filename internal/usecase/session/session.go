package usecase_session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fastvote/client-go/internal/model"
	usecase_vote "github.com/fastvote/client-go/internal/usecase/vote"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrUnableToLoadRoom = errors.New("unable to load room")
	ErrWrongPassword    = errors.New("wrong password")
	ErrVerifyFailed     = errors.New("unable to verify password")
	ErrInvalidState     = errors.New("operation not allowed in current state")
)

//go:generate mockery --name=RoomAPI --output=./mocks --filename=room_api.go
type RoomAPI interface {
	Room(ctx context.Context, id model.RoomID) (*model.Room, error)
	VerifyPassword(ctx context.Context, id model.RoomID, password string) error
	VerifyShareToken(ctx context.Context, id model.RoomID, token string) error
	Results(ctx context.Context, id model.RoomID, fingerprint string) (*model.Results, error)
	Comments(ctx context.Context, id model.RoomID) ([]model.Comment, error)
	CreateComment(ctx context.Context, id model.RoomID, content, nickname string) (*model.Comment, error)
}

// FeedOpener starts the live result feed for a room. The returned Closer
// owns the connection and any pending reconnect.
type FeedOpener interface {
	OpenFeed(id model.RoomID, apply func(model.Results)) io.Closer
}

type Fingerprinter interface {
	Fingerprint() string
}

// Session drives one vote-room page load: it resolves access, keeps the
// ViewState, reconciles pushed snapshots and submits the vote. A Session is
// single-use; voted and error are terminal, a fresh look at the room needs
// a fresh Session.
type Session struct {
	api   RoomAPI
	feeds FeedOpener
	fp    Fingerprinter
	votes *usecase_vote.Controller

	logger   *slog.Logger
	onUpdate func(model.Results)

	mu       sync.Mutex
	roomID   model.RoomID
	state    model.ViewState
	room     *model.Room
	results  *model.Results
	comments []model.Comment
	feed     io.Closer
}

type SessionOption func(*Session)

func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithUpdateHook registers the presentation-side callback invoked after
// every applied snapshot. It runs outside the session lock.
func WithUpdateHook(hook func(model.Results)) SessionOption {
	return func(s *Session) {
		s.onUpdate = hook
	}
}

func New(api RoomAPI, feeds FeedOpener, fp Fingerprinter, votes *usecase_vote.Controller, opts ...SessionOption) *Session {
	s := &Session{
		api:    api,
		feeds:  feeds,
		fp:     fp,
		votes:  votes,
		logger: slog.Default(),
		state:  model.StateLoading,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load resolves access to the room and, when permitted, enters the voting
// or voted state with the feed open. A password-gated room without usable
// credentials halts at StatePassword; progress then goes through
// SubmitPassword.
func (s *Session) Load(ctx context.Context, id model.RoomID, creds model.Credentials) (model.ViewState, error) {
	s.mu.Lock()
	if s.state != model.StateLoading {
		defer s.mu.Unlock()
		return s.state, ErrInvalidState
	}
	s.roomID = id
	s.mu.Unlock()

	room, err := s.api.Room(ctx, id)
	if err != nil {
		s.setState(model.StateError)
		if errors.Is(err, model.ErrNotFound) {
			return model.StateError, fmt.Errorf("%w : %w", ErrRoomNotFound, err)
		}
		return model.StateError, fmt.Errorf("%w : %w", ErrUnableToLoadRoom, err)
	}

	s.mu.Lock()
	s.room = room
	s.mu.Unlock()

	if room.HasPassword {
		granted, err := s.tryCredentials(ctx, creds)
		if err != nil {
			return s.State(), err
		}
		if !granted {
			s.setState(model.StatePassword)
			return model.StatePassword, nil
		}
	}

	return s.enter(ctx), nil
}

// tryCredentials attempts the silent bypass. Load runs once per session, so
// the share token is verified at most once; a rejected token falls back to
// the password gate without surfacing an error.
func (s *Session) tryCredentials(ctx context.Context, creds model.Credentials) (bool, error) {
	if creds.Password != "" {
		if err := s.api.VerifyPassword(ctx, s.roomID, creds.Password); err != nil {
			if errors.Is(err, model.ErrUnauthorized) {
				return false, nil
			}
			s.logger.Warn("password verification failed",
				slog.String("room_id", string(s.roomID)), slog.String("error", err.Error()))
			return false, nil
		}
		return true, nil
	}

	if creds.ShareToken == "" {
		return false, nil
	}

	if err := s.api.VerifyShareToken(ctx, s.roomID, creds.ShareToken); err != nil {
		s.logger.Info("share token rejected",
			slog.String("room_id", string(s.roomID)), slog.String("error", err.Error()))
		return false, nil
	}
	return true, nil
}

// SubmitPassword re-enters the gate with an explicit password. Wrong
// passwords keep the session in StatePassword with a recoverable error.
func (s *Session) SubmitPassword(ctx context.Context, password string) (model.ViewState, error) {
	s.mu.Lock()
	if s.state != model.StatePassword {
		defer s.mu.Unlock()
		return s.state, ErrInvalidState
	}
	s.mu.Unlock()

	if err := s.api.VerifyPassword(ctx, s.roomID, password); err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			return model.StatePassword, fmt.Errorf("%w : %w", ErrWrongPassword, err)
		}
		return model.StatePassword, fmt.Errorf("%w : %w", ErrVerifyFailed, err)
	}

	return s.enter(ctx), nil
}

// enter loads the initial snapshot and the discussion thread, both
// tolerating failure, then opens the feed. A failed results load only
// leaves the tally display pending; it never blocks voting.
func (s *Session) enter(ctx context.Context) model.ViewState {
	voted := false

	results, err := s.api.Results(ctx, s.roomID, s.fp.Fingerprint())
	if err != nil {
		s.logger.Warn("initial results load failed",
			slog.String("room_id", string(s.roomID)), slog.String("error", err.Error()))
	} else {
		voted = results.HasVoted
	}

	comments, err := s.api.Comments(ctx, s.roomID)
	if err != nil {
		s.logger.Warn("comments load failed",
			slog.String("room_id", string(s.roomID)), slog.String("error", err.Error()))
	}

	s.mu.Lock()
	if results != nil {
		s.results = results
	}
	s.comments = comments
	if voted {
		s.state = model.StateVoted
	} else {
		s.state = model.StateVoting
	}
	if s.feed == nil {
		s.feed = s.feeds.OpenFeed(s.roomID, s.ApplySnapshot)
	}
	state := s.state
	s.mu.Unlock()

	return state
}

// Vote submits the current selection. On acceptance or on a detected prior
// vote the session lands in StateVoted; any other failure keeps StateVoting
// and the caller's selection untouched.
func (s *Session) Vote(ctx context.Context, selection []string) error {
	s.mu.Lock()
	switch s.state {
	case model.StateVoting:
	case model.StateVoted:
		id := s.roomID
		s.mu.Unlock()
		s.votes.AlreadyVoted(id)
		return usecase_vote.ErrAlreadyVoted
	default:
		s.mu.Unlock()
		return ErrInvalidState
	}
	room := s.room
	s.mu.Unlock()

	err := s.votes.Submit(ctx, room, selection, s.fp.Fingerprint())
	if err != nil && !errors.Is(err, usecase_vote.ErrAlreadyVoted) {
		return err
	}

	s.setState(model.StateVoted)
	return err
}

// Comment posts to the discussion thread. Allowed while voting and after.
func (s *Session) Comment(ctx context.Context, content, nickname string) (*model.Comment, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state != model.StateVoting && state != model.StateVoted {
		return nil, ErrInvalidState
	}

	comment, err := s.api.CreateComment(ctx, s.roomID, content, nickname)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.comments = append(s.comments, *comment)
	s.mu.Unlock()

	return comment, nil
}

// ApplySnapshot is the single entry point for pushed results. Last received
// wins; snapshots for other rooms are ignored and voted is never demoted.
func (s *Session) ApplySnapshot(snap model.Results) {
	s.mu.Lock()
	if snap.RoomID != model.EmptyRoomID && snap.RoomID != s.roomID {
		s.mu.Unlock()
		return
	}

	s.results = &snap
	if snap.HasVoted && s.state == model.StateVoting {
		s.state = model.StateVoted
	}
	hook := s.onUpdate
	s.mu.Unlock()

	if hook != nil {
		hook(snap)
	}
}

func (s *Session) State() model.ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Room() *model.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) Results() *model.Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

func (s *Session) Comments() []model.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Comment, len(s.comments))
	copy(out, s.comments)
	return out
}

// Close releases the feed. The session stays readable afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	feed := s.feed
	s.feed = nil
	s.mu.Unlock()

	if feed != nil {
		return feed.Close()
	}
	return nil
}

func (s *Session) setState(state model.ViewState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
