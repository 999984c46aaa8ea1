package app

import (
	"net/http"

	"github.com/fastvote/client-go/internal/config"
	infra_fingerprint "github.com/fastvote/client-go/internal/infra/fingerprint"
	infra_history "github.com/fastvote/client-go/internal/infra/history"
	infra_rest "github.com/fastvote/client-go/internal/infra/rest"
	infra_ws "github.com/fastvote/client-go/internal/infra/ws"
	usecase_session "github.com/fastvote/client-go/internal/usecase/session"
	usecase_vote "github.com/fastvote/client-go/internal/usecase/vote"
)

// App is the composition root: one REST client, one fingerprint store, one
// history database and a feed opener, shared by every session the UI spins
// up.
type App struct {
	Config      *config.Config
	API         *infra_rest.Client
	Fingerprint *infra_fingerprint.Store
	History     *infra_history.Driver
	Feeds       *infra_ws.Opener
	Votes       *usecase_vote.Controller
}

type Option func(*options)

type options struct {
	notifier usecase_vote.Notifier
}

// WithNotifier routes vote feedback (accepted / already voted) to the UI.
func WithNotifier(notifier usecase_vote.Notifier) Option {
	return func(o *options) {
		o.notifier = notifier
	}
}

func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	api := infra_rest.New(cfg.API.BaseURL,
		infra_rest.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}))

	history, err := infra_history.Open(cfg.Storage.StateDir)
	if err != nil {
		return nil, err
	}

	var voteOpts []usecase_vote.ControllerOption
	if o.notifier != nil {
		voteOpts = append(voteOpts, usecase_vote.WithNotifier(o.notifier))
	}

	return &App{
		Config:      cfg,
		API:         api,
		Fingerprint: infra_fingerprint.New(cfg.Storage.StateDir),
		History:     history,
		Feeds:       infra_ws.NewOpener(cfg.API.WSURL),
		Votes:       usecase_vote.New(api, voteOpts...),
	}, nil
}

// NewSession starts a fresh vote-room session. One session per room visit.
func (a *App) NewSession(opts ...usecase_session.SessionOption) *usecase_session.Session {
	return usecase_session.New(a.API, a.Feeds, a.Fingerprint, a.Votes, opts...)
}

func (a *App) Close() error {
	return a.History.Close()
}
