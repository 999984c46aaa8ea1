package infra_ws

import (
	"fmt"
	"io"

	"github.com/fastvote/client-go/internal/model"
)

// Opener builds one Feed per room at the well-known push address and starts
// it. The session holds the returned Closer for teardown.
type Opener struct {
	baseURL string
	opts    []FeedOption
}

func NewOpener(baseURL string, opts ...FeedOption) *Opener {
	return &Opener{
		baseURL: baseURL,
		opts:    opts,
	}
}

func (o *Opener) OpenFeed(id model.RoomID, apply func(model.Results)) io.Closer {
	feed := New(fmt.Sprintf("%s/ws/rooms/%s", o.baseURL, id), apply, o.opts...)
	go feed.Run()
	return feed
}
