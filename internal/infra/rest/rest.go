package infra_rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fastvote/client-go/internal/model"
)

// Client speaks the FastVote REST contract. It maps HTTP statuses onto the
// shared sentinel errors in model; callers never see raw status codes.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type verifyRequest struct {
	Password   string `json:"password,omitempty"`
	ShareToken string `json:"share_token,omitempty"`
}

type voteRequest struct {
	Options     []string `json:"options"`
	Fingerprint string   `json:"fingerprint"`
}

type commentRequest struct {
	Content  string `json:"content"`
	Nickname string `json:"nickname,omitempty"`
}

// CreateRoomRequest mirrors the room creation form. TTL is in seconds.
type CreateRoomRequest struct {
	Title         string   `json:"title"`
	Options       []string `json:"options"`
	Password      string   `json:"password,omitempty"`
	TTL           int      `json:"ttl"`
	Tags          []string `json:"tags"`
	AllowMultiple bool     `json:"allow_multiple"`
}

type CreateRoomResponse struct {
	ID         model.RoomID `json:"uuid"`
	ShareToken string       `json:"share_token"`
}

// ListParams narrows the room listing. Zero values mean "server default".
type ListParams struct {
	Search   string
	Tags     []string
	Sort     string // "latest" | "popular"
	Page     int
	PageSize int
}

func (c *Client) Room(ctx context.Context, id model.RoomID) (*model.Room, error) {
	var room model.Room
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/rooms/%s", id), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) VerifyPassword(ctx context.Context, id model.RoomID, password string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/rooms/%s/verify", id),
		verifyRequest{Password: password}, nil)
}

func (c *Client) VerifyShareToken(ctx context.Context, id model.RoomID, token string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/rooms/%s/verify", id),
		verifyRequest{ShareToken: token}, nil)
}

// Results reports the current tally. The fingerprint lets the backend say
// whether this device has voted already; it may be empty.
func (c *Client) Results(ctx context.Context, id model.RoomID, fingerprint string) (*model.Results, error) {
	path := fmt.Sprintf("/rooms/%s/results", id)
	if fingerprint != "" {
		path += "?fingerprint=" + url.QueryEscape(fingerprint)
	}

	var results model.Results
	if err := c.do(ctx, http.MethodGet, path, nil, &results); err != nil {
		return nil, err
	}
	return &results, nil
}

func (c *Client) Vote(ctx context.Context, id model.RoomID, options []string, fingerprint string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/rooms/%s/vote", id),
		voteRequest{Options: options, Fingerprint: fingerprint}, nil)
}

func (c *Client) Comments(ctx context.Context, id model.RoomID) ([]model.Comment, error) {
	var comments []model.Comment
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/rooms/%s/comments", id), nil, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (c *Client) CreateComment(ctx context.Context, id model.RoomID, content, nickname string) (*model.Comment, error) {
	var comment model.Comment
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/rooms/%s/comments", id),
		commentRequest{Content: content, Nickname: nickname}, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (c *Client) ListRooms(ctx context.Context, params ListParams) (*model.RoomList, error) {
	query := url.Values{}
	if params.Search != "" {
		query.Set("search", params.Search)
	}
	if len(params.Tags) > 0 {
		query.Set("tags", strings.Join(params.Tags, ","))
	}
	if params.Sort != "" {
		query.Set("sort", params.Sort)
	}
	if params.Page > 0 {
		query.Set("page", strconv.Itoa(params.Page))
	}
	if params.PageSize > 0 {
		query.Set("page_size", strconv.Itoa(params.PageSize))
	}

	path := "/rooms"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var list model.RoomList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*CreateRoomResponse, error) {
	var resp CreateRoomResponse
	if err := c.do(ctx, http.MethodPost, "/rooms", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w : %w", model.ErrInternal, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w : %w", model.ErrInternal, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w : %w", model.ErrInternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.mapStatus(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w : decode response : %w", model.ErrInternal, err)
		}
	}
	return nil
}

func (c *Client) mapStatus(resp *http.Response) error {
	var detail errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&detail)
	if detail.Detail == "" {
		detail.Detail = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w : %s", model.ErrNotFound, detail.Detail)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w : %s", model.ErrUnauthorized, detail.Detail)
	case http.StatusConflict:
		return fmt.Errorf("%w : %s", model.ErrConflict, detail.Detail)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w : %s", model.ErrBadRequest, detail.Detail)
	default:
		c.logger.Error("unexpected backend status",
			slog.Int("status", resp.StatusCode), slog.String("detail", detail.Detail))
		return fmt.Errorf("%w : status %d : %s", model.ErrInternal, resp.StatusCode, detail.Detail)
	}
}
