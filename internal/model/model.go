package model

import (
	"time"

	"github.com/google/uuid"
)

type RoomID string

const EmptyRoomID RoomID = ""

func (id RoomID) Valid() bool {
	_, err := uuid.Parse(string(id))
	return err == nil
}

// Room is the access descriptor for a single poll. It is immutable once
// fetched; a session never re-reads it.
type Room struct {
	ID            RoomID     `json:"uuid"`
	Title         string     `json:"title"`
	Options       []string   `json:"options"`
	HasPassword   bool       `json:"has_password"`
	AllowMultiple bool       `json:"allow_multiple"`
	Tags          []string   `json:"tags"`
	TotalVotes    int        `json:"total_votes"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

func (r *Room) HasOption(option string) bool {
	for _, o := range r.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Results is the latest tally snapshot for a room. Options missing from
// Tally have zero votes.
type Results struct {
	RoomID    RoomID         `json:"room_uuid"`
	Title     string         `json:"title"`
	Tally     map[string]int `json:"results"`
	HasVoted  bool           `json:"has_voted"`
	ExpiresAt *time.Time     `json:"expires_at"`
}

func (r *Results) Count(option string) int {
	return r.Tally[option]
}

func (r *Results) Total() int {
	var total int
	for _, n := range r.Tally {
		total += n
	}
	return total
}

type Comment struct {
	ID        string    `json:"id"`
	RoomID    RoomID    `json:"room_uuid"`
	Content   string    `json:"content"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"created_at"`
}

// Credentials carries whatever the incoming link or the user supplied to
// pass a room's password gate. Held in memory only.
type Credentials struct {
	Password   string
	ShareToken string
}

type RoomSummary struct {
	ID            RoomID     `json:"uuid"`
	Title         string     `json:"title"`
	Tags          []string   `json:"tags"`
	TotalVotes    int        `json:"total_votes"`
	HasPassword   bool       `json:"has_password"`
	AllowMultiple bool       `json:"allow_multiple"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

type RoomList struct {
	Rooms    []RoomSummary `json:"rooms"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	HasNext  bool          `json:"has_next"`
}
