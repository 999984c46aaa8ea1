package infra_history

import (
	"encoding/json"
	"time"

	"github.com/fastvote/client-go/internal/model"
)

// Record is one "my polls" entry: a room this device created or visited,
// plus the share token needed to reopen a gated room without the password.
type Record struct {
	RoomID        model.RoomID
	Title         string
	Tags          []string
	HasPassword   bool
	AllowMultiple bool
	TotalVotes    int
	ShareToken    string
	CreatedAt     time.Time
	ExpiresAt     *time.Time
}

type recordDB struct {
	RoomID        string     `db:"room_uuid"`
	Title         string     `db:"title"`
	Tags          string     `db:"tags"`
	HasPassword   bool       `db:"has_password"`
	AllowMultiple bool       `db:"allow_multiple"`
	TotalVotes    int        `db:"total_votes"`
	ShareToken    string     `db:"share_token"`
	CreatedAt     time.Time  `db:"created_at"`
	ExpiresAt     *time.Time `db:"expires_at"`
}

func (r *recordDB) ToDomain() Record {
	var tags []string
	// Tags were marshalled by us; a broken row just loses its tags.
	_ = json.Unmarshal([]byte(r.Tags), &tags)

	return Record{
		RoomID:        model.RoomID(r.RoomID),
		Title:         r.Title,
		Tags:          tags,
		HasPassword:   r.HasPassword,
		AllowMultiple: r.AllowMultiple,
		TotalVotes:    r.TotalVotes,
		ShareToken:    r.ShareToken,
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
	}
}

func fromDomain(rec Record) recordDB {
	tags, err := json.Marshal(rec.Tags)
	if err != nil || rec.Tags == nil {
		tags = []byte("[]")
	}

	return recordDB{
		RoomID:        string(rec.RoomID),
		Title:         rec.Title,
		Tags:          string(tags),
		HasPassword:   rec.HasPassword,
		AllowMultiple: rec.AllowMultiple,
		TotalVotes:    rec.TotalVotes,
		ShareToken:    rec.ShareToken,
		CreatedAt:     rec.CreatedAt,
		ExpiresAt:     rec.ExpiresAt,
	}
}
