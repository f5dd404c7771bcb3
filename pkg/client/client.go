package client

import "time"

type Status string

const (
	Online  Status = "online"
	Offline Status = "offline"
)

// Client is a training participant. Clients are never deleted, only marked
// offline.
type Client struct {
	ID           string    `json:"client_id"`
	Status       Status    `json:"status"`
	TotalSamples uint64    `json:"total_samples"`
	LastSeen     time.Time `json:"last_seen"`
	RegisteredAt time.Time `json:"registered_at"`
}

type Page struct {
	Offset  uint64   `json:"offset"`
	Limit   uint64   `json:"limit"`
	Total   uint64   `json:"total"`
	Clients []Client `json:"clients"`
}

func (c *Client) Touch(now time.Time) {
	c.Status = Online
	c.LastSeen = now
}

func (c Client) Online() bool {
	return c.Status == Online
}

// Expired reports whether an online client has not been seen within timeout.
func (c Client) Expired(now time.Time, timeout time.Duration) bool {
	return c.Online() && now.Sub(c.LastSeen) > timeout
}
