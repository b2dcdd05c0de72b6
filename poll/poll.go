package poll

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Identity names a caller. Authentication happens in the transport, the engine
// trusts the value it is given.
type Identity string

// Ciphertext is an opaque encrypted value produced by a CiphertextOps
// implementation.
type Ciphertext []byte

// Handle returns a short, stable reference to the ciphertext suitable for logs
// and events. It reveals nothing about the plaintext.
func (c Ciphertext) Handle() string {
	if len(c) == 0 {
		return ""
	}
	digest := sha256.Sum256(c)
	return hex.EncodeToString(digest[:16])
}

// Poll is the stored record of a single poll.
type Poll struct {
	ID          uint64       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Options     []string     `json:"options"`
	StartTime   uint64       `json:"startTime"`
	EndTime     uint64       `json:"endTime"`
	Closed      bool         `json:"closed"`
	Creator     Identity     `json:"creator"`
	TotalVoters uint64       `json:"totalVoters"`
	Tally       []Ciphertext `json:"tally"`
	Decrypted   bool         `json:"decrypted"`
}

// IsActive reports whether the poll accepts votes at the given unix time. A
// poll stops being active once it is closed or once now passes its end time.
func (p *Poll) IsActive(now uint64) bool {
	return !p.Closed && now <= p.EndTime
}

// Expired reports whether the end time has passed.
func (p *Poll) Expired(now uint64) bool {
	return now > p.EndTime
}

// Copy returns a deep copy so callers can never alias store internals.
func (p *Poll) Copy() *Poll {
	cp := *p
	cp.Options = append([]string(nil), p.Options...)
	cp.Tally = make([]Ciphertext, len(p.Tally))
	for i, ct := range p.Tally {
		cp.Tally[i] = append(Ciphertext(nil), ct...)
	}
	return &cp
}

// Info is the public, read-only view of a poll.
type Info struct {
	ID          uint64   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	StartTime   uint64   `json:"startTime"`
	EndTime     uint64   `json:"endTime"`
	IsActive    bool     `json:"isActive"`
	Creator     Identity `json:"creator"`
	TotalVoters uint64   `json:"totalVoters"`
}

func (p *Poll) info(now uint64) Info {
	return Info{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		IsActive:    p.IsActive(now),
		Creator:     p.Creator,
		TotalVoters: p.TotalVoters,
	}
}

func (p *Poll) String() string {
	if p == nil {
		return "nil"
	}
	return fmt.Sprintf("Poll{%d %q by %s, %d options, %d voters}", p.ID, p.Title, p.Creator, len(p.Options), p.TotalVoters)
}
