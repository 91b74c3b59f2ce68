package model

import "time"

// Group is a multi-day request: the aggregate over its member rows. Members
// are ordered by start date.
type Group struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Members   []Request `json:"members"`
}

// MemberIDs returns the ids of all member rows.
func (g *Group) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

// Member returns the member row with the given id.
func (g *Group) Member(id string) (*Request, bool) {
	for i := range g.Members {
		if g.Members[i].ID == id {
			return &g.Members[i], true
		}
	}
	return nil, false
}

// Each calls fn for every member, stopping at the first error.
func (g *Group) Each(fn func(*Request) error) error {
	for i := range g.Members {
		if err := fn(&g.Members[i]); err != nil {
			return err
		}
	}
	return nil
}

// Deletable reports whether every member is still editable.
func (g *Group) Deletable() bool {
	for i := range g.Members {
		if !g.Members[i].Editable() {
			return false
		}
	}
	return true
}

// ThreadRef maps a correspondence thread to the row that anchors it.
type ThreadRef struct {
	ThreadID  string `json:"thread_id"`
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
}
