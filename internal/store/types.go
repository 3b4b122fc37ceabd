package store

import "time"

// Branch is a named, mutable pointer to the latest commit in a lineage.
// The branch named "main" always exists and is never deleted.
type Branch struct {
	Name        string
	HeadCommit  string // empty when the branch has no commits yet
	CreatedAt   time.Time
	Description string
}

// Commit is an immutable snapshot referencing a fixed set of event ids.
// EventIDs are referential, not owning: a commit indexes events, it does
// not contain them. Tags are the only mutable field.
type Commit struct {
	ID        string
	Branch    string
	Message   string
	Author    string
	Timestamp time.Time
	EventIDs  []string
	Parent    string // empty at a lineage root
	Tags      []string
}

// Tag is an immutable named pointer to exactly one commit.
type Tag struct {
	Name      string
	CommitID  string
	Message   string
	CreatedAt time.Time
}
