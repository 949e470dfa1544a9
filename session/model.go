package session

import "time"

// Record is the stored form of one session. The plaintext secret is never part
// of a Record; only its bcrypt hash is kept.
type Record struct {
	ID         string
	Username   string
	SecretHash []byte

	CreatedAt int64
	ExpiresAt int64
}

// Info is the metadata view of a session returned to callers.
type Info struct {
	ID        string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (r *Record) info() Info {
	return Info{
		ID:        r.ID,
		Username:  r.Username,
		CreatedAt: time.UnixMilli(r.CreatedAt),
		ExpiresAt: time.UnixMilli(r.ExpiresAt),
	}
}

// expired reports whether the absolute expiry has been reached at now.
func (r *Record) expired(now time.Time) bool {
	return now.UnixMilli() >= r.ExpiresAt
}
