package domain

import "time"

// SpoolEntry is the on-disk shape of one offline-spool record. The canonical
// kind written here is never re-derived on replay: the spool is not
// rewritten on taxonomy change, per the invariant that the stored kind
// equals the kind that produced the record.
type SpoolEntry struct {
	Record        CanonicalAttackRecord `json:"record"`
	StoredAt      time.Time             `json:"stored_at"`
	PendingUpload bool                  `json:"pending_upload"`
	Throttled     bool                  `json:"throttled,omitempty"`
}
