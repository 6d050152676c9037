package models

import "time"

// Guest identifies a single invitee. The fields are snapshotted into the
// ticket payload at issuance time and never re-fetched afterwards.
type Guest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Event is the event a ticket admits entry to. Like Guest it is an
// immutable snapshot copied into the ticket at issuance.
type Event struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Date     time.Time `json:"date"`
	Location string    `json:"location,omitempty"`
}

// PayloadVersion is stamped into every encoded payload. Decoders treat it
// as informational only and never reject on mismatch.
const PayloadVersion = 1

// TicketPayload is the plaintext structure encrypted into the scannable
// credential. GuestID, GuestName and GuestEmail are required on decode;
// everything else is tolerated missing for forward compatibility.
type TicketPayload struct {
	GuestID       string `json:"guestId"`
	GuestName     string `json:"guestName"`
	GuestEmail    string `json:"guestEmail"`
	EventID       string `json:"eventId,omitempty"`
	EventName     string `json:"eventName,omitempty"`
	IssuedAt      int64  `json:"issuedAt,omitempty"`
	SchemaVersion int    `json:"schemaVersion,omitempty"`
}

// Tier names the storage backend a ticket record lives in. A record
// belongs to exactly one tier for its whole lifetime.
type Tier string

const (
	TierRemote Tier = "remote"
	TierLocal  Tier = "local"
)

// TicketRecord is the persisted form of an issued ticket.
type TicketRecord struct {
	Code          string     `json:"code"`
	Guest         Guest      `json:"guest"`
	Event         Event      `json:"event"`
	Credential    string     `json:"credential"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	Downloaded    bool       `json:"downloaded"`
	DownloadedAt  *time.Time `json:"downloadedAt,omitempty"`
	DownloadCount int        `json:"downloadCount"`
	LastAccessed  *time.Time `json:"lastAccessed,omitempty"`
	Tier          Tier       `json:"tier"`
}

// Expired reports whether the record is past its expiry at the given time.
func (r *TicketRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// DispatchOutcome records how a single guest's dispatch settled.
type DispatchOutcome struct {
	Guest     Guest  `json:"guest"`
	Code      string `json:"code,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Success   bool   `json:"success"`
	Simulated bool   `json:"simulated"`
	Attempts  int    `json:"attempts"`
	Err       error  `json:"-"`
}

// DispatchFailure is the report-friendly view of a failed outcome.
type DispatchFailure struct {
	GuestID  string `json:"guestId"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

// BatchReport aggregates a bulk dispatch run. Sent + Simulated + Failed
// always equals Total, regardless of per-item failures.
type BatchReport struct {
	Total     int               `json:"total"`
	Sent      int               `json:"sent"`
	Simulated int               `json:"simulated"`
	Failed    int               `json:"failed"`
	Failures  []DispatchFailure `json:"failures,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// PurgeResult carries per-tier removal counts from an expiry sweep.
type PurgeResult struct {
	RemoteRemoved int `json:"remoteRemoved"`
	LocalRemoved  int `json:"localRemoved"`
}
