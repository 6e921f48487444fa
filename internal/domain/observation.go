package domain

import (
	"strings"
	"sync"
	"time"
)

// Protocol tags used by listeners when constructing ObservationEvents.
const (
	ProtoHTTP  = "http"
	ProtoHTTPS = "https"
	ProtoSSH   = "ssh"
	ProtoFTP   = "ftp"
	ProtoSMTP  = "smtp"
	ProtoPOP3  = "pop3"
	ProtoIMAP  = "imap"
	ProtoMySQL = "mysql"
)

// ObservationEvent is the raw fact emitted by a protocol listener when one
// of its detection rules fires. It carries no taxonomy knowledge of its
// own; InternalKind is a free-form string drawn from the listener's own
// vocabulary and is resolved to a canonical kind by the classifier.
type ObservationEvent struct {
	SourceAddress string
	SourcePort    int
	Protocol      string
	InternalKind  string
	Description   string
	Evidence      []string
	SessionTime   time.Time
}

var observationPool = sync.Pool{
	New: func() interface{} {
		return &ObservationEvent{Evidence: make([]string, 0, 4)}
	},
}

// AcquireObservationEvent returns a pooled, zeroed event. Callers must call
// ReleaseObservationEvent once the event has been handed off (or dropped).
func AcquireObservationEvent() *ObservationEvent {
	ev := observationPool.Get().(*ObservationEvent)
	ev.SourceAddress = ""
	ev.SourcePort = 0
	ev.Protocol = ""
	ev.InternalKind = ""
	ev.Description = ""
	ev.Evidence = ev.Evidence[:0]
	ev.SessionTime = time.Time{}
	return ev
}

// ReleaseObservationEvent returns an event to the pool. Do not use ev after
// calling this.
func ReleaseObservationEvent(ev *ObservationEvent) {
	if ev == nil {
		return
	}
	observationPool.Put(ev)
}

// Clone returns a deep copy safe to retain past the pipeline stage that
// produced it, independent of the pool's backing arrays.
func (e *ObservationEvent) Clone() *ObservationEvent {
	evidence := make([]string, len(e.Evidence))
	for i, s := range e.Evidence {
		evidence[i] = strings.Clone(s)
	}
	return &ObservationEvent{
		SourceAddress: strings.Clone(e.SourceAddress),
		SourcePort:    e.SourcePort,
		Protocol:      strings.Clone(e.Protocol),
		InternalKind:  strings.Clone(e.InternalKind),
		Description:   strings.Clone(e.Description),
		Evidence:      evidence,
		SessionTime:   e.SessionTime,
	}
}

// EvidenceString joins evidence entries with a separator unlikely to occur
// inside a JSON-encoded evidence fact, for use by refinement heuristics
// that need to scan the whole evidence set as one case-insensitive blob.
func (e *ObservationEvent) EvidenceString() string {
	return strings.ToLower(strings.Join(e.Evidence, "\x1f"))
}
