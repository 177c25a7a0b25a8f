// Package notification delivers post-diagnosis events to push services and
// the MQTT event topic. Delivery is fire-and-forget: failures are logged and
// counted, never returned to the request that produced the event.
package notification

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Type represents the category of a notification
type Type string

const (
	// TypeDiagnosis is sent after a diagnosis has been stored.
	TypeDiagnosis Type = "diagnosis"
	// TypeSystem is used for operational messages such as startup tests.
	TypeSystem Type = "system"
)

// Notification is the provider-neutral message handed to every provider.
type Notification struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewNotification creates a notification with a fresh id.
func NewNotification(notifType Type, title, message string) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Type:      notifType,
		Title:     title,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]any),
	}
}

// WithMetadata sets a metadata entry and returns n for chaining.
func (n *Notification) WithMetadata(key string, value any) *Notification {
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[key] = value
	return n
}

// Clone returns a copy that providers may modify freely.
func (n *Notification) Clone() *Notification {
	c := *n
	c.Metadata = maps.Clone(n.Metadata)
	return &c
}

// DiagnosisEvent describes a stored diagnosis.
type DiagnosisEvent struct {
	UserID     string
	RecordID   uint
	Crop       string
	Disease    string
	Confidence int
	ImageURL   string
	Source     string // local or external
}

// NewDiagnosisNotification builds the notification for a stored diagnosis.
func NewDiagnosisNotification(ev DiagnosisEvent) *Notification {
	title := fmt.Sprintf("%s: %s", ev.Crop, ev.Disease)
	message := fmt.Sprintf("Diagnosis #%d: %s on %s (%d%% confidence)",
		ev.RecordID, ev.Disease, ev.Crop, ev.Confidence)

	return NewNotification(TypeDiagnosis, title, message).
		WithMetadata("user_id", ev.UserID).
		WithMetadata("record_id", ev.RecordID).
		WithMetadata("crop", ev.Crop).
		WithMetadata("disease", ev.Disease).
		WithMetadata("confidence", ev.Confidence).
		WithMetadata("image_url", ev.ImageURL).
		WithMetadata("source", ev.Source)
}
