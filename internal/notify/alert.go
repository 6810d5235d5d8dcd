// Package notify batches alert-worthy events into debounced, per-type
// notifications and delivers them through the messaging gateway.
package notify

import "time"

// AlertType identifies one class of batched notification.
type AlertType string

const (
	AlertDown                 AlertType = "DOWN"
	AlertBackOnline           AlertType = "BACK_ONLINE"
	AlertAccessDenied         AlertType = "ACCESS_DENIED"
	AlertRESTError            AlertType = "REST_ERROR"
	AlertRESTRecovered        AlertType = "REST_RECOVERED"
	AlertContentLow           AlertType = "CONTENT_LOW"
	AlertRegistrationExpiring AlertType = "REGISTRATION_EXPIRING"
)

// Entry carries the per-domain details a batched message needs. Re-queueing
// the same domain within a window replaces its entry.
type Entry struct {
	DomainID    string
	Label       string
	URL         string
	FutureCount *int       // set for CONTENT_LOW
	WhoisExpiry *time.Time // set for REGISTRATION_EXPIRING
}
