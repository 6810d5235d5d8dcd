package monitor

import (
	"github.com/rakapra/domainwatch/internal/notify"
	"github.com/rakapra/domainwatch/internal/store"
)

// generalAlert maps a reachability transition onto its alert type. cancelDown
// reports that the domain must also be removed from a still-pending DOWN
// batch (it came back online before the batch flushed). Each rule is gated
// by its settings trigger flag.
func generalAlert(prev *store.CheckResult, current store.Reachability, settings store.Settings) (typ notify.AlertType, fire, cancelDown bool) {
	wasOnline := prev != nil && prev.Online == store.Up

	switch {
	case wasOnline && current == store.Down:
		return notify.AlertDown, settings.TriggerDown, false
	case !wasOnline && current == store.Up:
		return notify.AlertBackOnline, settings.TriggerBackOnline, settings.TriggerBackOnline
	case current == store.AccessDenied:
		return notify.AlertAccessDenied, settings.TriggerAccessDenied, false
	}
	return "", false, false
}

// restAlert maps a REST-health transition onto its alert type.
// "Fully successful" means an HTTP success status plus both content counts
// resolved; the previous state is judged from the stored REST status alone
// (the incomplete-data sentinel never falls in the success range).
func restAlert(prev *store.CheckResult, fullySuccessful bool, settings store.Settings) (typ notify.AlertType, fire bool) {
	wasOK := prev != nil && statusOK(prev.RESTStatus)

	switch {
	case wasOK && !fullySuccessful:
		return notify.AlertRESTError, settings.TriggerRESTError
	case !wasOK && fullySuccessful:
		return notify.AlertRESTRecovered, settings.TriggerRESTRecovered
	}
	return "", false
}

// statusOK reports whether a stored REST status is in the HTTP success
// range [200,400).
func statusOK(status *int) bool {
	return status != nil && *status >= 200 && *status < 400
}
