package notify

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rakapra/domainwatch/internal/store"
)

const messageHeader = "[Domain Monitor]"

// ComposeMessage renders one batched message for all queued entries of a
// type. Returns "" for types with nothing to say.
func ComposeMessage(typ AlertType, entries []Entry, settings store.Settings) string {
	if len(entries) == 0 {
		return ""
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Label < entries[j].Label })

	var sb strings.Builder
	switch typ {
	case AlertDown:
		fmt.Fprintf(&sb, "%s ALERT! 🚨\n\n*%d domain(s)* detected *DOWN*:\n", messageHeader, len(entries))
		for _, e := range entries {
			fmt.Fprintf(&sb, "\n- *%s* (%s)", e.Label, e.URL)
		}

	case AlertBackOnline:
		fmt.Fprintf(&sb, "%s INFO ✅\n\n*%d domain(s)* back *ONLINE*:\n", messageHeader, len(entries))
		for _, e := range entries {
			fmt.Fprintf(&sb, "\n- *%s*", e.Label)
		}

	case AlertAccessDenied:
		fmt.Fprintf(&sb, "%s ACCESS ALERT! 🔐\n\n*%d domain(s)* returned *Access Denied* (401/403):\n", messageHeader, len(entries))
		for _, e := range entries {
			fmt.Fprintf(&sb, "\n- *%s*", e.Label)
		}

	case AlertRESTError:
		fmt.Fprintf(&sb, "%s ALERT! 🛠️\n\n*%d domain(s)* have *REST API* problems:\n", messageHeader, len(entries))
		for _, e := range entries {
			fmt.Fprintf(&sb, "\n- *%s*", e.Label)
		}

	case AlertRESTRecovered:
		fmt.Fprintf(&sb, "%s INFO ✅\n\n*%d domain(s)* report the *REST API* back to normal:\n", messageHeader, len(entries))
		for _, e := range entries {
			fmt.Fprintf(&sb, "\n- *%s*", e.Label)
		}

	case AlertContentLow:
		fmt.Fprintf(&sb, "%s CONTENT SCHEDULE 📝\n\n*%d domain(s)* are running low on scheduled posts (≤ %d left):\n",
			messageHeader, len(entries), settings.ContentLowThreshold)
		for _, e := range entries {
			remaining := "n/a"
			if e.FutureCount != nil {
				if *e.FutureCount == 0 {
					remaining = "none left"
				} else {
					remaining = fmt.Sprintf("%d post(s)", *e.FutureCount)
				}
			}
			fmt.Fprintf(&sb, "\n- *%s* (remaining: %s)", e.Label, remaining)
		}
		sb.WriteString("\n\nAdd new scheduled posts soon.")

	case AlertRegistrationExpiring:
		fmt.Fprintf(&sb, "%s REGISTRATION ALERT 🗓️\n\n*%d domain(s)* expire soon:\n", messageHeader, len(entries))
		for _, e := range entries {
			if e.WhoisExpiry == nil {
				continue
			}
			daysLeft := int(math.Ceil(time.Until(*e.WhoisExpiry).Hours() / 24))
			fmt.Fprintf(&sb, "\n- *%s* (exp: %s, *%d day(s) left*)",
				e.Label, e.WhoisExpiry.Format("2 January 2006"), daysLeft)
		}

	default:
		return ""
	}
	return sb.String()
}
