package notifier

import (
	"github.com/clambin/go-common/set"
	"github.com/google/uuid"
	"strings"
	"sync"
)

const (
	helperPrefix = "hc_missing_"
	errorPrefix  = "hc_error_"
)

// HelperAlerts sends at most one "missing input" notification per input. Once the input recovers, the notification
// is dismissed and the input may alert again.
type HelperAlerts struct {
	Notifier Notifier
	notified set.Set[string]
	lock     sync.Mutex
}

func NewHelperAlerts(n Notifier) *HelperAlerts {
	return &HelperAlerts{Notifier: n, notified: set.New[string]()}
}

// Missing reports that the input is missing and that fallback is used instead.
func (h *HelperAlerts) Missing(name, fallback string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.notified.Contains(name) {
		return
	}
	h.notified.Add(name)
	h.Notifier.Notify(Notification{
		ID:      helperID(name),
		Title:   "Home controller: missing input",
		Message: name + " is missing or invalid. Using fallback: " + fallback,
	})
}

// Restored reports that the input is available again.
func (h *HelperAlerts) Restored(name string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if !h.notified.Contains(name) {
		return
	}
	h.notified.Remove(name)
	if d, ok := h.Notifier.(Dismisser); ok {
		d.Dismiss(helperID(name))
	}
}

// Active returns the inputs that are currently reported as missing.
func (h *HelperAlerts) Active() []string {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.notified.ListOrdered()
}

func helperID(name string) string {
	return helperPrefix + strings.NewReplacer(".", "_", " ", "_").Replace(name)
}

// ErrorID returns a new, unique ID for an error notification.
func ErrorID() string {
	return errorPrefix + uuid.NewString()
}

func isAlert(id string) bool {
	return strings.HasPrefix(id, errorPrefix) || strings.HasPrefix(id, helperPrefix)
}
