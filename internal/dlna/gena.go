package dlna

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/dms/upnp"
)

const (
	defaultSubscriptionTimeout = 1800 * time.Second
	notifyTimeout              = 5 * time.Second
)

// subscription is one GENA SUBSCRIBE registration: a control point's
// promise to receive NOTIFY requests for one device's AVTransport (or
// RenderingControl or ConnectionManager) service until Expiry.
type subscription struct {
	SID      string
	DeviceID string
	Service  string // "AVTransport", "RenderingControl" or "ConnectionManager"
	ClientIP string
	Callback *url.URL
	Expiry   time.Time
	Seq      uint32

	// IsTemporary marks a subscription synthesized by SetAVTransportURI for
	// a control point that never sent a GENA SUBSCRIBE: it has no Callback
	// and is never notified, but it lets hasActiveSubscription recognize
	// the caller so later Play/Stop/Pause/Seek/etc. calls aren't rejected
	// for want of a SUBSCRIBE the control point doesn't bother sending.
	IsTemporary bool
	// LastPlayURL is the CurrentURI staged when a temporary subscription
	// was created, kept for diagnostics.
	LastPlayURL string
}

// subscriptionTable tracks every live GENA subscription. One table is
// shared by every device the service exposes.
type subscriptionTable struct {
	mu   sync.Mutex
	byID map[string]*subscription
	http *http.Client
	log  *slog.Logger
}

func newSubscriptionTable(logger *slog.Logger) *subscriptionTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &subscriptionTable{
		byID: make(map[string]*subscription),
		http: &http.Client{Timeout: notifyTimeout},
		log:  logger,
	}
}

func newSID() string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return "uuid:" + hex.EncodeToString(buf[:])
}

// subscribe allocates a fresh subscription, first removing any prior
// registration for the same (device, client-ip, service) tuple per the
// GENA SUBSCRIBE-without-SID semantics.
func (t *subscriptionTable) subscribe(deviceID, service, clientIP string, callbackHeader string, timeoutHeader string) (*subscription, error) {
	urls := upnp.ParseCallbackURLs(callbackHeader)
	if len(urls) == 0 {
		return nil, errInvalidArgs
	}

	timeout := defaultSubscriptionTimeout
	var secs int
	if n, _ := fmt.Sscanf(timeoutHeader, "Second-%d", &secs); n == 1 && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	t.mu.Lock()
	for id, s := range t.byID {
		if s.DeviceID == deviceID && s.Service == service && s.ClientIP == clientIP {
			delete(t.byID, id)
		}
	}
	sub := &subscription{
		SID:      newSID(),
		DeviceID: deviceID,
		Service:  service,
		ClientIP: clientIP,
		Callback: urls[0],
		Expiry:   time.Now().Add(timeout),
	}
	t.byID[sub.SID] = sub
	t.mu.Unlock()

	return sub, nil
}

// subscribeTemporary synthesizes a callback-less subscription for a
// control point that issues SetAVTransportURI without ever SUBSCRIBEing,
// per the "create a temporary subscription" allowance so the caller still
// passes hasActiveSubscription checks for the commands that follow.
func (t *subscriptionTable) subscribeTemporary(deviceID, service, clientIP, lastPlayURL string) *subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub := &subscription{
		SID:         newSID(),
		DeviceID:    deviceID,
		Service:     service,
		ClientIP:    clientIP,
		Expiry:      time.Now().Add(defaultSubscriptionTimeout),
		IsTemporary: true,
		LastPlayURL: lastPlayURL,
	}
	t.byID[sub.SID] = sub
	return sub
}

// renew refreshes an existing subscription's expiry (GENA SUBSCRIBE with
// SID). Returns errInvalidArgs if sid is unknown.
func (t *subscriptionTable) renew(sid, timeoutHeader string) (*subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub, ok := t.byID[sid]
	if !ok {
		return nil, errInvalidArgs
	}
	timeout := defaultSubscriptionTimeout
	var secs int
	if n, _ := fmt.Sscanf(timeoutHeader, "Second-%d", &secs); n == 1 && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	sub.Expiry = time.Now().Add(timeout)
	return sub, nil
}

// unsubscribe removes sid. Returns errInvalidArgs if unknown.
func (t *subscriptionTable) unsubscribe(sid string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[sid]; !ok {
		return errInvalidArgs
	}
	delete(t.byID, sid)
	return nil
}

// forDevice returns every non-expired subscription to service on
// deviceID, pruning expired entries encountered along the way.
func (t *subscriptionTable) forDevice(deviceID, service string) []*subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	var out []*subscription
	for id, sub := range t.byID {
		if sub.Expiry.Before(now) {
			delete(t.byID, id)
			continue
		}
		if sub.DeviceID == deviceID && sub.Service == service {
			out = append(out, sub)
		}
	}
	return out
}

// hasActiveSubscription reports whether clientIP holds a live AVTransport
// subscription on deviceID — the authorization precondition for
// Play/Stop/Pause/Seek.
func (t *subscriptionTable) hasActiveSubscription(deviceID, service, clientIP string) bool {
	for _, s := range t.forDevice(deviceID, service) {
		if s.ClientIP == clientIP {
			return true
		}
	}
	return false
}

// lastChangeBody builds the AVTransport LastChange event XML for one
// device. state is the per-subscriber wire state the caller has already
// chosen with transportStateWire.
func lastChangeBody(state string, actions string, avURI, trackURI string) string {
	var b strings.Builder
	b.WriteString(`<Event xmlns="urn:schemas-upnp-org:metadata-1-0/AVT/"><InstanceID val="0">`)
	fmt.Fprintf(&b, `<TransportState val="%s"/>`, escapeXML(state))
	b.WriteString(`<TransportStatus val="OK"/>`)
	fmt.Fprintf(&b, `<CurrentTransportActions val="%s"/>`, escapeXML(actions))
	fmt.Fprintf(&b, `<AVTransportURI val="%s"/>`, escapeXML(avURI))
	fmt.Fprintf(&b, `<CurrentTrackURI val="%s"/>`, escapeXML(trackURI))
	b.WriteString(`</InstanceID></Event>`)
	return b.String()
}

// notifyPropertySet wraps lastChangeBody's escaped XML in the GENA
// propertyset envelope via anacrolix/dms/upnp's eventing types, matching
// the wire shape every other GENA publisher in the DLNA ecosystem
// produces (ContentDirectory's SystemUpdateID property being the
// simplest example of the same upnp.PropertySet/Property/Variable shape).
func notifyPropertySet(lastChange string) ([]byte, error) {
	ps := upnp.PropertySet{
		Properties: []upnp.Property{
			{
				Variable: upnp.Variable{
					XMLName: xml.Name{Local: "LastChange"},
					Value:   lastChange,
				},
			},
		},
		Space: "urn:schemas-upnp-org:event-1-0",
	}
	body, err := xml.Marshal(ps)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// notify sends one NOTIFY request to sub.Callback with a strictly
// increasing SEQ, logging (never failing) transport errors per the
// "outbound NOTIFY failures are non-fatal" resource-model rule.
func (t *subscriptionTable) notify(sub *subscription, body []byte) {
	if sub.IsTemporary || sub.Callback == nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, sub.Callback.String(), bytes.NewReader(body))
	if err != nil {
		t.log.Warn("build NOTIFY request failed", slog.Any("error", err), slog.String("sid", sub.SID))
		return
	}
	req.Method = "NOTIFY"
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("NTS", "upnp:propchange")
	req.Header.Set("SID", sub.SID)
	req.Header.Set("SEQ", fmt.Sprintf("%d", sub.Seq))
	sub.Seq++

	resp, err := t.http.Do(req)
	if err != nil {
		t.log.Warn("NOTIFY delivery failed", slog.Any("error", err), slog.String("sid", sub.SID))
		return
	}
	resp.Body.Close()
}
