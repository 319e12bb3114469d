package dlna

import "net/http"

// handleGENA serves both SUBSCRIBE and UNSUBSCRIBE for
// /device/{id}/evt/{service}, the GENA state-variable eventing mechanism.
// Only AVTransport subscriptions are meaningfully tracked (see fanout.go);
// RenderingControl/ConnectionManager subscribe requests are accepted but
// never produce NOTIFY traffic, since no control point in practice
// subscribes to them.
func (s *Service) handleGENA(w http.ResponseWriter, r *http.Request, deviceID string) {
	service := r.PathValue("service")

	switch r.Method {
	case "SUBSCRIBE":
		s.handleSubscribe(w, r, deviceID, service)
	case "UNSUBSCRIBE":
		s.handleUnsubscribe(w, r, deviceID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Service) handleSubscribe(w http.ResponseWriter, r *http.Request, deviceID, service string) {
	if sid := r.Header.Get("SID"); sid != "" {
		sub, err := s.subs.renew(sid, r.Header.Get("TIMEOUT"))
		if err != nil {
			http.Error(w, "invalid subscription", http.StatusPreconditionFailed)
			return
		}
		writeSubscribeHeaders(w, sub)
		return
	}

	clientIP := clientIPFromRequest(r)
	sub, err := s.subs.subscribe(deviceID, service, clientIP, r.Header.Get("CALLBACK"), r.Header.Get("TIMEOUT"))
	if err != nil {
		http.Error(w, "invalid callback", http.StatusBadRequest)
		return
	}
	writeSubscribeHeaders(w, sub)

	if d := s.manager.GetDevice(deviceID); d != nil && service == "AVTransport" {
		go s.notifyAVTransportSubscribers(d)
	}
}

func (s *Service) handleUnsubscribe(w http.ResponseWriter, r *http.Request, _ string) {
	sid := r.Header.Get("SID")
	if sid == "" {
		http.Error(w, "missing SID", http.StatusBadRequest)
		return
	}
	if err := s.subs.unsubscribe(sid); err != nil {
		http.Error(w, "invalid subscription", http.StatusPreconditionFailed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeSubscribeHeaders(w http.ResponseWriter, sub *subscription) {
	w.Header().Set("SID", sub.SID)
	w.Header().Set("TIMEOUT", "Second-1800")
	w.WriteHeader(http.StatusOK)
}
