package dlna

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"airbridge/internal/device"
)

const (
	ssdpAddr          = "239.255.255.250:1900"
	ssdpNotifyDelay   = 50 * time.Millisecond
	ssdpResponseDelay = 10 * time.Millisecond
	ssdpNotifyPeriod  = 30 * time.Second
	configID          = 1
)

var bootID = time.Now().UTC().Unix()

type advertisedType struct {
	ST  string
	USN string
}

// advertisedTypesFor returns the NOTIFY/M-SEARCH target set for one
// MediaRenderer device: the root device plus the AVTransport/
// RenderingControl/ConnectionManager service types.
func advertisedTypesFor(dlnaUUID string) []advertisedType {
	return []advertisedType{
		{ST: "upnp:rootdevice", USN: dlnaUUID + "::upnp:rootdevice"},
		{ST: dlnaUUID, USN: dlnaUUID},
		{ST: "urn:schemas-upnp-org:device:MediaRenderer:1", USN: dlnaUUID + "::urn:schemas-upnp-org:device:MediaRenderer:1"},
		{ST: "urn:schemas-upnp-org:service:AVTransport:1", USN: dlnaUUID + "::urn:schemas-upnp-org:service:AVTransport:1"},
		{ST: "urn:schemas-upnp-org:service:RenderingControl:1", USN: dlnaUUID + "::urn:schemas-upnp-org:service:RenderingControl:1"},
		{ST: "urn:schemas-upnp-org:service:ConnectionManager:1", USN: dlnaUUID + "::urn:schemas-upnp-org:service:ConnectionManager:1"},
	}
}

// startSSDP launches the NOTIFY broadcaster and the M-SEARCH responder,
// re-reading manager.AllDevices() on every tick so devices that join or
// leave after Start are picked up without a restart.
func (s *Service) startSSDP(ctx context.Context) {
	conn, err := s.dialSSDP()
	if err != nil {
		s.logger.Error("ssdp dial failed", slog.Any("error", err))
		return
	}

	go func() {
		defer conn.Close()
		s.sendNotifyAll(conn)

		ticker := time.NewTicker(ssdpNotifyPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.sendByebyeAll(conn)
				return
			case <-ticker.C:
				s.sendNotifyAll(conn)
			}
		}
	}()

	s.listenForSearch(ctx)
}

func (s *Service) dialSSDP() (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", ssdpAddr)
	if err != nil {
		return nil, err
	}
	return net.DialUDP("udp", nil, addr)
}

func (s *Service) sendNotifyAll(conn *net.UDPConn) {
	for _, d := range s.manager.AllDevices() {
		s.sendNotify(conn, d)
	}
}

func (s *Service) sendNotify(conn *net.UDPConn, d *device.VirtualDevice) {
	for _, t := range advertisedTypesFor(d.DLNAUUID) {
		msg := fmt.Sprintf(
			"NOTIFY * HTTP/1.1\r\n"+
				"HOST: %s\r\n"+
				"CACHE-CONTROL: max-age=1800\r\n"+
				"LOCATION: %s\r\n"+
				"NT: %s\r\n"+
				"NTS: ssdp:alive\r\n"+
				"SERVER: %s\r\n"+
				"USN: %s\r\n"+
				"BOOTID.UPNP.ORG: %d\r\n"+
				"CONFIGID.UPNP.ORG: %d\r\n"+
				"\r\n",
			ssdpAddr, s.locationURL(d.DeviceID), t.ST, serverField, t.USN, bootID, configID,
		)
		if _, err := conn.Write([]byte(msg)); err != nil {
			s.logger.Error("ssdp notify write failed", slog.Any("error", err))
		}
		time.Sleep(ssdpNotifyDelay)
	}
}

func (s *Service) sendByebyeAll(conn *net.UDPConn) {
	for _, d := range s.manager.AllDevices() {
		for _, t := range advertisedTypesFor(d.DLNAUUID) {
			msg := fmt.Sprintf(
				"NOTIFY * HTTP/1.1\r\nHOST: %s\r\nNT: %s\r\nNTS: ssdp:byebye\r\nUSN: %s\r\nBOOTID.UPNP.ORG: %d\r\n\r\n",
				ssdpAddr, t.ST, t.USN, bootID,
			)
			_, _ = conn.Write([]byte(msg))
			time.Sleep(ssdpNotifyDelay)
		}
	}
}

func (s *Service) listenForSearch(ctx context.Context) {
	addr, err := net.ResolveUDPAddr("udp", ssdpAddr)
	if err != nil {
		s.logger.Error("ssdp resolve failed", slog.Any("error", err))
		return
	}
	conn, err := net.ListenMulticastUDP("udp", nil, addr)
	if err != nil {
		s.logger.Error("m-search listener failed", slog.Any("error", err))
		return
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer conn.Close()
		buf := make([]byte, 2048)
		for {
			n, src, err := conn.ReadFromUDP(buf)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("ssdp read failed", slog.Any("error", err))
				return
			}
			msg := string(buf[:n])
			if strings.Contains(msg, "M-SEARCH") {
				s.respondToSearch(src, searchTargetOf(msg))
			}
		}
	}()
}

func searchTargetOf(msg string) string {
	for _, line := range strings.Split(msg, "\r\n") {
		if strings.HasPrefix(strings.ToUpper(line), "ST:") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}
	return "ssdp:all"
}

func (s *Service) respondToSearch(dst *net.UDPAddr, searchTarget string) {
	conn, err := net.DialUDP("udp", nil, dst)
	if err != nil {
		s.logger.Error("respond to search dial failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	for _, d := range s.manager.AllDevices() {
		for _, t := range advertisedTypesFor(d.DLNAUUID) {
			if searchTarget != "ssdp:all" && searchTarget != t.ST {
				continue
			}
			response := fmt.Sprintf(
				"HTTP/1.1 200 OK\r\n"+
					"CACHE-CONTROL: max-age=1800\r\n"+
					"DATE: %s\r\n"+
					"EXT:\r\n"+
					"LOCATION: %s\r\n"+
					"SERVER: %s\r\n"+
					"ST: %s\r\n"+
					"USN: %s\r\n"+
					"BOOTID.UPNP.ORG: %d\r\n"+
					"CONFIGID.UPNP.ORG: %d\r\n"+
					"\r\n",
				time.Now().UTC().Format(time.RFC1123), s.locationURL(d.DeviceID), serverField, t.ST, t.USN, bootID, configID,
			)
			if _, err := conn.Write([]byte(response)); err != nil {
				s.logger.Error("ssdp search response write failed", slog.Any("error", err))
			}
			time.Sleep(ssdpResponseDelay)
		}
	}
}
