package dlna

import (
	"strings"

	"airbridge/internal/device"
)

// sinkMimeTypes lists every audio MIME type this bridge's outputs can
// accept, plus a wildcard fallback.
var sinkMimeTypes = []string{
	"audio/flac",
	"audio/x-flac",
	"audio/wav",
	"audio/x-wav",
	"audio/L16",
	"audio/L24",
	"audio/aac",
	"audio/mpeg",
	"audio/ogg",
	"audio/mp4",
	"audio/x-ape",
	"audio/x-dsd",
	"*",
}

func protocolInfoSink() string {
	parts := make([]string, 0, len(sinkMimeTypes))
	for _, mime := range sinkMimeTypes {
		parts = append(parts, "http-get:*:"+mime+":*")
	}
	return strings.Join(parts, ",")
}

func (s *Service) actionGetProtocolInfo(*device.VirtualDevice, string, map[string]string) (map[string]string, error) {
	return map[string]string{
		"Source": "",
		"Sink":   protocolInfoSink(),
	}, nil
}

func (s *Service) actionGetCurrentConnectionIDs(*device.VirtualDevice, string, map[string]string) (map[string]string, error) {
	return map[string]string{"ConnectionIDs": "0"}, nil
}

func (s *Service) actionGetCurrentConnectionInfo(*device.VirtualDevice, string, map[string]string) (map[string]string, error) {
	return map[string]string{
		"RcsID":                 "-1",
		"AVTransportID":         "-1",
		"ProtocolInfo":          "",
		"PeerConnectionManager": "",
		"PeerConnectionID":      "-1",
		"Direction":             "Input",
		"Status":                "OK",
	}, nil
}
