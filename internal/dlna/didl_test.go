package dlna

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDIDLMetadata_PlainXML(t *testing.T) {
	raw := `<DIDL-Lite><item><dc:title>Song</dc:title><dc:creator>Band</dc:creator><upnp:album>Record</upnp:album><upnp:albumArtURI>http://x/cover.jpg</upnp:albumArtURI><res duration="0:03:45.000">http://x/track.flac</res></item></DIDL-Lite>`
	title, artist, album, cover, duration := parseDIDLMetadata(raw)
	assert.Equal(t, "Song", title)
	assert.Equal(t, "Band", artist)
	assert.Equal(t, "Record", album)
	assert.Equal(t, "http://x/cover.jpg", cover)
	assert.Equal(t, 225.0, duration)
}

func TestParseDIDLMetadata_PrefersUPnPArtistOverCreator(t *testing.T) {
	raw := `<DIDL-Lite><item><upnp:artist>Real Artist</upnp:artist><dc:creator>Fallback</dc:creator></item></DIDL-Lite>`
	_, artist, _, _, _ := parseDIDLMetadata(raw)
	assert.Equal(t, "Real Artist", artist)
}

func TestParseDIDLMetadata_FallsBackToCreatorWhenNoArtistTag(t *testing.T) {
	raw := `<DIDL-Lite><item><dc:creator>Only Creator</dc:creator></item></DIDL-Lite>`
	_, artist, _, _, _ := parseDIDLMetadata(raw)
	assert.Equal(t, "Only Creator", artist)
}

func TestParseDIDLMetadata_TolerateCDATAWrapping(t *testing.T) {
	raw := `<![CDATA[<DIDL-Lite><item><dc:title>Wrapped</dc:title></item></DIDL-Lite>]]>`
	title, _, _, _, _ := parseDIDLMetadata(raw)
	assert.Equal(t, "Wrapped", title)
}

func TestParseDIDLMetadata_TolerateEntityEscaping(t *testing.T) {
	raw := "&lt;DIDL-Lite&gt;&lt;item&gt;&lt;dc:title&gt;Escaped&lt;/dc:title&gt;&lt;/item&gt;&lt;/DIDL-Lite&gt;"
	title, _, _, _, _ := parseDIDLMetadata(raw)
	assert.Equal(t, "Escaped", title)
}

func TestParseDIDLMetadata_MalformedNeverErrors(t *testing.T) {
	title, artist, album, cover, duration := parseDIDLMetadata("not xml at all")
	assert.Empty(t, title)
	assert.Empty(t, artist)
	assert.Empty(t, album)
	assert.Empty(t, cover)
	assert.Zero(t, duration)
}

func TestParseDIDLMetadata_EmptyReturnsZeroValues(t *testing.T) {
	title, artist, album, cover, duration := parseDIDLMetadata("   ")
	assert.Empty(t, title)
	assert.Empty(t, artist)
	assert.Empty(t, album)
	assert.Empty(t, cover)
	assert.Zero(t, duration)
}

func TestParseDIDLMetadata_NoResElementLeavesDurationZero(t *testing.T) {
	raw := `<DIDL-Lite><item><dc:title>NoDuration</dc:title></item></DIDL-Lite>`
	_, _, _, _, duration := parseDIDLMetadata(raw)
	assert.Zero(t, duration)
}

func TestEscapeXML_RoundTripsThroughUnescapeXML(t *testing.T) {
	original := `Tom & Jerry's "Great" <Escape>`
	assert.Equal(t, original, unescapeXML(escapeXML(original)))
}
