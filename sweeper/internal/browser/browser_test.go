package browser

import (
	"testing"

	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/stretchr/testify/assert"
)

func TestParseMode(t *testing.T) {
	assert.Equal(t, Headful, ParseMode("headful"))
	assert.Equal(t, Headless, ParseMode("headless"))
	assert.Equal(t, Headless, ParseMode(""))
	assert.Equal(t, "headful", Headful.String())
}

func TestShouldBlock(t *testing.T) {
	set := blockSet([]string{"images", " Media ", "stylesheet"})
	assert.True(t, shouldBlock(set, "Image"))
	assert.True(t, shouldBlock(set, "Media"))
	assert.True(t, shouldBlock(set, "Stylesheet"))
	assert.False(t, shouldBlock(set, "Font"))
	assert.False(t, shouldBlock(set, "Document"))
	assert.False(t, shouldBlock(set, "XHR"))
}

func TestLauncherFlags(t *testing.T) {
	m := NewManager(Config{UserDataDir: "/tmp/feedsweep-profile", Mode: Headful, XvfbDisplay: ":42"})
	l := m.launcher()

	assert.Equal(t, "/tmp/feedsweep-profile", l.Get(flags.UserDataDir))
	assert.False(t, l.Has(flags.Headless))
	assert.Equal(t, "AutomationControlled", l.Get("disable-blink-features"))

	headless := NewManager(Config{}).launcher()
	assert.True(t, headless.Has(flags.Headless))
}

func TestManagerClosed(t *testing.T) {
	m := NewManager(Config{})
	assert.NoError(t, m.Close())
	_, err := m.Start(t.Context())
	assert.Error(t, err)
	assert.Nil(t, m.Browser())
}
