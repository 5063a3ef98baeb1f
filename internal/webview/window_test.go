package webview

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitle(t *testing.T) {
	assert.Equal(t, BaseTitle, Title("  "))
	assert.Equal(t, "Firebridge | rooms", Title(" rooms "))
}

func TestInitScript(t *testing.T) {
	script := InitScript("ws://127.0.0.1:4000/bridge?token=a=b", "http://localhost:5173")
	assert.Contains(t, script, `window.__FIREBRIDGE__ = {"url":"ws://127.0.0.1:4000/bridge?token=a=b"};`)
	assert.Contains(t, script, `a.href.startsWith("http://localhost:5173")`)
	assert.Contains(t, script, "openExternal(a.href)")
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "http://localhost:5173", origin("http://localhost:5173/app/index.html?x=1"))
	assert.Equal(t, "about:blank", origin("about:blank"))
}
