package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUID(t *testing.T) {
	uid, ok := ParseUID("package:com.a uid:10210")
	require.True(t, ok)
	assert.Equal(t, 10210, uid)

	uid, ok = ParseUID("Packages:\n  Package [com.b] (1a2b3c):\n    userId=10211\n")
	require.True(t, ok)
	assert.Equal(t, 10211, uid)

	_, ok = ParseUID("")
	assert.False(t, ok)
}

func TestParseNetstatsUID(t *testing.T) {
	got, ok := ParseNetstatsUID(netstatsDetailFixture, 10210)
	require.True(t, ok)
	assert.Equal(t, NetUsage{RxBytes: 4000, TxBytes: 2000, RxPackets: 40, TxPackets: 20}, got)

	_, ok = ParseNetstatsUID(netstatsDetailFixture, 10999)
	assert.False(t, ok)
}

func TestParseQtaguid(t *testing.T) {
	text := `idx iface acct_tag_hex uid_tag_int cnt_set rx_bytes rx_packets tx_bytes tx_packets
2 wlan0 0x0 10210 0 1000 10 500 5
3 wlan0 0x0 10210 1 2000 20 700 7
4 wlan0 0x0 10211 0 9999 99 9999 99
`

	got, ok := ParseQtaguid(text, 10210)
	require.True(t, ok)
	assert.Equal(t, NetUsage{RxBytes: 3000, TxBytes: 1200, RxPackets: 30, TxPackets: 12}, got)
}

func TestParseSocketTable(t *testing.T) {
	text := `  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 0100007F:1F90 00000000:0000 0A 00000000:00000000 00:00000000 00000000 10210        0 12345 1
   1: 0100007F:1F91 0100007F:9C40 01 00000000:00000000 00:00000000 00000000 10210        0 12346 1
   2: 0100007F:1F92 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 12347 1
`

	n, ok := ParseSocketTable(text, 10210)
	require.True(t, ok)
	assert.Equal(t, 2, n)

	_, ok = ParseSocketTable("", 10210)
	assert.False(t, ok)
}

func TestParsePackageUIDIgnoresSubstringMatches(t *testing.T) {
	text := "package:com.abc uid:10300\npackage:com.a uid:10210\n"

	uid, ok := ParsePackageUID(text, "com.a")
	require.True(t, ok)
	assert.Equal(t, 10210, uid)

	_, ok = ParsePackageUID(text, "com.b")
	assert.False(t, ok)
}
