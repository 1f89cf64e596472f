package collector

import (
	"context"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/adb"
	"codeberg.org/mutker/droidmetrics/internal/parser"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
)

const (
	methodNetstats = "netstats"
	methodQtaguid  = "qtaguid"

	cmdQtaguid = "shell cat /proc/net/xt_qtaguid/stats"
)

func uidKey(pkg string) string {
	return "uid_" + pkg
}

func (c *Collector) cachedUID(pkg string) *int {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.uids[pkg]
	if !ok || c.now().Sub(e.at) >= c.cfg.UIDCacheTTL {
		return nil
	}

	uid := e.uid

	return &uid
}

// resolveUID reads the uid from the shared batch, falling back to dumpsys
// package.
func (c *Collector) resolveUID(ctx context.Context, p *appPlan, shared adb.Results) error {
	uid, ok := parser.ParsePackageUID(resultOr(shared, uidKey(p.pkg)), p.pkg)
	if !ok {
		out, found, err := c.run(ctx, "shell dumpsys package "+p.pkg)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		if uid, ok = parser.ParseUID(out); !ok {
			return nil
		}
	}

	c.mu.Lock()
	c.uids[p.pkg] = uidEntry{uid: uid, at: c.now()}
	c.mu.Unlock()

	p.uid = &uid

	return nil
}

// assembleNetwork builds the per-app network record. Traffic comes from
// netstats detail, or from xt_qtaguid when netstats is absent or slow.
func (c *Collector) assembleNetwork(ctx context.Context, r *round, p *appPlan, results adb.Results, at time.Time) error {
	var rec *telemetry.NetworkRecord
	if p.uid != nil {
		var err error
		if rec, err = c.networkRecord(ctx, r, p, results, at); err != nil {
			return err
		}
	}

	outcome := outcomeCollected
	if rec == nil {
		outcome = outcomeEmpty
	}

	collections.WithLabelValues(string(DomainNetwork), outcome).Inc()
	c.remember(c.key(DomainNetwork, p.pkg), rec)
	p.snap.Network = rec

	return nil
}

func (c *Collector) networkRecord(ctx context.Context, r *round, p *appPlan, results adb.Results, at time.Time) (*telemetry.NetworkRecord, error) {
	uid := *p.uid
	rec := &telemetry.NetworkRecord{Timestamp: at, PackageName: p.pkg, UID: telemetry.Int(uid)}

	var (
		usage parser.NetUsage
		found bool
	)

	if out, ok := results.Get(keyNetstatsDetail); ok {
		if usage, found = parser.ParseNetstatsUID(out, uid); found {
			rec.Method = methodNetstats
		}
	}

	if !found {
		out, ok, err := r.run(ctx, cmdQtaguid)
		if err != nil {
			return nil, err
		}
		if ok {
			if usage, found = parser.ParseQtaguid(out, uid); found {
				rec.Method = methodQtaguid
			}
		}
	}

	if found {
		rec.RxBytes = telemetry.Float(usage.RxBytes)
		rec.TxBytes = telemetry.Float(usage.TxBytes)
		rec.RxPackets = telemetry.Int(usage.RxPackets)
		rec.TxPackets = telemetry.Int(usage.TxPackets)
		rec.RxRate, rec.TxRate = c.rates("app/"+p.pkg, usage.RxBytes, usage.TxBytes)
	}

	tcp, tcpOK := countSockets(results, uid, keyTCP, keyTCP6)
	udp, udpOK := countSockets(results, uid, keyUDP, keyUDP6)
	if tcpOK {
		rec.TCPConnections = telemetry.Int(tcp)
	}
	if udpOK {
		rec.UDPConnections = telemetry.Int(udp)
	}
	if tcpOK || udpOK {
		rec.ConnectionCount = telemetry.Int(tcp + udp)
	}

	if !found && !tcpOK && !udpOK {
		return nil, nil
	}

	return rec, nil
}

func countSockets(results adb.Results, uid int, keys ...string) (int, bool) {
	total := 0
	seen := false
	for _, k := range keys {
		out, ok := results.Get(k)
		if !ok {
			continue
		}
		if n, ok := parser.ParseSocketTable(out, uid); ok {
			total += n
			seen = true
		}
	}

	return total, seen
}
