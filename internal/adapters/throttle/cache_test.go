package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oriongate/sentryhive/internal/domain"
	"github.com/oriongate/sentryhive/internal/ports"
)

func rec(addr string, kind domain.Kind) domain.CanonicalAttackRecord {
	return domain.CanonicalAttackRecord{SourceAddress: addr, Kind: kind}
}

func TestAdmitLawMaxReportsPerIP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxReportsPerIP = 2
	cfg.ReportUniqueTypesOnly = false
	c := New(cfg, nil)
	defer c.Close()

	addr := "1.2.3.4"
	assert.Equal(t, ports.Admit, c.Admit(rec(addr, domain.KindPortScan)))
	assert.Equal(t, ports.Admit, c.Admit(rec(addr, domain.KindPortScan)))
	assert.Equal(t, ports.Suppress, c.Admit(rec(addr, domain.KindPortScan)))
}

func TestAdmitLawNovelKindAlwaysAdmitted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxReportsPerIP = 1
	c := New(cfg, nil)
	defer c.Close()

	addr := "5.6.7.8"
	assert.Equal(t, ports.Admit, c.Admit(rec(addr, domain.KindPortScan)))
	assert.Equal(t, ports.Suppress, c.Admit(rec(addr, domain.KindPortScan)))
	// A brand new kind for the same address is always novel.
	assert.Equal(t, ports.Admit, c.Admit(rec(addr, domain.KindSQLiAttempt)))
}

func TestAdmitLawTTLExpiryResets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = 10 * time.Millisecond
	cfg.MaxReportsPerIP = 1
	c := New(cfg, nil)
	defer c.Close()

	addr := "9.9.9.9"
	assert.Equal(t, ports.Admit, c.Admit(rec(addr, domain.KindPortScan)))
	assert.Equal(t, ports.Suppress, c.Admit(rec(addr, domain.KindPortScan)))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, ports.Admit, c.Admit(rec(addr, domain.KindPortScan)))
}

func TestReportUniqueTypesOnlySuppressesRepeats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReportUniqueTypesOnly = true
	c := New(cfg, nil)
	defer c.Close()

	addr := "10.10.10.10"
	assert.Equal(t, ports.Admit, c.Admit(rec(addr, domain.KindPortScan)))
	assert.Equal(t, ports.Suppress, c.Admit(rec(addr, domain.KindPortScan)))
}

func TestStoreThrottledAttacksInvokesCallback(t *testing.T) {
	var suppressed []domain.CanonicalAttackRecord
	cfg := DefaultConfig()
	cfg.MaxReportsPerIP = 1
	cfg.StoreThrottledAttacks = true
	c := New(cfg, func(r domain.CanonicalAttackRecord) {
		suppressed = append(suppressed, r)
	})
	defer c.Close()

	addr := "11.11.11.11"
	c.Admit(rec(addr, domain.KindPortScan))
	c.Admit(rec(addr, domain.KindPortScan))

	assert.Len(t, suppressed, 1)
}

func TestStatsReportsTrackedAddressCount(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg, nil)
	defer c.Close()

	c.Admit(rec("1.1.1.1", domain.KindPortScan))
	c.Admit(rec("2.2.2.2", domain.KindPortScan))

	stats := c.Stats()
	assert.Equal(t, 2, stats.TrackedAddresses)
	assert.Equal(t, cfg.MaxReportsPerIP, stats.MaxReportsPerIP)
}
