package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudauditor/internal/domain"
	"cloudauditor/internal/ports"
)

func newScan(id string) domain.Scan {
	return domain.Scan{
		ID:        id,
		Name:      "Scan " + id,
		Target:    "example.com",
		Scope:     domain.ScopeFull,
		Status:    domain.StatusPending,
		StartTime: time.Date(2026, 2, 21, 8, 0, 0, 0, time.UTC),
	}
}

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateScan(ctx, newScan("a")))
	require.NoError(t, s.CreateScan(ctx, newScan("b")))
	assert.Error(t, s.CreateScan(ctx, newScan("a")))

	scans, err := s.ListScans(ctx)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, "b", scans[0].ID)
	assert.Equal(t, "a", scans[1].ID)
}

func TestPatchScan(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateScan(ctx, newScan("a")))

	got, found, err := s.PatchScan(ctx, "a", domain.ScanPatch{Status: domain.Ptr(domain.StatusRunning), Progress: domain.Ptr(5)})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.StatusRunning, got.Status)
	assert.Equal(t, 5, got.Progress)

	stored, _, _ := s.GetScan(ctx, "a")
	assert.Equal(t, got, stored)
}

func TestPatchScanUnknownID(t *testing.T) {
	_, found, err := New().PatchScan(context.Background(), "nope", domain.ScanPatch{Progress: domain.Ptr(50)})
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestPatchScanRefusesTerminal(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateScan(ctx, newScan("a")))
	_, _, err := s.PatchScan(ctx, "a", domain.ScanPatch{Status: domain.Ptr(domain.StatusFailed), Progress: domain.Ptr(0)})
	require.NoError(t, err)

	_, found, err := s.PatchScan(ctx, "a", domain.ScanPatch{Progress: domain.Ptr(90)})
	assert.True(t, found)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, _, err = s.PatchScan(ctx, "a", domain.ScanPatch{Status: domain.Ptr(domain.StatusCompleted)})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	stored, _, _ := s.GetScan(ctx, "a")
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, 0, stored.Progress)
}

func TestConcurrentPatchesDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateScan(ctx, newScan("a")))
	_, _, err := s.PatchScan(ctx, "a", domain.ScanPatch{Status: domain.Ptr(domain.StatusRunning)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_, _, _ = s.PatchScan(ctx, "a", domain.ScanPatch{Progress: domain.Ptr(n)})
		}(i)
		go func(n int) {
			defer wg.Done()
			_, _, _ = s.PatchScan(ctx, "a", domain.ScanPatch{FindingsCount: domain.Ptr(n)})
		}(i)
	}
	wg.Wait()

	got, _, _ := s.GetScan(ctx, "a")
	assert.Equal(t, domain.StatusRunning, got.Status)
	assert.Equal(t, "example.com", got.Target)
}

func TestFindingsByScanAndFilter(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.AppendFindings(ctx, "a", []domain.Vulnerability{
		{ID: "vuln-a-1", Severity: domain.SeverityCritical, Status: domain.VulnOpen},
		{ID: "vuln-a-2", Severity: domain.SeverityLow, Status: domain.VulnOpen},
	}))
	require.NoError(t, s.AppendFindings(ctx, "b", []domain.Vulnerability{
		{ID: "vuln-b-1", Severity: domain.SeverityHigh, Status: domain.VulnRemediated},
	}))

	byScan, err := s.FindingsByScan(ctx, "a")
	require.NoError(t, err)
	require.Len(t, byScan, 2)
	assert.Equal(t, "a", byScan[0].ScanID)

	none, err := s.FindingsByScan(ctx, "zzz")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	filtered, err := s.AllFindings(ctx, ports.FindingFilter{
		Severities: []domain.Severity{domain.SeverityCritical, domain.SeverityHigh},
		Status:     domain.VulnOpen,
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "vuln-a-1", filtered[0].ID)
}

func TestFrameworksAreCopied(t *testing.T) {
	ctx := context.Background()
	s := New()
	fw := domain.ComplianceFramework{ID: "owasp-a-1", ShortName: "OWASP", Controls: []domain.ComplianceControl{
		{ControlID: "A05", Status: domain.ControlFail},
	}}
	require.NoError(t, s.AppendComplianceFrameworks(ctx, "a", []domain.ComplianceFramework{fw}))
	fw.Controls[0].Status = domain.ControlPass

	got, err := s.FrameworksByScan(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ControlFail, got[0].Controls[0].Status)

	got[0].Controls[0].Status = domain.ControlNA
	all, _ := s.AllFrameworks(ctx)
	assert.Equal(t, domain.ControlFail, all[0].Controls[0].Status)
}

func TestThreats(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.AppendThreats(ctx, "a", []domain.Threat{{ID: "thr-a-1"}}))
	require.NoError(t, s.AppendThreats(ctx, "b", []domain.Threat{{ID: "thr-b-1"}}))

	byScan, _ := s.ThreatsByScan(ctx, "b")
	require.Len(t, byScan, 1)
	assert.Equal(t, "thr-b-1", byScan[0].ID)

	all, _ := s.AllThreats(ctx)
	assert.Len(t, all, 2)
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 1; i <= 2; i++ {
		require.NoError(t, s.CreateReport(ctx, domain.Report{
			ID:      fmt.Sprintf("rep-%d", i),
			Content: []byte("%PDF-1.3"),
		}))
	}

	r, found, err := s.GetReport(ctx, "rep-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("%PDF-1.3"), r.Content)

	list, err := s.ListReports(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "rep-2", list[0].ID)
	assert.Nil(t, list[0].Content)

	_, found, _ = s.GetReport(ctx, "missing")
	assert.False(t, found)
}
