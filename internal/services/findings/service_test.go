package findings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudauditor/internal/adapters/memory"
	"cloudauditor/internal/domain"
	"cloudauditor/internal/ports"
)

func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.AppendFindings(ctx, "s1", []domain.Vulnerability{
		{ID: "v1", Severity: domain.SeverityHigh, Status: domain.VulnOpen},
		{ID: "v2", Severity: domain.SeverityLow, Status: domain.VulnOpen},
		{ID: "v3", Severity: domain.SeverityCritical, Status: domain.VulnRemediated},
	}))
	require.NoError(t, store.AppendComplianceFrameworks(ctx, "s1", []domain.ComplianceFramework{
		{ID: "owasp-s1", ShortName: "OWASP", Score: 40},
	}))
	require.NoError(t, store.AppendComplianceFrameworks(ctx, "s2", []domain.ComplianceFramework{
		{ID: "owasp-s2", ShortName: "OWASP", Score: 90},
		{ID: "cis-s2", ShortName: "CIS", Score: 70},
	}))
	return store
}

func TestVulnerabilitiesFilter(t *testing.T) {
	svc := New(seed(t))

	f, err := ParseFilter("high, critical", "")
	require.NoError(t, err)
	got, err := svc.Vulnerabilities(context.Background(), f)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	f, err = ParseFilter("high,critical", "open")
	require.NoError(t, err)
	got, err = svc.Vulnerabilities(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v1", got[0].ID)

	got, err = svc.Vulnerabilities(context.Background(), ports.FindingFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestParseFilterRejectsUnknownValues(t *testing.T) {
	_, err := ParseFilter("severe", "")
	assert.ErrorIs(t, err, ErrInvalidFilter)
	_, err = ParseFilter("", "closed")
	assert.ErrorIs(t, err, ErrInvalidFilter)

	f, err := ParseFilter("", "")
	require.NoError(t, err)
	assert.Equal(t, ports.FindingFilter{}, f)
}

func TestFrameworkReturnsNewest(t *testing.T) {
	svc := New(seed(t))

	fw, err := svc.Framework(context.Background(), "owasp")
	require.NoError(t, err)
	assert.Equal(t, "owasp-s2", fw.ID)
	assert.Equal(t, 90, fw.Score)

	_, err = svc.Framework(context.Background(), "PCI")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := svc.Frameworks(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
