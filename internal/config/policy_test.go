package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freezegate/freezegate/internal/config"
)

func TestDefault(t *testing.T) {
	p := config.Default()

	assert.False(t, p.FreezeEnabled)
	assert.True(t, p.FailClosed)
	assert.Equal(t, config.DefaultBypassAnnotationKey, p.BypassAnnotationKey)
	assert.Contains(t, p.MonitoredResources, "deployments")
}

func TestParseRecord_FreezeEnabledAndUntil(t *testing.T) {
	p := config.ParseRecord(map[string]string{
		"freezeEnabled": "TRUE",
		"freezeUntil":   "2026-12-25T00:00:00Z",
	})

	assert.True(t, p.FreezeEnabled)
	require.NotNil(t, p.FreezeUntil)
	assert.Equal(t, 2026, p.FreezeUntil.Year())
}

func TestParseRecord_FreezeUntil_BareTimestampAssumedUTC(t *testing.T) {
	p := config.ParseRecord(map[string]string{
		"freezeUntil": "2026-12-25 10:00:00",
	})

	require.NotNil(t, p.FreezeUntil)
	assert.Equal(t, "UTC", p.FreezeUntil.Location().String())
	assert.Equal(t, 10, p.FreezeUntil.Hour())
}

func TestParseRecord_MalformedFreezeUntilIgnored(t *testing.T) {
	p := config.ParseRecord(map[string]string{
		"freezeUntil": "not-a-date",
	})

	assert.Nil(t, p.FreezeUntil)
}

func TestParseRecord_BypassAllowedUsers(t *testing.T) {
	p := config.ParseRecord(map[string]string{
		"bypassAllowedUsers": "alice\nbob\n\n  charlie  \n",
	})

	assert.Contains(t, p.BypassAllowedUsers, "alice")
	assert.Contains(t, p.BypassAllowedUsers, "bob")
	assert.Contains(t, p.BypassAllowedUsers, "charlie")
	assert.Len(t, p.BypassAllowedUsers, 3)
}

func TestParseRecord_APIAllowedServiceAccounts_DropsComments(t *testing.T) {
	p := config.ParseRecord(map[string]string{
		"apiAllowedServiceAccounts": "# comment\nsystem:serviceaccount:ns:sa\n",
	})

	assert.Len(t, p.APIAllowedServiceAccounts, 1)
	assert.Contains(t, p.APIAllowedServiceAccounts, "system:serviceaccount:ns:sa")
}

func TestParseRecord_MonitoredResources_YAMLList(t *testing.T) {
	p := config.ParseRecord(map[string]string{
		"monitoredResources": "- deployments\n- statefulsets\n",
	})

	assert.Contains(t, p.MonitoredResources, "deployments")
	assert.Contains(t, p.MonitoredResources, "statefulsets")
}

func TestParseRecord_MonitoredResources_CommaFallback(t *testing.T) {
	p := config.ParseRecord(map[string]string{
		"monitoredResources": "deployments, statefulsets",
	})

	assert.Contains(t, p.MonitoredResources, "deployments")
	assert.Contains(t, p.MonitoredResources, "statefulsets")
}

func TestParseRecord_FailClosed_DefaultsTrueWhenAbsent(t *testing.T) {
	p := config.ParseRecord(map[string]string{})
	assert.True(t, p.FailClosed)
}

func TestParseRecord_FailClosed_CanBeDisabled(t *testing.T) {
	p := config.ParseRecord(map[string]string{"failClosed": "false"})
	assert.False(t, p.FailClosed)
}

func TestParseRecord_NotificationsEnabled(t *testing.T) {
	p := config.ParseRecord(map[string]string{"notificationsEnabled": "true"})
	assert.True(t, p.NotificationsEnabled)
}

func TestPolicy_Clone_IsIndependent(t *testing.T) {
	p := config.Default()
	p.BypassAllowedUsers["alice"] = struct{}{}

	clone := p.Clone()
	clone.BypassAllowedUsers["bob"] = struct{}{}

	assert.NotContains(t, p.BypassAllowedUsers, "bob")
	assert.Contains(t, clone.BypassAllowedUsers, "alice")
}

func TestPolicy_Clone_Nil(t *testing.T) {
	var p *config.Policy
	assert.Nil(t, p.Clone())
}
