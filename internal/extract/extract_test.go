package extract

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/jsonvalue"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/model"
)

func object(t *testing.T, s string) jsonvalue.Object {
	t.Helper()
	obj, ok := jsonvalue.MustParse(s).(jsonvalue.Object)
	require.True(t, ok)
	return obj
}

func TestExtract_V1HostWithTags(t *testing.T) {
	page, err := ParsePage([]byte(`[{"entityId":"HOST-1","displayName":"h1","tags":[{"key":"env","value":"prod"}]}]`), VersionAuto)
	require.NoError(t, err)
	require.Len(t, page.Entities, 1)

	ex, err := Extract(page.Entities[0], 0, Options{ComponentType: model.ComponentHost, Version: page.Version})
	require.NoError(t, err)

	c := ex.Component
	assert.Equal(t, "HOST-1", c.EntityID)
	assert.Equal(t, "h1", c.DisplayName)
	assert.Equal(t, []string{"urn:dynatrace:/HOST-1"}, c.Identifiers)
	assert.Equal(t, []string{"env:prod"}, c.Tags)
	assert.Empty(t, ex.Relationships)
}

func TestExtract_V2RelationshipDirection(t *testing.T) {
	page, err := ParsePage([]byte(`{"entities":[{"entityId":"PGI-1","toRelationships":{"runsOn":[{"id":"HOST-1"}]}}],"nextPageKey":null}`), VersionAuto)
	require.NoError(t, err)

	ex, err := Extract(page.Entities[0], 0, Options{ComponentType: model.ComponentProcess, Version: page.Version})
	require.NoError(t, err)
	assert.Equal(t, []model.Relationship{{Source: "PGI-1", Target: "HOST-1", Type: "runsOn"}}, ex.Relationships)
}

func TestExtract_MissingEntityID(t *testing.T) {
	for _, rec := range []string{`{"displayName":"x"}`, `{"entityId":""}`, `{"entityId":7}`, `"HOST-1"`, `null`} {
		_, err := Extract(jsonvalue.MustParse(rec), 3, Options{ComponentType: model.ComponentHost, Version: V1})
		var fieldErr *RecordFieldError
		require.True(t, errors.As(err, &fieldErr), rec)
		assert.Equal(t, 3, fieldErr.Index)
	}
}

func TestExtract_DisplayNameDefaultsToEntityID(t *testing.T) {
	ex, err := Extract(jsonvalue.MustParse(`{"entityId":"HOST-9"}`), 0, Options{ComponentType: model.ComponentHost})
	require.NoError(t, err)
	assert.Equal(t, "HOST-9", ex.Component.DisplayName)
}

func TestExtract_PropertiesAndAttributesAreCleaned(t *testing.T) {
	rec := jsonvalue.MustParse(`{
		"entityId": "HOST-1",
		"type": "HOST",
		"firstSeenTimestamp": 1700000000000,
		"lastSeenTimestamp": 1700000001000,
		"properties": {"bitness": 64, "isMonitoringCandidate": false, "releasesVersion": "1.2"},
		"managementZones": [{"id": 42, "name": "prod"}],
		"fromRelationships": {"isProcessOf": [{"id": "PGI-1"}]}
	}`)

	ex, err := Extract(rec, 0, Options{ComponentType: model.ComponentHost, Version: V2})
	require.NoError(t, err)

	out, err := json.Marshal(ex.Component)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"entityId": "HOST-1",
		"displayName": "HOST-1",
		"identifiers": ["urn:dynatrace:/HOST-1"],
		"tags": ["managementZones:prod"],
		"type": "host",
		"properties": {"bitness": "64", "isMonitoringCandidate": "false", "releasesVersion": {}},
		"entityType": "HOST",
		"firstSeenTimestamp": "1700000000000",
		"managementZones": [{"id": "42", "name": "prod"}]
	}`, string(out))
	assert.Equal(t, []model.Relationship{{Source: "PGI-1", Target: "HOST-1", Type: "isProcessOf"}}, ex.Relationships)
}

func TestExtract_ProcessGroupV2IsNormalized(t *testing.T) {
	rec := jsonvalue.MustParse(`{
		"entityId": "PROCESS_GROUP-1",
		"properties": {
			"detectedName": "java app",
			"softwareTechnologies": [{"type": "JAVA", "version": "17"}],
			"metadata": [{"key": "EXE_NAME", "value": "java"}]
		}
	}`)

	ex, err := Extract(rec, 0, Options{ComponentType: model.ComponentProcessGroup, Version: V2})
	require.NoError(t, err)
	assert.Equal(t, []string{"softwareTechnologies:JAVA:17"}, ex.Component.Tags)

	discovered, ok := ex.Component.Attributes.GetString("discoveredName")
	require.True(t, ok)
	assert.Equal(t, "java app", discovered)
	meta, ok := ex.Component.Attributes.GetObject("metadata")
	require.True(t, ok)
	assert.Equal(t, jsonvalue.Object{{Key: "executables", Value: jsonvalue.Array{jsonvalue.String("java")}}}, meta)
	assert.False(t, ex.Component.Properties.Has("softwareTechnologies"))
}

func TestExtract_ProcessGroupV1IsNotNormalized(t *testing.T) {
	rec := jsonvalue.MustParse(`{"entityId":"PROCESS_GROUP-1","properties":{"softwareTechnologies":[{"type":"JAVA"}]}}`)

	ex, err := Extract(rec, 0, Options{ComponentType: model.ComponentProcessGroup, Version: V1})
	require.NoError(t, err)
	assert.Empty(t, ex.Component.Tags)
	assert.True(t, ex.Component.Properties.Has("softwareTechnologies"))
}

func TestTags_PrecedenceOrder(t *testing.T) {
	entity := object(t, `{
		"monitoringState": {"actualMonitoringState": "ON", "expectedMonitoringState": "ON", "restartRequired": false, "pendingRestarts": 0, "lastCheck": null, "details": {"a": 1}},
		"softwareTechnologies": [{"type": "JAVA", "edition": "OpenJDK", "version": "17.0.2"}, {"type": "TOMCAT"}, "GO"],
		"managementZones": [{"name": "zone-a"}, {"id": "no-name"}, "zone-b"],
		"tags": [{"key": "env", "value": "prod"}, {"key": "team"}, "plain", {"context": "AWS", "key": "region", "value": "eu"}, {"value": "orphan"}, {"key":"env","value":"prod"}, {"key": "replicas", "value": 0}, {"key": "canary", "value": false}, {"key": "owner", "value": null}]
	}`)

	assert.Equal(t, []string{
		"env:prod",
		"team",
		"plain",
		"region:eu",
		"env:prod",
		"replicas:0",
		"canary:false",
		"owner",
		"managementZones:zone-a",
		"managementZones:zone-b",
		"softwareTechnologies:JAVA:OpenJDK:17.0.2",
		"softwareTechnologies:TOMCAT",
		"softwareTechnologies:GO",
		"actualMonitoringState:ON",
		"expectedMonitoringState:ON",
		"restartRequired:false",
		"pendingRestarts:0",
	}, Tags(entity))
}

func TestTags_PureAndEmpty(t *testing.T) {
	entity := object(t, `{"tags":[{"key":"a","value":"1"}],"managementZones":[{"name":"z"}]}`)
	assert.Equal(t, Tags(entity), Tags(entity))

	empty := Tags(object(t, `{"entityId":"X"}`))
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestRelationships_BothDirectionsAndSkips(t *testing.T) {
	entity := object(t, `{
		"toRelationships": {"runsOn": [{"id": "HOST-1"}, {"type": "HOST"}, "HOST-2"], "isInstanceOf": [{"id": "PG-1"}], "single": {"id": "X"}, "none": null},
		"fromRelationships": {"calls": [{"id": "PGI-9"}, 12], "isProcessOf": {"id": "HOST-1"}, "broken": true}
	}`)

	rels, skipped := Relationships("PGI-1", entity)
	assert.Equal(t, []model.Relationship{
		{Source: "PGI-1", Target: "HOST-1", Type: "runsOn"},
		{Source: "PGI-1", Target: "HOST-2", Type: "runsOn"},
		{Source: "PGI-1", Target: "PG-1", Type: "isInstanceOf"},
		{Source: "PGI-1", Target: "X", Type: "single"},
		{Source: "PGI-9", Target: "PGI-1", Type: "calls"},
		{Source: "HOST-1", Target: "PGI-1", Type: "isProcessOf"},
	}, rels)

	require.Len(t, skipped, 3)
	assert.Equal(t, "toRelationships", skipped[0].Direction)
	assert.Equal(t, "runsOn", skipped[0].RelationshipType)
	assert.Equal(t, 1, skipped[0].Index)
	assert.Equal(t, "fromRelationships", skipped[1].Direction)
	assert.Equal(t, 1, skipped[1].Index)
	assert.Equal(t, "broken", skipped[2].RelationshipType)
	assert.Equal(t, 0, skipped[2].Index)
}
