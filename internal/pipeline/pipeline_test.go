package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/dynatrace"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/extract"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/jsonvalue"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/logging"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/model"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/pagination"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func testContext(t *testing.T) context.Context {
	return logging.ToContext(context.Background(), zaptest.NewLogger(t))
}

func page(t *testing.T, body string) *extract.Page {
	t.Helper()
	p, err := extract.ParsePage([]byte(body), extract.VersionAuto)
	require.NoError(t, err)
	return p
}

// pagesFetcher serves a fixed list of pages and records requests.
type pagesFetcher struct {
	pages []pagination.Response
	calls []pagination.Request
}

func (f *pagesFetcher) Fetch(_ context.Context, req pagination.Request) (*pagination.Response, error) {
	f.calls = append(f.calls, req)
	if len(f.calls) > len(f.pages) {
		return nil, errors.New("no more pages")
	}
	resp := f.pages[len(f.calls)-1]
	return &resp, nil
}

func hosts(from, n int) string {
	recs := make([]string, n)
	for i := range recs {
		recs[i] = fmt.Sprintf(`{"entityId":"HOST-%d"}`, from+i)
	}
	return "[" + strings.Join(recs, ",") + "]"
}

func TestNormalize_CountsMatchRecords(t *testing.T) {
	doc, err := Normalize(testContext(t), []*extract.Page{page(t, hosts(0, 50)), page(t, hosts(50, 30))}, model.DocumentInfo{
		SourceFile:    "hosts.json",
		ComponentType: model.ComponentHost,
		Timestamp:     fixedNow,
	})
	require.NoError(t, err)
	assert.Equal(t, 80, doc.Metadata.ComponentCount)
	assert.Len(t, doc.Components, 80)
	assert.Equal(t, "HOST-79", doc.Components[79].EntityID)
	assert.Equal(t, int64(1_700_000_000), doc.Metadata.Timestamp)
}

func TestNormalize_SkipsMalformedRecords(t *testing.T) {
	p := page(t, `[
		{"entityId":"HOST-1","toRelationships":{"runsOn":[{"name":"no id"}]}},
		{"displayName":"no id"},
		"garbage",
		{"entityId":"HOST-2","fromRelationships":{"isProcessOf":[{"id":"PGI-1"}]}}
	]`)

	doc, err := Normalize(testContext(t), []*extract.Page{p}, model.DocumentInfo{ComponentType: model.ComponentHost, Timestamp: fixedNow})
	require.NoError(t, err)

	assert.Equal(t, 2, doc.Metadata.ComponentCount)
	assert.Equal(t, 2, doc.Metadata.SkippedRecords)
	assert.Equal(t, 1, doc.Metadata.SkippedRelationships)
	assert.Equal(t, []model.Relationship{{Source: "PGI-1", Target: "HOST-2", Type: "isProcessOf"}}, doc.Relationships)
}

func TestNormalize_DuplicateEntityIsFatal(t *testing.T) {
	_, err := Normalize(testContext(t), []*extract.Page{page(t, hosts(0, 2)), page(t, hosts(1, 1))}, model.DocumentInfo{ComponentType: model.ComponentHost})
	var dupErr *model.DuplicateEntityError
	require.True(t, errors.As(err, &dupErr))
	assert.Equal(t, "HOST-1", dupErr.EntityID)
}

func TestRunner_FetchAndNormalizeV1(t *testing.T) {
	fetcher := &pagesFetcher{pages: []pagination.Response{
		{Body: []byte(hosts(0, 50)), NextPageKey: "k1"},
		{Body: []byte(hosts(50, 30))},
	}}
	r := &Runner{
		Driver: pagination.New(fetcher, zaptest.NewLogger(t)),
		Query:  dynatrace.QueryOptions{PageSize: 50},
		Now:    func() time.Time { return fixedNow },
	}

	result, doc, err := r.FetchAndNormalize(testContext(t), model.ComponentHost, extract.V1, "PA")
	require.NoError(t, err)
	assert.Equal(t, 80, result.Records())
	assert.Equal(t, 80, doc.Metadata.ComponentCount)
	assert.Equal(t, "PA", doc.Metadata.SourceFile)
	require.Len(t, fetcher.calls, 2)
	assert.Equal(t, "api/v1/entity/infrastructure/hosts", fetcher.calls[0].Path)
	assert.Equal(t, "50", fetcher.calls[1].Query.Get("pageSize"))
	assert.Equal(t, "k1", fetcher.calls[1].Query.Get("nextPageKey"))
}

func TestRunner_FetchAndNormalizeV2ProcessGroups(t *testing.T) {
	fetcher := &pagesFetcher{pages: []pagination.Response{
		{Body: []byte(`{"totalCount":1,"entities":[{"entityId":"PROCESS_GROUP-1","properties":{"detectedName":"app","metadata":[{"key":"EXE_NAME","value":"java"}]}}],"nextPageKey":null}`)},
	}}
	r := &Runner{Driver: pagination.New(fetcher, nil)}

	_, doc, err := r.FetchAndNormalize(testContext(t), model.ComponentProcessGroup, extract.V2, "PA")
	require.NoError(t, err)
	require.Len(t, doc.Components, 1)
	assert.Equal(t, `type("PROCESS_GROUP")`, fetcher.calls[0].Query.Get("entitySelector"))

	discovered, ok := doc.Components[0].Attributes.GetString("discoveredName")
	require.True(t, ok)
	assert.Equal(t, "app", discovered)
}

func TestRunner_FailureDiscardsDocument(t *testing.T) {
	fetcher := &pagesFetcher{pages: []pagination.Response{
		{Body: []byte(hosts(0, 3)), NextPageKey: "k1"},
	}}
	r := &Runner{Driver: pagination.New(fetcher, nil)}

	result, doc, err := r.FetchAndNormalize(testContext(t), model.ComponentHost, extract.V1, "PA")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Nil(t, doc)

	_, err = r.Fetch(testContext(t), model.ComponentHost, extract.VersionAuto)
	assert.Error(t, err)
}

func TestConvertFile_V2Process(t *testing.T) {
	path := filepath.Join(t.TempDir(), "PA_process_v2_1700000000.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"totalCount": 1,
		"entities": [{
			"entityId": "PROCESS_GROUP_INSTANCE-1",
			"displayName": "java",
			"properties": {"pid": 4242, "isDocker": true},
			"toRelationships": {"runsOn": [{"id": "HOST-1"}]},
			"fromRelationships": {"calls": [{"id": "PROCESS_GROUP_INSTANCE-2"}]},
			"tags": [{"key": "env", "value": "prod"}]
		}],
		"nextPageKey": null
	}`), 0o644))

	doc, err := ConvertFile(testContext(t), path, ConvertOptions{Timestamp: fixedNow})
	require.NoError(t, err)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{
		"metadata": {"source_file": %q, "component_type": "process", "timestamp": 1700000000, "component_count": 1, "relationship_count": 2},
		"components": [{
			"entityId": "PROCESS_GROUP_INSTANCE-1",
			"displayName": "java",
			"identifiers": ["urn:dynatrace:/PROCESS_GROUP_INSTANCE-1"],
			"tags": ["env:prod"],
			"type": "process",
			"properties": {"pid": "4242", "isDocker": "true"}
		}],
		"relationships": [
			{"source": "PROCESS_GROUP_INSTANCE-1", "target": "HOST-1", "type": "runsOn"},
			{"source": "PROCESS_GROUP_INSTANCE-2", "target": "PROCESS_GROUP_INSTANCE-1", "type": "calls"}
		]
	}`, path), string(out))
}

func TestConvertFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ConvertFile(testContext(t), filepath.Join(dir, "missing.json"), ConvertOptions{})
	assert.Error(t, err)

	bad := filepath.Join(dir, "hosts.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"items":[]}`), 0o644))
	_, err = ConvertFile(testContext(t), bad, ConvertOptions{})
	var schemaErr *extract.SchemaError
	assert.True(t, errors.As(err, &schemaErr))
}

func TestInferComponentType(t *testing.T) {
	cases := []struct {
		path     string
		entities string
		want     model.ComponentType
	}{
		{"PA_process-group_v2_1.json", `[]`, model.ComponentProcessGroup},
		{"out/Prod_process_v1_1.json", `[]`, model.ComponentProcess},
		{"PA_host_v2_1.json", `[]`, model.ComponentHost},
		{"processing_host_v1_1700000000.json", `[]`, model.ComponentHost},
		{"hosting_process-group_v2_1700000000_topology_1700000100.json", `[]`, model.ComponentProcessGroup},
		{"PA_process_group_instance_export.json", `[]`, model.ComponentProcess},
		{"dump.json", `[{"entityId":"PROCESS_GROUP-9"}]`, model.ComponentProcessGroup},
		{"dump.json", `[1, {"entityId":"PROCESS_GROUP_INSTANCE-9"}]`, model.ComponentProcess},
	}
	for _, tc := range cases {
		arr := jsonvalue.MustParse(tc.entities).(jsonvalue.Array)
		got, err := InferComponentType(tc.path, arr)
		require.NoError(t, err, tc.path)
		assert.Equal(t, tc.want, got, tc.path)
	}

	_, err := InferComponentType("dump.json", jsonvalue.Array{})
	assert.Error(t, err)
}
