package jsonvalue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nestedProperties = `{
	"bitness": 64,
	"cpuCores": 8.0,
	"isMonitoringCandidate": false,
	"osType": "LINUX",
	"tags": [true, 1, "x", null, {"deep": [0.5, {"deeper": false}]}],
	"empty": {},
	"nothing": null
}`

func TestClean_StringifiesLeaves(t *testing.T) {
	cleaned := Clean(MustParse(nestedProperties))

	out, err := json.Marshal(cleaned)
	require.NoError(t, err)
	assert.Equal(t,
		`{"bitness":"64","cpuCores":"8.0","isMonitoringCandidate":"false","osType":"LINUX",`+
			`"tags":["true","1","x",null,{"deep":["0.5",{"deeper":"false"}]}],"empty":{},"nothing":null}`,
		string(out))
}

func TestClean_Idempotent(t *testing.T) {
	once := Clean(MustParse(nestedProperties))
	twice := Clean(once)
	assert.Equal(t, once, twice)
}

func TestClean_DoesNotMutateInput(t *testing.T) {
	in := MustParse(`{"a":[1,{"b":true}]}`)
	before, _ := json.Marshal(in)

	Clean(in)

	after, _ := json.Marshal(in)
	assert.Equal(t, string(before), string(after))
}

func TestClean_PreservesShape(t *testing.T) {
	in := MustParse(nestedProperties).(Object)
	out := CleanObject(in)

	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].Key, out[i].Key)
		assert.Equal(t, KindOf(in[i].Value) == KindObject, KindOf(out[i].Value) == KindObject)
		assert.Equal(t, KindOf(in[i].Value) == KindArray, KindOf(out[i].Value) == KindArray)
	}
	arr, ok := out.GetArray("tags")
	require.True(t, ok)
	assert.Len(t, arr, 5)
}

func TestCleanObject_Nil(t *testing.T) {
	assert.Nil(t, CleanObject(nil))
}

func TestMap_OnlyVisitsLeaves(t *testing.T) {
	var visited []Kind
	Map(MustParse(`{"a":[1,"s",{"b":null}]}`), func(v Value) Value {
		visited = append(visited, KindOf(v))
		return v
	})
	assert.Equal(t, []Kind{KindNumber, KindString, KindNull}, visited)
}
