package jsonrepair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDirectObject(t *testing.T) {
	v := Extract(`{"explanation": "a loop that calls itself", "examples": ["factorial"]}`)
	require.Equal(t, KindObject, v.Kind)
	assert.Equal(t, "a loop that calls itself", v.Get("explanation"))
}

func TestExtractDirectArray(t *testing.T) {
	v := Extract(`[{"concept_name": "recursion"}, {"concept_name": "base case"}]`)
	require.Equal(t, KindArray, v.Kind)
	assert.Len(t, v.Array, 2)
}

func TestExtractStripsFences(t *testing.T) {
	cases := map[string]string{
		"tagged":   "```json\n{\"understanding_level\": 4}\n```",
		"untagged": "```\n{\"understanding_level\": 4}\n```",
		"padded":   "Here you go:\n```json\n{\"understanding_level\": 4}\n```\nHope that helps!",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			v := Extract(raw)
			require.Equal(t, KindObject, v.Kind)
			assert.Equal(t, float64(4), v.Get("understanding_level"))
		})
	}
}

func TestExtractUnterminatedFence(t *testing.T) {
	v := Extract("```json\n{\"gaps\": [\"no base case\"]}")
	require.Equal(t, KindObject, v.Kind)
	assert.NotNil(t, v.Get("gaps"))
}

func TestExtractBalancedSubstring(t *testing.T) {
	raw := `Sure! The concepts are: {"concepts": [{"concept_name": "pointers", "difficulty_level": 4}]} Let me know if you need more.`
	v := Extract(raw)
	require.Equal(t, KindObject, v.Kind)
	assert.NotNil(t, v.Get("concepts"))
}

func TestExtractBalancedSubstringIgnoresBracesInStrings(t *testing.T) {
	raw := `prefix {"note": "use {braces} carefully", "ok": true} suffix`
	v := Extract(raw)
	require.Equal(t, KindObject, v.Kind)
	assert.Equal(t, "use {braces} carefully", v.Get("note"))
	assert.Equal(t, true, v.Get("ok"))
}

func TestExtractScrapesTruncatedOutput(t *testing.T) {
	// The tail got cut off mid-object so no balanced region exists.
	raw := `{"explanation": "stack frames grow until", "understanding_level": 2, "gaps": ["missing`
	v := Extract(raw)
	require.Equal(t, KindObject, v.Kind)
	assert.Equal(t, "stack frames grow until", v.Get("explanation"))
	assert.Equal(t, float64(2), v.Get("understanding_level"))
}

func TestExtractHopelessInputYieldsEmptyObject(t *testing.T) {
	for _, raw := range []string{"", "   ", "I cannot answer that.", "null", `"just a string"`, "42"} {
		v := Extract(raw)
		require.Equal(t, KindObject, v.Kind, "input %q", raw)
		assert.True(t, v.IsEmpty(), "input %q", raw)
	}
}

func TestExtractNeverReturnsNilContainers(t *testing.T) {
	v := Extract("garbage")
	assert.NotNil(t, v.Object)
}

func TestPromoteConceptListFromArray(t *testing.T) {
	v := Extract(`[{"concept_name": "recursion", "difficulty_level": 3}]`)
	items, ok := PromoteConceptList(v)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "recursion", items[0]["concept_name"])
}

func TestPromoteConceptListFromWrapperObject(t *testing.T) {
	v := Extract(`{"concepts": [{"concept_name": "recursion"}, {"concept_name": "base case"}]}`)
	items, ok := PromoteConceptList(v)
	require.True(t, ok)
	assert.Len(t, items, 2)
}

func TestPromoteConceptListFromArbitraryWrapperKey(t *testing.T) {
	v := Extract(`{"results": [{"name": "closures", "difficulty": 4}]}`)
	items, ok := PromoteConceptList(v)
	require.True(t, ok)
	assert.Equal(t, "closures", items[0]["name"])
}

func TestPromoteConceptListRejectsNonConceptShapes(t *testing.T) {
	v := Extract(`{"scores": [1, 2, 3], "meta": {"count": 3}}`)
	_, ok := PromoteConceptList(v)
	assert.False(t, ok)
}

func TestPromoteConceptListEmptyValue(t *testing.T) {
	_, ok := PromoteConceptList(Extract("nothing here"))
	assert.False(t, ok)
}
