package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHandle(t *testing.T) {
	tests := map[string]string{
		"someone":                                  "someone",
		"  @someone ":                              "someone",
		"https://www.tiktok.com/@some.one":         "some.one",
		"https://www.tiktok.com/@some_one/video/1": "some_one",
		"https://www.tiktok.com/@x?lang=en":        "x",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeHandle(in), in)
	}
}

func TestTargets(t *testing.T) {
	assert.Equal(t, ResolvedTarget{Kind: TargetStableID, Value: "tiktokuser:MS4w"}, StableIDTarget("MS4w"))
	assert.Equal(t, "https://www.tiktok.com/@bob", ProfileURLTarget("https://www.tiktok.com/", "bob").Value)
}

func TestSummaryPartitions(t *testing.T) {
	s := &Summary{Results: []SourceResult{
		{Handle: "a", Status: StatusSucceeded},
		{Handle: "b", Status: StatusSkipped},
		{Handle: "c", Status: StatusFailed},
		{Handle: "d", Status: StatusFailed},
	}}

	assert.Len(t, s.Succeeded(), 1)
	assert.Len(t, s.Skipped(), 1)
	assert.Len(t, s.Failed(), 2)
}
