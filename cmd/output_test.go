package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

func TestWriteOutput(t *testing.T) {
	trip := model.Trip{ID: "t1", UserID: "u1", Title: "SF trip", Timezone: "UTC"}

	var js bytes.Buffer
	require.NoError(t, writeOutput(&js, "json", trip))
	assert.Contains(t, js.String(), `"title": "SF trip"`)

	var ym bytes.Buffer
	require.NoError(t, writeOutput(&ym, "yaml", trip))
	assert.Contains(t, ym.String(), "title: SF trip")
	assert.Contains(t, ym.String(), "user_id: u1")

	assert.Error(t, writeOutput(&bytes.Buffer{}, "xml", trip))
}
