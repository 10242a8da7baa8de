package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTransitionMetadata_Publish(t *testing.T) {
	meta, err := DecodeTransitionMetadata(ActionPublish, map[string]any{
		"contentValidated": true,
		"seoOptimized":     false,
	})
	require.NoError(t, err)

	publish, ok := meta.(PublishMetadata)
	require.True(t, ok)
	assert.Equal(t, ActionPublish, publish.TransitionAction())
	assert.True(t, publish.ContentValidated)
	assert.False(t, publish.SEOOptimized)
}

func TestDecodeTransitionMetadata_Approve(t *testing.T) {
	meta, err := DecodeTransitionMetadata(ActionApprove, map[string]any{
		"reviewCompleted": true,
	})
	require.NoError(t, err)

	approval, ok := meta.(ApprovalMetadata)
	require.True(t, ok)
	assert.True(t, approval.ReviewCompleted)
}

func TestDecodeTransitionMetadata_NilBagDecodesToZeroValues(t *testing.T) {
	meta, err := DecodeTransitionMetadata(ActionPublish, nil)
	require.NoError(t, err)

	publish, ok := meta.(PublishMetadata)
	require.True(t, ok)
	assert.False(t, publish.ContentValidated)
	assert.False(t, publish.SEOOptimized)
}

func TestDecodeTransitionMetadata_WrongTypes(t *testing.T) {
	_, err := DecodeTransitionMetadata(ActionApprove, map[string]any{
		"reviewCompleted": "yes",
	})
	assert.Error(t, err)
}

func TestDecodeTransitionMetadata_GenericAction(t *testing.T) {
	raw := map[string]any{"reason": "seasonal cleanup"}

	meta, err := DecodeTransitionMetadata(ActionArchive, raw)
	require.NoError(t, err)

	generic, ok := meta.(GenericMetadata)
	require.True(t, ok)
	assert.Equal(t, ActionArchive, generic.TransitionAction())
	assert.Equal(t, raw, generic.Values)
}
