// ABOUTME: Tests for metadata stream sync
// ABOUTME: Covers snapshot application, idempotence, timeout, and malformed payloads

package sidechannel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataSync_DisplayNameApplied(t *testing.T) {
	spy := &sinkSpy{}
	ms := NewMetadataSync("conv-1", spy, time.Minute, nil)
	defer ms.Close()
	ms.Start()

	require.NoError(t, ms.OnEvent(`{"data":{"display_name":"Quarterly report"}}`))

	title, ok := spy.lastTitle()
	require.True(t, ok)
	assert.Equal(t, "Quarterly report", title)

	pending, _ := spy.pending()
	assert.False(t, pending)
}

func TestMetadataSync_IdempotentApplication(t *testing.T) {
	spy := &sinkSpy{}
	ms := NewMetadataSync("conv-1", spy, time.Minute, nil)
	defer ms.Close()
	ms.Start()

	require.NoError(t, ms.OnEvent(`{"data":{"display_name":"Same"}}`))
	before := len(spy.patches)
	require.NoError(t, ms.OnEvent(`{"data":{"display_name":"Same"}}`))

	assert.Equal(t, before, len(spy.patches), "re-delivering the same name is a no-op")
}

func TestMetadataSync_EmptyDisplayNameIgnored(t *testing.T) {
	spy := &sinkSpy{}
	ms := NewMetadataSync("conv-1", spy, time.Minute, nil)
	defer ms.Close()
	ms.Start()

	require.NoError(t, ms.OnEvent(`{"data":{"display_name":""}}`))

	pending, _ := spy.pending()
	assert.True(t, pending, "empty snapshot does not resolve pending")
}

func TestMetadataSync_MalformedPayloadReturnsError(t *testing.T) {
	spy := &sinkSpy{}
	ms := NewMetadataSync("conv-1", spy, time.Minute, nil)
	defer ms.Close()
	ms.Start()

	assert.Error(t, ms.OnEvent(`{not json`))

	pending, _ := spy.pending()
	assert.True(t, pending, "parse failure alone does not resolve; the timer will")
}

func TestMetadataSync_TimeoutResolves(t *testing.T) {
	spy := &sinkSpy{}
	ms := NewMetadataSync("conv-1", spy, 20*time.Millisecond, nil)
	defer ms.Close()
	ms.Start()

	require.Eventually(t, func() bool {
		pending, set := spy.pending()
		return set && !pending
	}, time.Second, 5*time.Millisecond)
}

func TestMetadataSync_ErrorFailsOpen(t *testing.T) {
	spy := &sinkSpy{}
	ms := NewMetadataSync("conv-1", spy, time.Minute, nil)
	defer ms.Close()
	ms.Start()

	ms.OnError(errors.New("connection reset"))

	pending, _ := spy.pending()
	assert.False(t, pending)
}

func TestMetadataSync_EventsAfterCloseIgnored(t *testing.T) {
	spy := &sinkSpy{}
	ms := NewMetadataSync("conv-1", spy, time.Minute, nil)
	ms.Start()
	ms.Close()

	require.NoError(t, ms.OnEvent(`{"data":{"display_name":"Too late"}}`))
	_, hasTitle := spy.lastTitle()
	assert.False(t, hasTitle)
}
