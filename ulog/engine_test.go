package ulog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildSampleFile assembles a small, fully in-order ULog byte stream: one
// Information, one Parameter and one Format record, then one subscription,
// two Data records, one Log record, a Sync, a Dropout, and a RemoveLogged.
func buildSampleFile(t *testing.T) []byte {
	t.Helper()

	formatStr := "vehicle_attitude:uint64_t timestamp;float rollspeed;"
	iPayload := informationPayload("char[3] sys_name", []byte("PX4"))
	pPayload := parameterPayload("int32_t RC12_TRIM", newByteWriter().u32(1500).bytes())
	fPayload := []byte(formatStr)
	aPayload := addLoggedPayload(0, 0, "vehicle_attitude")
	dPayload1 := dataPayload(0, newByteWriter().u64(1000).f32(1.5).bytes())
	lPayload := logPayload(1, 1100, "hello")
	dPayload2 := dataPayload(0, newByteWriter().u64(1200).f32(2.5).bytes())
	sPayload := syncPayload()
	oPayload := dropoutPayload(5)
	rPayload := removeLoggedPayload(0)

	return newRecordBuilder().
		header(0, 500).
		record('I', iPayload).
		record('P', pPayload).
		record('F', fPayload).
		record('A', aPayload).
		record('D', dPayload1).
		record('L', lPayload).
		record('D', dPayload2).
		record('S', sPayload).
		record('O', oPayload).
		record('R', rPayload).
		bytes()
}

func openSample(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(NewMemoryByteSource(buildSampleFile(t)))
	require.NoError(t, e.Open())
	return e
}

func TestEngineOpenPopulatesHeader(t *testing.T) {
	e := openSample(t)
	h, err := e.Header()
	require.NoError(t, err)
	assert.Equal(t, uint8(0), h.Version)
	assert.Equal(t, uint64(500), h.StartTimestamp)
	assert.Nil(t, h.FlagBits)
	assert.Equal(t, "PX4", h.Information["sys_name"])
	assert.Equal(t, int32(1500), h.Parameters["RC12_TRIM"].Value)
	require.Contains(t, h.Definitions, "vehicle_attitude")
	assert.Len(t, h.Definitions["vehicle_attitude"].Fields, 2)
}

func TestEngineOpenBindsSubscription(t *testing.T) {
	e := openSample(t)
	subs, err := e.Subscriptions()
	require.NoError(t, err)
	sub, ok := subs[0]
	require.True(t, ok)
	assert.Equal(t, "vehicle_attitude", sub.Definition.Name)
	assert.Equal(t, uint8(0), sub.MultiID)
}

func TestEngineCounts(t *testing.T) {
	e := openSample(t)
	count, err := e.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	logs, err := e.LogCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), logs)

	dataCounts, err := e.DataMessageCounts()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), dataCounts[0])
}

func TestEngineTimeRange(t *testing.T) {
	e := openSample(t)
	min, max, ok, err := e.TimeRange()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1000), min)
	assert.Equal(t, uint64(1200), max)
}

func TestEngineReadMessagesAscendingOrder(t *testing.T) {
	e := openSample(t)
	it, err := e.ReadMessages()
	require.NoError(t, err)

	var timestamps []uint64
	var kinds []EntryKind
	for it.More() {
		msg, err := it.Next()
		require.NoError(t, err)
		timestamps = append(timestamps, msg.Timestamp)
		kinds = append(kinds, msg.Kind)
	}
	assert.Equal(t, []uint64{0, 1000, 1100, 1200, 1200, 1200, 1200}, timestamps)
	assert.Equal(t, EntryOther, kinds[0]) // AddLogged
	assert.Equal(t, EntryData, kinds[1])
	assert.Equal(t, EntryLog, kinds[2])
	assert.Equal(t, EntryData, kinds[3])
}

func TestEngineReadMessagesDecodesDataPayload(t *testing.T) {
	e := openSample(t)
	it, err := e.ReadMessages(WithMsgIDs(0), WithoutLogs())
	require.NoError(t, err)

	var dataMessages []Message
	for it.More() {
		msg, err := it.Next()
		require.NoError(t, err)
		if msg.Kind == EntryData {
			dataMessages = append(dataMessages, msg.Message)
		}
	}
	require.Len(t, dataMessages, 2)
	assert.Equal(t, uint64(1000), dataMessages[0]["timestamp"])
	assert.InDelta(t, 1.5, dataMessages[0]["rollspeed"].(float32), 1e-6)
	assert.Equal(t, uint64(1200), dataMessages[1]["timestamp"])
}

func TestEngineReadMessagesTimeBounds(t *testing.T) {
	e := openSample(t)
	it, err := e.ReadMessages(WithStart(1000), WithEnd(1100))
	require.NoError(t, err)

	var count int
	for it.More() {
		_, err := it.Next()
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 2, count) // the D(1000) and L(1100) entries only
}

func TestEngineReadMessagesReverse(t *testing.T) {
	e := openSample(t)
	it, err := e.ReadMessages(WithReverse())
	require.NoError(t, err)

	var timestamps []uint64
	for it.More() {
		msg, err := it.Next()
		require.NoError(t, err)
		timestamps = append(timestamps, msg.Timestamp)
	}
	assert.Equal(t, []uint64{1200, 1200, 1200, 1200, 1100, 1000, 0}, timestamps)
}

func TestEngineReadMessagesNamePatternFiltersData(t *testing.T) {
	e := openSample(t)
	it, err := e.ReadMessages(WithNamePattern("nonexistent_*"))
	require.NoError(t, err)

	for it.More() {
		msg, err := it.Next()
		require.NoError(t, err)
		assert.NotEqual(t, EntryData, msg.Kind)
	}
}

func TestEngineQueryBeforeOpenIsStateViolation(t *testing.T) {
	e := NewEngine(NewMemoryByteSource(buildSampleFileNoHelper()))
	_, err := e.Header()
	assert.ErrorIs(t, err, ErrStateViolation)
}

// buildSampleFileNoHelper avoids requiring *testing.T so it can be used from
// a non-t.Helper context.
func buildSampleFileNoHelper() []byte {
	return newRecordBuilder().header(0, 0).bytes()
}

func TestEngineOpenRejectsBadMagic(t *testing.T) {
	data := append([]byte{}, buildSampleFile(t)...)
	data[0] = 0x00
	e := NewEngine(NewMemoryByteSource(data))
	err := e.Open()
	require.Error(t, err)
	var magicErr *ErrInvalidMagic
	assert.ErrorAs(t, err, &magicErr)
}

// TestEngineOpenClampsDataEndToAppendedOffset pins spec scenario 6: a
// FlagBits appended-data offset truncates the logical Data section, so
// records at or beyond that offset are excluded from the index.
func TestEngineOpenClampsDataEndToAppendedOffset(t *testing.T) {
	formatStr := "vehicle_attitude:uint64_t timestamp;float rollspeed;"
	iPayload := informationPayload("char[3] sys_name", []byte("PX4"))
	pPayload := parameterPayload("int32_t RC12_TRIM", newByteWriter().u32(1500).bytes())
	fPayload := []byte(formatStr)
	aPayload := addLoggedPayload(0, 0, "vehicle_attitude")
	dPayload1 := dataPayload(0, newByteWriter().u64(1000).f32(1.5).bytes())
	lPayload := logPayload(1, 1100, "hello")
	dPayload2 := dataPayload(0, newByteWriter().u64(1200).f32(2.5).bytes())
	oPayload := dropoutPayload(5)
	rPayload := removeLoggedPayload(0)

	recordLen := func(p []byte) int64 { return 3 + int64(len(p)) }
	bPlaceholder := flagBitsPayload(1, [3]uint64{0, 0, 0})

	cutoff := int64(16) +
		recordLen(bPlaceholder) +
		recordLen(iPayload) +
		recordLen(pPayload) +
		recordLen(fPayload) +
		recordLen(aPayload) +
		recordLen(dPayload1) +
		recordLen(lPayload) +
		recordLen(dPayload2)

	bPayload := flagBitsPayload(1, [3]uint64{uint64(cutoff), 0, 0})

	data := newRecordBuilder().
		header(1, 500).
		record('B', bPayload).
		record('I', iPayload).
		record('P', pPayload).
		record('F', fPayload).
		record('A', aPayload).
		record('D', dPayload1).
		record('L', lPayload).
		record('D', dPayload2).
		record('O', oPayload).
		record('R', rPayload).
		bytes()

	e := NewEngine(NewMemoryByteSource(data))
	require.NoError(t, e.Open())

	h, err := e.Header()
	require.NoError(t, err)
	require.NotNil(t, h.FlagBits)
	assert.Equal(t, byte(1), h.FlagBits.IncompatFlags[0])
	assert.Equal(t, uint64(cutoff), h.FlagBits.AppendedOffsets[0])

	count, err := e.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, 4, count) // A, D, L, D only -- O and R lie past dataEnd
}

// TestEngineOpenToleratesTruncatedTail pins spec scenario 7: a record header
// announcing more payload than remains is dropped rather than failing Open.
func TestEngineOpenToleratesTruncatedTail(t *testing.T) {
	good := buildSampleFile(t)
	truncated := append(good, 0x09, 0x00, 'D', 0x01, 0x02) // announces 9 bytes, only 2 present

	e := NewEngine(NewMemoryByteSource(truncated))
	require.NoError(t, e.Open())

	count, err := e.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, 7, count) // the dangling partial record is dropped
}
