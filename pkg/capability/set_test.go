package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/h323phone/pkg/h245"
	"github.com/arzzra/h323phone/pkg/mediafmt"
)

func mustFormat(t *testing.T, name string) mediafmt.Format {
	t.Helper()
	f, ok := mediafmt.DefaultRegistry().Find(name)
	require.True(t, ok, "формат %s не найден", name)
	return f
}

func mustCap(t *testing.T, name string) *Capability {
	t.Helper()
	c, err := FromFormat(mustFormat(t, name), DirectionReceive)
	require.NoError(t, err)
	return c
}

// buildSet строит таблицу: дескриптор 0 = {PCMU|PCMA} x {H.261} x {dtmf}.
func buildSet(t *testing.T) *Set {
	t.Helper()
	s := NewSet()
	d, audio := s.SetCapability(NewEntry, NewEntry, mustCap(t, "G.711-uLaw-64k"))
	s.SetCapability(d, audio, mustCap(t, "G.711-ALaw-64k"))
	s.SetCapability(d, NewEntry, mustCap(t, "H.261"))
	s.SetCapability(d, NewEntry, mustCap(t, "UserInput/dtmf"))
	return s
}

func TestSetNumbersUnique(t *testing.T) {
	s := buildSet(t)
	require.Equal(t, 4, s.Len())

	seen := map[uint]bool{}
	for _, c := range s.Capabilities() {
		assert.False(t, seen[c.Number()], "номер %d повторяется", c.Number())
		seen[c.Number()] = true
	}
	assert.Equal(t, uint(1), s.Capabilities()[0].Number(), "нумерация начинается с 1")

	again := s.Add(mustCap(t, "G.711-uLaw-64k"))
	assert.Equal(t, uint(1), again.Number(), "повторное добавление возвращает существующую запись")
	assert.Equal(t, 4, s.Len())
}

func TestIsAllowed(t *testing.T) {
	s := buildSet(t)
	pcmu := s.FindByName("G.711-uLaw*", DirectionUnknown).Number()
	pcma := s.FindByName("G.711-ALaw*", DirectionUnknown).Number()
	h261 := s.FindByName("H.261", DirectionUnknown).Number()

	assert.True(t, s.IsAllowed(pcmu, pcmu), "рефлексивность")
	assert.True(t, s.IsAllowed(pcmu, h261))
	assert.True(t, s.IsAllowed(h261, pcmu), "симметричность")
	assert.False(t, s.IsAllowed(pcmu, pcma), "альтернативы одного набора несовместимы")
	assert.False(t, s.IsAllowed(pcma, pcmu))
	assert.False(t, s.IsAllowed(pcmu, 99))

	for _, a := range s.Capabilities() {
		for _, b := range s.Capabilities() {
			assert.Equal(t, s.IsAllowed(a.Number(), b.Number()), s.IsAllowed(b.Number(), a.Number()))
		}
	}
	assert.True(t, s.IsAllowedAll(pcmu, h261))
	assert.False(t, s.IsAllowedAll(pcmu, h261, pcma))
}

func TestMerge(t *testing.T) {
	local := buildSet(t)
	entries, descs := local.ToWire()

	remote, dropped := SetFromWire(mediafmt.DefaultRegistry(), entries, descs)
	require.Zero(t, dropped)

	t.Run("слияние в пустую таблицу", func(t *testing.T) {
		empty := NewSet()
		require.True(t, empty.Merge(remote))
		assert.Equal(t, remote.Len(), empty.Len())
		assert.Equal(t, remote.Descriptors(), empty.Descriptors())
	})

	t.Run("записи с совпадающими номерами заменяются", func(t *testing.T) {
		target := NewSet()
		target.Merge(remote)

		update := NewSet()
		g729 := mustCap(t, "G.729")
		g729.number = 1
		update.table = append(update.table, g729)
		update.descriptors = []Descriptor{{Number: 0, Simultaneous: [][]uint{{1}}}}

		require.True(t, target.Merge(update))
		assert.Equal(t, 4, target.Len(), "число записей не меняется")
		assert.Equal(t, "G.729", target.FindByNumber(1).FormatName())
		require.Len(t, target.Descriptors(), 1)
		assert.Equal(t, [][]uint{{1}}, target.Descriptors()[0].Simultaneous)
	})

	t.Run("пустой результат", func(t *testing.T) {
		assert.False(t, NewSet().Merge(NewSet()))
	})
}

func TestSetFromWireDropsUnknown(t *testing.T) {
	entries := []h245.CapabilityEntry{
		{Number: 1, MainType: "audio", SubType: "g711Ulaw64k"},
		{Number: 2, MainType: "audio", SubType: "nonStandard"},
		{Number: 3, MainType: "bogus", SubType: "x"},
	}
	descs := []h245.CapabilityDescriptor{{Number: 0, Simultaneous: [][]uint{{1, 2}, {3}}}}

	s, dropped := SetFromWire(mediafmt.DefaultRegistry(), entries, descs)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 1, s.Len())
	require.Len(t, s.Descriptors(), 1)
	assert.Equal(t, [][]uint{{1}}, s.Descriptors()[0].Simultaneous, "ссылки на отброшенные записи удаляются")
}

func TestRemovePrunesDescriptors(t *testing.T) {
	s := buildSet(t)
	h261 := s.FindByName("H.261", DirectionUnknown)
	require.NotNil(t, h261)

	require.True(t, s.Remove(h261))
	assert.Nil(t, s.FindByNumber(h261.Number()))
	require.Len(t, s.Descriptors(), 1)
	assert.Len(t, s.Descriptors()[0].Simultaneous, 2, "пустой набор альтернатив удален")

	assert.Equal(t, 2, s.RemoveByName("G.711*"))
	assert.Equal(t, 1, s.Len())

	s.RemoveAll()
	assert.True(t, s.IsEmpty())
}

func TestReorder(t *testing.T) {
	s := buildSet(t)
	s.Reorder([]string{"G.711-ALaw*", "H.*"})

	var names []string
	for _, c := range s.Capabilities() {
		names = append(names, c.FormatName())
	}
	assert.Equal(t, []string{"G.711-ALaw-64k", "H.261", "G.711-uLaw-64k", "UserInput/dtmf"}, names)

	pcma := s.FindByName("G.711-ALaw*", DirectionUnknown).Number()
	assert.Equal(t, pcma, s.Descriptors()[0].Simultaneous[0][0], "наборы альтернатив следуют новому порядку")
}

func TestFromFormatsAndCrypto(t *testing.T) {
	s, err := FromFormats([]mediafmt.Format{
		mustFormat(t, "G.711-uLaw-64k"),
		mustFormat(t, "H.261"),
		mustFormat(t, "G.729"),
	}, DirectionReceiveAndTransmit)
	require.NoError(t, err)
	require.Len(t, s.Descriptors(), 1)
	assert.Len(t, s.Descriptors()[0].Simultaneous, 2, "аудио и видео в разных наборах")

	local := mustCap(t, "G.711-uLaw-64k").WithCryptoSuites("AES_CM_128", "AES_CM_256")
	remote := mustCap(t, "G.711-uLaw-64k").WithCryptoSuites("AES_CM_256")
	suite, ok := local.SelectCryptoSuite(remote)
	require.True(t, ok)
	assert.Equal(t, "AES_CM_256", suite)
	assert.Equal(t, "AES_CM_256", local.SelectedCryptoSuite())
	assert.True(t, local.Matches(remote))
}
