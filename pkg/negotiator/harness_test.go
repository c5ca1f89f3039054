package negotiator

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arzzra/h323phone/pkg/capability"
	"github.com/arzzra/h323phone/pkg/h245"
	"github.com/arzzra/h323phone/pkg/mediafmt"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// side одна сторона управления со всеми процедурами и записью событий.
type side struct {
	t    *testing.T
	name string

	queue []h245.Message
	sent  []h245.Message

	msd *MasterSlave
	tcs *CapabilityExchange
	lc  *LogicalChannels
	rm  *RequestMode
	rtd *RoundTripDelay

	local  *capability.Set
	remote *capability.Set

	determined  []bool
	errors      []Procedure
	emptyTCS    int
	established []*LogicalChannel
	closed      []*LogicalChannel
	conflicts   []*capability.Capability
	reopen      bool
	acceptMode  bool
	modeResults []bool
	rtts        []time.Duration
	rttTimeouts int
}

func sequence(numbers ...uint32) func() uint32 {
	i := 0
	return func() uint32 {
		n := numbers[i]
		if i < len(numbers)-1 {
			i++
		}
		return n
	}
}

func newSide(t *testing.T, name string, local *capability.Set, numbers func() uint32) *side {
	s := &side{t: t, name: name, local: local, remote: capability.NewSet(), reopen: true}
	s.msd = NewMasterSlave(s, s, MasterSlaveConfig{
		TerminalType: 50, Retries: 5, Timeout: time.Second, NumberSource: numbers, Logger: quietLogger,
	})
	s.tcs = NewCapabilityExchange(s, s, CapabilityExchangeConfig{Timeout: time.Second, Logger: quietLogger})
	s.lc = NewLogicalChannels(s, s, LogicalChannelsConfig{Timeout: time.Second, Logger: quietLogger})
	s.rm = NewRequestMode(s, s, RequestModeConfig{Timeout: time.Second, Logger: quietLogger})
	s.rtd = NewRoundTripDelay(s, s, RoundTripConfig{Timeout: time.Second, Logger: quietLogger})
	return s
}

func (s *side) WriteControl(msg h245.Message) bool {
	s.queue = append(s.queue, msg)
	s.sent = append(s.sent, msg)
	return true
}

func (s *side) OnControlProtocolError(proc Procedure, _ string) {
	s.errors = append(s.errors, proc)
}

func (s *side) OnMasterSlaveDetermined(master bool) { s.determined = append(s.determined, master) }

func (s *side) LocalCapabilities() *capability.Set { return s.local }

func (s *side) OnReceivedCapabilitySet(remote *capability.Set, empty bool) bool {
	if empty {
		s.emptyTCS++
		return true
	}
	return s.remote.Merge(remote)
}

func (s *side) IsMaster() bool { return s.msd.IsMaster() }

func (s *side) OnOpeningChannel(*LogicalChannel, *h245.OpenLogicalChannel) bool { return true }

func (s *side) OnOpenChannel(ch *LogicalChannel, _ *h245.OpenLogicalChannel) (h245.OLCRejectCause, bool) {
	ch.LocalMediaAddress = "127.0.0.1:5004"
	return "", true
}

func (s *side) OnChannelEstablished(ch *LogicalChannel) { s.established = append(s.established, ch) }

func (s *side) OnChannelClosed(ch *LogicalChannel) { s.closed = append(s.closed, ch) }

func (s *side) OnConflictingChannel(sessionID uint, c *capability.Capability) {
	s.conflicts = append(s.conflicts, c)
	if s.reopen {
		_, ok := s.lc.Open(c, sessionID)
		require.True(s.t, ok)
	}
}

func (s *side) OnRequestModeChange(*h245.RequestMode) (int, bool) { return 0, s.acceptMode }

func (s *side) OnModeChangeResult(accepted bool) { s.modeResults = append(s.modeResults, accepted) }

func (s *side) OnRoundTripDelay(rtt time.Duration) { s.rtts = append(s.rtts, rtt) }

func (s *side) OnRoundTripTimeout() { s.rttTimeouts++ }

// deliver передает сообщение обработчику соответствующей процедуры.
func (s *side) deliver(msg h245.Message) {
	switch m := msg.(type) {
	case *h245.MasterSlaveDetermination:
		s.msd.HandleIncoming(m)
	case *h245.MasterSlaveDeterminationAck:
		s.msd.HandleAck(m)
	case *h245.MasterSlaveDeterminationReject:
		s.msd.HandleReject(m)
	case *h245.MasterSlaveDeterminationRelease:
		s.msd.HandleRelease(m)
	case *h245.TerminalCapabilitySet:
		s.tcs.HandleIncoming(m)
	case *h245.TerminalCapabilitySetAck:
		s.tcs.HandleAck(m)
	case *h245.TerminalCapabilitySetReject:
		s.tcs.HandleReject(m)
	case *h245.TerminalCapabilitySetRelease:
		s.tcs.HandleRelease(m)
	case *h245.OpenLogicalChannel:
		s.lc.HandleOpen(m)
	case *h245.OpenLogicalChannelAck:
		s.lc.HandleOpenAck(m)
	case *h245.OpenLogicalChannelReject:
		s.lc.HandleOpenReject(m)
	case *h245.CloseLogicalChannel:
		s.lc.HandleClose(m)
	case *h245.CloseLogicalChannelAck:
		s.lc.HandleCloseAck(m)
	case *h245.RequestChannelClose:
		s.lc.HandleRequestClose(m)
	case *h245.RequestChannelCloseAck, *h245.RequestChannelCloseReject:
		s.lc.HandleRequestCloseResponse(m)
	case *h245.RequestMode:
		s.rm.HandleRequest(m)
	case *h245.RequestModeAck:
		s.rm.HandleAck(m)
	case *h245.RequestModeReject:
		s.rm.HandleReject(m)
	case *h245.RequestModeRelease:
		s.rm.HandleRelease(m)
	case *h245.RoundTripDelayRequest:
		s.rtd.HandleRequest(m)
	case *h245.RoundTripDelayResponse:
		s.rtd.HandleResponse(m)
	default:
		s.t.Fatalf("%s: неожиданное сообщение %s", s.name, msg.Kind())
	}
}

// pop извлекает первое сообщение заданного вида.
func (s *side) pop(kind h245.MessageKind) h245.Message {
	for i, m := range s.queue {
		if m.Kind() == kind {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return m
		}
	}
	s.t.Fatalf("%s: в очереди нет %s", s.name, kind)
	return nil
}

// pump поочередно доставляет сообщения сторон до опустошения очередей.
func pump(t *testing.T, a, b *side) {
	t.Helper()
	for i := 0; len(a.queue) > 0 || len(b.queue) > 0; i++ {
		require.Less(t, i, 1000, "обмен не сходится")
		if len(a.queue) > 0 {
			m := a.queue[0]
			a.queue = a.queue[1:]
			b.deliver(m)
		}
		if len(b.queue) > 0 {
			m := b.queue[0]
			b.queue = b.queue[1:]
			a.deliver(m)
		}
	}
}

func countKind(msgs []h245.Message, kind h245.MessageKind) int {
	n := 0
	for _, m := range msgs {
		if m.Kind() == kind {
			n++
		}
	}
	return n
}

func capByName(t *testing.T, name string, dir capability.Direction) *capability.Capability {
	t.Helper()
	f, ok := mediafmt.DefaultRegistry().Find(name)
	require.True(t, ok, "формат %s", name)
	c, err := capability.FromFormat(f, dir)
	require.NoError(t, err)
	return c
}

// audioSet таблица с альтернативами PCMU|PCMA и видео H.261 одновременно.
func audioSet(t *testing.T) *capability.Set {
	s := capability.NewSet()
	d, audio := s.SetCapability(capability.NewEntry, capability.NewEntry, capByName(t, "G.711-uLaw-64k", capability.DirectionReceive))
	s.SetCapability(d, audio, capByName(t, "G.711-ALaw-64k", capability.DirectionReceive))
	s.SetCapability(d, capability.NewEntry, capByName(t, "H.261", capability.DirectionReceive))
	return s
}

// newPair стороны с завершенными определением ведущего и обменом
// возможностями; a ведущая.
func newPair(t *testing.T) (*side, *side) {
	a := newSide(t, "a", audioSet(t), sequence(100))
	b := newSide(t, "b", audioSet(t), sequence(900))
	require.True(t, a.msd.Start())
	require.True(t, b.msd.Start())
	require.True(t, a.tcs.Start(false))
	require.True(t, b.tcs.Start(false))
	pump(t, a, b)
	require.True(t, a.msd.IsMaster())
	require.False(t, b.msd.IsMaster())
	return a, b
}
