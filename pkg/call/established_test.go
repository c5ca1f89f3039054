package call

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/arzzra/h323phone/pkg/negotiator"
)

// EstablishedCallSuite операции над установленным вызовом двух конечных
// точек с быстрым стартом и туннелированием H.245.
type EstablishedCallSuite struct {
	suite.Suite
	pair   *callPair
	caller *Connection
	callee *Connection
}

func (s *EstablishedCallSuite) SetupTest() {
	t := s.T()
	s.pair = newCallPair(t, nil, nil)
	s.caller = makeCall(t, s.pair.caller, "bob@"+calleeAddr)
	s.callee = receive(t, s.pair.calleeH.incoming)
	receive(t, s.pair.callerH.established)
	receive(t, s.pair.calleeH.established)

	// процедуры H.245 завершаются после установления по быстрому старту
	s.Require().Eventually(func() bool {
		return s.caller.IsMaster() != s.callee.IsMaster()
	}, waitTimeout, 10*time.Millisecond)
}

func (s *EstablishedCallSuite) TearDownTest() {
	s.caller.Release(EndedByLocalUser)
	waitDone(s.T(), s.caller)
	waitDone(s.T(), s.callee)
}

func (s *EstablishedCallSuite) channel(c *Connection, fromRemote bool, dir negotiator.ChannelDirection, format string) *negotiator.LogicalChannel {
	for _, ch := range c.LogicalChannels() {
		if ch.FromRemote == fromRemote && ch.Direction == dir && ch.Capability != nil && ch.Capability.FormatName() == format {
			return &ch
		}
	}
	return nil
}

func (s *EstablishedCallSuite) TestUserInputTone() {
	s.Require().Eventually(func() bool {
		return s.caller.SendUserInputTone('7', 20*time.Millisecond) == nil
	}, waitTimeout, 10*time.Millisecond)
	s.Equal("7", receive(s.T(), s.pair.calleeH.inputs))

	s.Require().NoError(s.callee.SendUserInput("#"))
	s.Equal("#", receive(s.T(), s.pair.callerH.inputs))
}

func (s *EstablishedCallSuite) TestRoundTripDelay() {
	s.Require().Eventually(s.caller.StartRoundTripDelay, waitTimeout, 10*time.Millisecond)
	s.Eventually(s.caller.StartRoundTripDelay, waitTimeout, 10*time.Millisecond,
		"после ответа возможно новое измерение")
	s.Equal(StateEstablished, s.caller.State())
}

func (s *EstablishedCallSuite) TestFlowControl() {
	rx := s.channel(s.callee, true, negotiator.DirectionReceiver, "G.711-uLaw-64k")
	s.Require().NotNil(rx)

	s.Require().NoError(s.callee.SendFlowControl(rx.Number, 100))
	s.Eventually(func() bool {
		tx := s.channel(s.caller, false, negotiator.DirectionTransmitter, "G.711-uLaw-64k")
		return tx != nil && tx.BitRateLimit == 100
	}, waitTimeout, 10*time.Millisecond)

	s.Error(s.callee.SendFlowControl(rx.Number+100, 100), "неизвестный канал")
}

func (s *EstablishedCallSuite) TestRequestModeChange() {
	old := s.channel(s.callee, false, negotiator.DirectionTransmitter, "G.711-uLaw-64k")
	s.Require().NotNil(old)

	s.Require().True(s.caller.RequestModeChange("G.711-ALaw-64k"))
	s.Equal(old.Number, receive(s.T(), s.pair.calleeH.closed))

	s.Eventually(func() bool {
		tx := s.channel(s.callee, false, negotiator.DirectionTransmitter, "G.711-ALaw-64k")
		return tx != nil && tx.State == negotiator.ChannelEstablished
	}, waitTimeout, 10*time.Millisecond)
	s.Eventually(func() bool {
		return s.channel(s.caller, true, negotiator.DirectionReceiver, "G.711-ALaw-64k") != nil
	}, waitTimeout, 10*time.Millisecond)
}

func (s *EstablishedCallSuite) TestCloseChannel() {
	tx := s.channel(s.caller, false, negotiator.DirectionTransmitter, "G.711-uLaw-64k")
	s.Require().NotNil(tx)

	s.Require().True(s.caller.CloseChannel(tx.Number, false))
	s.Equal(tx.Number, receive(s.T(), s.pair.callerH.closed))
	s.Equal(tx.Number, receive(s.T(), s.pair.calleeH.closed))
	s.False(s.caller.CloseChannel(tx.Number, false), "канал уже закрывается")
}

func (s *EstablishedCallSuite) TestEstablishmentSurvivesChannelChanges() {
	tx := s.channel(s.caller, false, negotiator.DirectionTransmitter, "G.711-uLaw-64k")
	s.Require().NotNil(tx)
	s.Require().True(s.caller.CloseChannel(tx.Number, false))
	s.Equal(tx.Number, receive(s.T(), s.pair.calleeH.closed))
	s.True(s.caller.IsEstablishmentReady(), "закрытие канала не отменяет установление")
	s.True(s.callee.IsEstablishmentReady())

	s.Require().True(s.callee.RequestModeChange("G.711-ALaw-64k"))
	s.Eventually(func() bool {
		return s.channel(s.callee, true, negotiator.DirectionReceiver, "G.711-ALaw-64k") != nil
	}, waitTimeout, 10*time.Millisecond)
	s.True(s.caller.IsEstablishmentReady())
	s.True(s.callee.IsEstablishmentReady())
	s.Equal(StateEstablished, s.caller.State())
	s.Empty(s.pair.callerH.established, "повторного установления нет")
	s.Empty(s.pair.calleeH.established)

	s.Require().NoError(s.caller.Hold())
	s.False(s.caller.IsEstablishmentReady(), "удержание снимает признак установления")
	s.Equal(StateEstablished, s.caller.State())
}

func TestEstablishedCallSuite(t *testing.T) {
	suite.Run(t, new(EstablishedCallSuite))
}
