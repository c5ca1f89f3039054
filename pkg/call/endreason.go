package call

import (
	"github.com/pkg/errors"

	"github.com/arzzra/h323phone/pkg/gatekeeper"
	"github.com/arzzra/h323phone/pkg/h225"
)

// EndReason причина завершения вызова
type EndReason int

const (
	EndedByLocalUser EndReason = iota
	EndedByNoAccept
	EndedByAnswerDenied
	EndedByRemoteUser
	EndedByRefusal
	EndedByNoAnswer
	EndedByCallerAbort
	EndedByTransportFail
	EndedByConnectFail
	EndedByGatekeeper
	EndedByNoUser
	EndedByNoBandwidth
	EndedByCapabilityExchange
	EndedByCallForwarded
	EndedBySecurityDenial
	EndedByLocalBusy
	EndedByLocalCongestion
	EndedByRemoteBusy
	EndedByRemoteCongestion
	EndedByUnreachable
	EndedByNoEndPoint
	EndedByHostOffline
	EndedByTemporaryFailure
	EndedByQ931Cause
	EndedByDurationLimit
	EndedByGkAdmissionFailed
	EndedByIllegalAddress
	EndedByProtocolError
)

var endReasonNames = [...]string{
	EndedByLocalUser:          "LocalUser",
	EndedByNoAccept:           "NoAccept",
	EndedByAnswerDenied:       "AnswerDenied",
	EndedByRemoteUser:         "RemoteUser",
	EndedByRefusal:            "Refusal",
	EndedByNoAnswer:           "NoAnswer",
	EndedByCallerAbort:        "CallerAbort",
	EndedByTransportFail:      "TransportFail",
	EndedByConnectFail:        "ConnectFail",
	EndedByGatekeeper:         "Gatekeeper",
	EndedByNoUser:             "NoUser",
	EndedByNoBandwidth:        "NoBandwidth",
	EndedByCapabilityExchange: "CapabilityExchange",
	EndedByCallForwarded:      "CallForwarded",
	EndedBySecurityDenial:     "SecurityDenial",
	EndedByLocalBusy:          "LocalBusy",
	EndedByLocalCongestion:    "LocalCongestion",
	EndedByRemoteBusy:         "RemoteBusy",
	EndedByRemoteCongestion:   "RemoteCongestion",
	EndedByUnreachable:        "Unreachable",
	EndedByNoEndPoint:         "NoEndPoint",
	EndedByHostOffline:        "HostOffline",
	EndedByTemporaryFailure:   "TemporaryFailure",
	EndedByQ931Cause:          "Q931Cause",
	EndedByDurationLimit:      "DurationLimit",
	EndedByGkAdmissionFailed:  "GkAdmissionFailed",
	EndedByIllegalAddress:     "IllegalAddress",
	EndedByProtocolError:      "ProtocolError",
}

func (r EndReason) String() string {
	if r >= 0 && int(r) < len(endReasonNames) {
		return endReasonNames[r]
	}
	return "Unknown"
}

// endReasonFromCause переводит причину Q.931 полученного RELEASE COMPLETE.
func endReasonFromCause(cause h225.Cause) EndReason {
	switch cause {
	case h225.CauseNormalCallClearing, h225.CauseUnknown:
		return EndedByRemoteUser
	case h225.CauseUserBusy:
		return EndedByRemoteBusy
	case h225.CauseNoResponse, h225.CauseNoAnswer:
		return EndedByNoAnswer
	case h225.CauseSubscriberAbsent:
		return EndedByHostOffline
	case h225.CauseCallRejected:
		return EndedByRefusal
	case h225.CauseUnallocatedNumber:
		return EndedByNoUser
	case h225.CauseNoRouteToNetwork, h225.CauseNoRouteToDestination, h225.CauseNetworkOutOfOrder:
		return EndedByUnreachable
	case h225.CauseDestinationOutOfOrder:
		return EndedByNoEndPoint
	case h225.CauseNoCircuitChannelAvailable, h225.CauseCongestion, h225.CauseRequestedCircuitUnavailable:
		return EndedByRemoteCongestion
	case h225.CauseTemporaryFailure:
		return EndedByTemporaryFailure
	case h225.CauseRedirection:
		return EndedByCallForwarded
	case h225.CauseInvalidNumberFormat:
		return EndedByIllegalAddress
	}
	return EndedByQ931Cause
}

// q931Cause причина Q.931 для отправляемого RELEASE COMPLETE.
func (r EndReason) q931Cause() h225.Cause {
	switch r {
	case EndedByNoAccept, EndedByAnswerDenied, EndedByRefusal:
		return h225.CauseCallRejected
	case EndedByLocalBusy:
		return h225.CauseUserBusy
	case EndedByNoAnswer:
		return h225.CauseNoAnswer
	case EndedByNoUser:
		return h225.CauseUnallocatedNumber
	case EndedByCapabilityExchange:
		return h225.CauseIncompatibleDestination
	case EndedByLocalCongestion:
		return h225.CauseNoCircuitChannelAvailable
	case EndedByNoBandwidth:
		return h225.CauseResourceUnavailable
	case EndedByTransportFail, EndedByProtocolError:
		return h225.CauseProtocolError
	case EndedByTemporaryFailure:
		return h225.CauseTemporaryFailure
	case EndedByIllegalAddress:
		return h225.CauseInvalidNumberFormat
	case EndedByCallForwarded:
		return h225.CauseRedirection
	}
	return h225.CauseNormalCallClearing
}

// releaseReason причина уровня H.225 для отправляемого RELEASE COMPLETE.
func (r EndReason) releaseReason() h225.ReleaseReason {
	switch r {
	case EndedByNoBandwidth:
		return h225.ReleaseNoBandwidth
	case EndedBySecurityDenial:
		return h225.ReleaseSecurityDenied
	case EndedByNoUser:
		return h225.ReleaseCalledPartyNotRegistered
	case EndedByGkAdmissionFailed, EndedByGatekeeper:
		return h225.ReleaseGatekeeperResources
	case EndedByNoAccept, EndedByAnswerDenied:
		return h225.ReleaseDestinationRejection
	case EndedByUnreachable:
		return h225.ReleaseUnreachableDestination
	}
	return h225.ReleaseNone
}

// endReasonFromAdmission переводит отказ регистратора в причину завершения.
func endReasonFromAdmission(err error) EndReason {
	var rej *gatekeeper.RejectError
	if !errors.As(err, &rej) {
		return EndedByGkAdmissionFailed
	}
	switch rej.Reason {
	case gatekeeper.RejectCalledPartyNotRegistered:
		return EndedByNoUser
	case gatekeeper.RejectRequestDenied:
		return EndedByNoBandwidth
	case gatekeeper.RejectInvalidPermission, gatekeeper.RejectSecurityDenial:
		return EndedBySecurityDenial
	case gatekeeper.RejectResourceUnavailable:
		return EndedByRemoteBusy
	}
	return EndedByGkAdmissionFailed
}
