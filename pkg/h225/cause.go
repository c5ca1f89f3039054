package h225

// Cause код причины Q.931.
type Cause int

const (
	CauseUnknown                     Cause = 0
	CauseUnallocatedNumber           Cause = 1
	CauseNoRouteToNetwork            Cause = 2
	CauseNoRouteToDestination        Cause = 3
	CauseChannelUnacceptable         Cause = 6
	CauseNormalCallClearing          Cause = 16
	CauseUserBusy                    Cause = 17
	CauseNoResponse                  Cause = 18
	CauseNoAnswer                    Cause = 19
	CauseSubscriberAbsent            Cause = 20
	CauseCallRejected                Cause = 21
	CauseNumberChanged               Cause = 22
	CauseRedirection                 Cause = 23
	CauseDestinationOutOfOrder       Cause = 27
	CauseInvalidNumberFormat         Cause = 28
	CauseStatusEnquiryResponse       Cause = 30
	CauseNormalUnspecified           Cause = 31
	CauseNoCircuitChannelAvailable   Cause = 34
	CauseNetworkOutOfOrder           Cause = 38
	CauseTemporaryFailure            Cause = 41
	CauseCongestion                  Cause = 42
	CauseRequestedCircuitUnavailable Cause = 44
	CauseResourceUnavailable         Cause = 47
	CauseQosUnavailable              Cause = 49
	CauseBearerNotAuthorised         Cause = 57
	CauseBearerNotImplemented        Cause = 65
	CauseInvalidCallReference        Cause = 81
	CauseIncompatibleDestination     Cause = 88
	CauseInvalidMessage              Cause = 95
	CauseMandatoryIEMissing          Cause = 96
	CauseMessageTypeNotImplemented   Cause = 97
	CauseProtocolError               Cause = 111
	CauseInterworking                Cause = 127
)

// ReleaseReason причина RELEASE COMPLETE на уровне H.225.
type ReleaseReason string

const (
	ReleaseNone                     ReleaseReason = ""
	ReleaseNoBandwidth              ReleaseReason = "noBandwidth"
	ReleaseGatekeeperResources      ReleaseReason = "gatekeeperResources"
	ReleaseUnreachableDestination   ReleaseReason = "unreachableDestination"
	ReleaseDestinationRejection     ReleaseReason = "destinationRejection"
	ReleaseNoPermission             ReleaseReason = "noPermission"
	ReleaseUnreachableGatekeeper    ReleaseReason = "unreachableGatekeeper"
	ReleaseGatewayResources         ReleaseReason = "gatewayResources"
	ReleaseBadFormatAddress         ReleaseReason = "badFormatAddress"
	ReleaseAdaptiveBusy             ReleaseReason = "adaptiveBusy"
	ReleaseInConf                   ReleaseReason = "inConf"
	ReleaseUndefined                ReleaseReason = "undefinedReason"
	ReleaseFacilityCallDeflection   ReleaseReason = "facilityCallDeflection"
	ReleaseSecurityDenied           ReleaseReason = "securityDenied"
	ReleaseCalledPartyNotRegistered ReleaseReason = "calledPartyNotRegistered"
	ReleaseCallerNotRegistered      ReleaseReason = "callerNotRegistered"
	ReleaseNewConnectionNeeded      ReleaseReason = "newConnectionNeeded"
)
