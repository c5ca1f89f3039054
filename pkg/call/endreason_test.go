package call

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/arzzra/h323phone/pkg/gatekeeper"
	"github.com/arzzra/h323phone/pkg/h225"
)

func TestEndReasonFromAdmission(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want EndReason
	}{
		{"не зарегистрирован", &gatekeeper.RejectError{Reason: gatekeeper.RejectCalledPartyNotRegistered}, EndedByNoUser},
		{"нет полосы", &gatekeeper.RejectError{Reason: gatekeeper.RejectRequestDenied}, EndedByNoBandwidth},
		{"запрещено", &gatekeeper.RejectError{Reason: gatekeeper.RejectSecurityDenial}, EndedBySecurityDenial},
		{"нет прав", &gatekeeper.RejectError{Reason: gatekeeper.RejectInvalidPermission}, EndedBySecurityDenial},
		{"нет ресурсов", &gatekeeper.RejectError{Reason: gatekeeper.RejectResourceUnavailable}, EndedByRemoteBusy},
		{"обернутый отказ", errors.Wrap(&gatekeeper.RejectError{Reason: gatekeeper.RejectCalledPartyNotRegistered}, "допуск"), EndedByNoUser},
		{"прочий отказ", &gatekeeper.RejectError{Reason: gatekeeper.RejectTransportError}, EndedByGkAdmissionFailed},
		{"не отказ", errors.New("сбой"), EndedByGkAdmissionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, endReasonFromAdmission(tt.err))
		})
	}
}

func TestEndReasonFromCause(t *testing.T) {
	tests := map[h225.Cause]EndReason{
		h225.CauseUnknown:            EndedByRemoteUser,
		h225.CauseNormalCallClearing: EndedByRemoteUser,
		h225.CauseUserBusy:           EndedByRemoteBusy,
		h225.CauseNoAnswer:           EndedByNoAnswer,
		h225.CauseCallRejected:       EndedByRefusal,
		h225.CauseUnallocatedNumber:  EndedByNoUser,
		h225.CauseCongestion:         EndedByRemoteCongestion,
		h225.CauseRedirection:        EndedByCallForwarded,
		h225.CauseProtocolError:      EndedByQ931Cause,
	}
	for cause, want := range tests {
		assert.Equal(t, want, endReasonFromCause(cause), "cause %d", cause)
	}
}

func TestEndReasonToRelease(t *testing.T) {
	assert.Equal(t, h225.CauseNormalCallClearing, EndedByLocalUser.q931Cause())
	assert.Equal(t, h225.CauseCallRejected, EndedByNoAccept.q931Cause())
	assert.Equal(t, h225.CauseUserBusy, EndedByLocalBusy.q931Cause())
	assert.Equal(t, h225.CauseRedirection, EndedByCallForwarded.q931Cause())
	assert.Equal(t, h225.CauseInvalidNumberFormat, EndedByIllegalAddress.q931Cause())

	assert.Equal(t, h225.ReleaseNone, EndedByLocalUser.releaseReason())
	assert.Equal(t, h225.ReleaseDestinationRejection, EndedByAnswerDenied.releaseReason())
	assert.Equal(t, h225.ReleaseCalledPartyNotRegistered, EndedByNoUser.releaseReason())
	assert.Equal(t, h225.ReleaseGatekeeperResources, EndedByGkAdmissionFailed.releaseReason())
}

func TestEndReasonString(t *testing.T) {
	assert.Equal(t, "LocalUser", EndedByLocalUser.String())
	assert.Equal(t, "ProtocolError", EndedByProtocolError.String())
	assert.Equal(t, "Unknown", EndReason(-1).String())
	assert.Equal(t, "Unknown", EndReason(1000).String())
}
