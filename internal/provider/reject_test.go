package provider

import (
	"testing"

	"github.com/danmuck/rdmsession/internal/protocol/codec"
	"github.com/danmuck/rdmsession/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func TestRejectReasonStates(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		reason RejectReason
		stream codec.StreamState
		code   codec.StateCode
	}{
		{LoginMaxRequestsReached, codec.StreamClosedRecover, codec.CodeTooManyItems},
		{LoginNotAuthorized, codec.StreamClosed, codec.CodeNotEntitled},
		{LoginDecodeFailed, codec.StreamClosed, codec.CodeUsageError},
		{DictionaryMaxRequestsReached, codec.StreamClosedRecover, codec.CodeTooManyItems},
		{DictionaryUnknownName, codec.StreamClosed, codec.CodeNotFound},
		{ItemCountReached, codec.StreamClosedRecover, codec.CodeTooManyItems},
		{ItemUnknownName, codec.StreamClosed, codec.CodeNotFound},
		{ItemDomainNotSupported, codec.StreamClosed, codec.CodeUsageError},
		{ItemAlreadyOpen, codec.StreamClosed, codec.CodeAlreadyOpen},
	}
	for _, tc := range tests {
		t.Run(tc.reason.String(), func(t *testing.T) {
			st := tc.reason.State()
			require.Equal(t, tc.stream, st.Stream)
			require.Equal(t, codec.DataSuspect, st.Data)
			require.Equal(t, tc.code, st.Code)
			require.Equal(t, tc.reason.String(), st.Text)
			require.True(t, st.IsFinal())
		})
	}
}

func TestRejectEmitsStatus(t *testing.T) {
	testlog.Start(t)
	w := &captureWriter{}
	require.NoError(t, Reject(w, 7, codec.DomainDictionary, DictionaryMaxRequestsReached))

	msgs := w.take(t)
	require.Len(t, msgs, 1)
	status, ok := msgs[0].(*codec.StatusMsg)
	require.True(t, ok)
	require.Equal(t, int32(7), status.ID)
	require.Equal(t, codec.DomainDictionary, status.Domain())
	require.NotNil(t, status.State)
	require.Equal(t, codec.StreamClosedRecover, status.State.Stream)
	require.Equal(t, codec.DataSuspect, status.State.Data)
	require.Equal(t, codec.CodeTooManyItems, status.State.Code)
}

func TestCloseStreamIsFinal(t *testing.T) {
	testlog.Start(t)
	w := &captureWriter{}
	require.NoError(t, CloseStream(w, 9, codec.DomainMarketPrice, "gone"))
	status := w.take(t)[0].(*codec.StatusMsg)
	require.True(t, status.State.IsFinal())
	require.Equal(t, "gone", status.State.Text)
}
