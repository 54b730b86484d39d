package engine

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/servicecatalog"
	sctypes "github.com/aws/aws-sdk-go-v2/service/servicecatalog/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidthor/scdctl/pkg/cloud"
	"github.com/davidthor/scdctl/pkg/errors"
)

// recordStub reports a fixed sequence of record statuses. Every other
// catalog operation panics.
type recordStub struct {
	cloud.ServiceCatalogAPI
	statuses []sctypes.RecordStatus
	polls    int
	err      error
}

func (s *recordStub) DescribeRecord(ctx context.Context, in *servicecatalog.DescribeRecordInput, _ ...func(*servicecatalog.Options)) (*servicecatalog.DescribeRecordOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	i := s.polls
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	s.polls++
	detail := &sctypes.RecordDetail{
		RecordId:             in.Id,
		Status:               s.statuses[i],
		ProvisionedProductId: aws.String("pp-1"),
	}
	if detail.Status == sctypes.RecordStatusFailed {
		detail.RecordErrors = []sctypes.RecordError{{Code: aws.String("ValidationError"), Description: aws.String("bad parameter")}}
	}
	return &servicecatalog.DescribeRecordOutput{RecordDetail: detail}, nil
}

func pollingEngine(timeout time.Duration) *Engine {
	return New(Options{PollInterval: time.Millisecond, PollTimeout: timeout})
}

func TestWaitRecord(t *testing.T) {
	tests := []struct {
		name     string
		statuses []sctypes.RecordStatus
		polls    int
		code     errors.ErrorCode
		contains string
	}{
		{
			name:     "succeeds immediately",
			statuses: []sctypes.RecordStatus{sctypes.RecordStatusSucceeded},
			polls:    1,
		},
		{
			name:     "succeeds after progress",
			statuses: []sctypes.RecordStatus{sctypes.RecordStatusCreated, sctypes.RecordStatusInProgress, sctypes.RecordStatusSucceeded},
			polls:    3,
		},
		{
			name:     "failed",
			statuses: []sctypes.RecordStatus{sctypes.RecordStatusInProgress, sctypes.RecordStatusFailed},
			polls:    2,
			code:     errors.ErrCodeCapability,
			contains: "ValidationError: bad parameter",
		},
		{
			name:     "in progress in error",
			statuses: []sctypes.RecordStatus{sctypes.RecordStatusInProgressInError},
			polls:    1,
			code:     errors.ErrCodeCapability,
			contains: "no error details reported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &recordStub{statuses: tt.statuses}
			detail, err := pollingEngine(time.Second).waitRecord(context.Background(), stub, "rec-1")
			assert.Equal(t, tt.polls, stub.polls)
			if tt.code == "" {
				require.NoError(t, err)
				assert.Equal(t, "pp-1", aws.ToString(detail.ProvisionedProductId))
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.code))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestWaitRecord_Timeout(t *testing.T) {
	stub := &recordStub{statuses: []sctypes.RecordStatus{sctypes.RecordStatusInProgress}}

	_, err := pollingEngine(5*time.Millisecond).waitRecord(context.Background(), stub, "rec-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeTimeout))
	assert.Contains(t, err.Error(), "rec-1")
	assert.GreaterOrEqual(t, stub.polls, 5)
}

func TestWaitRecord_DescribeFailure(t *testing.T) {
	stub := &recordStub{err: assert.AnError}

	_, err := pollingEngine(time.Second).waitRecord(context.Background(), stub, "rec-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCapability))
}

func TestWaitRecord_ContextCancelled(t *testing.T) {
	stub := &recordStub{statuses: []sctypes.RecordStatus{sctypes.RecordStatusInProgress}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(Options{PollInterval: time.Hour, PollTimeout: 2 * time.Hour})
	_, err := e.waitRecord(ctx, stub, "rec-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stub.polls)
}
