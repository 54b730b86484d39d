package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/servicecatalog"
	sctypes "github.com/aws/aws-sdk-go-v2/service/servicecatalog/types"

	"github.com/davidthor/scdctl/pkg/cloud"
	"github.com/davidthor/scdctl/pkg/errors"
)

// waitRecord polls an asynchronous operation record until it succeeds,
// fails, or the poll ceiling is exceeded. The returned detail is the final
// successful one.
func (e *Engine) waitRecord(ctx context.Context, sc cloud.ServiceCatalogAPI, recordID string) (*sctypes.RecordDetail, error) {
	var waited time.Duration
	for {
		out, err := sc.DescribeRecord(ctx, &servicecatalog.DescribeRecordInput{Id: aws.String(recordID)})
		if err != nil {
			return nil, errors.CapabilityError("describe", "record "+recordID, err)
		}
		detail := out.RecordDetail
		if detail == nil {
			return nil, errors.CapabilityError("describe", "record "+recordID, fmt.Errorf("empty record detail"))
		}

		e.log.Debug().Str("record", recordID).Str("status", string(detail.Status)).Dur("waited", waited).Msg("polled record")

		switch detail.Status {
		case sctypes.RecordStatusSucceeded:
			return detail, nil
		case sctypes.RecordStatusFailed, sctypes.RecordStatusInProgressInError:
			return nil, errors.CapabilityError("provisioning", "record "+recordID,
				fmt.Errorf("%s: %s", detail.Status, recordErrors(detail.RecordErrors))).
				WithDetail("record_id", recordID).
				WithDetail("status", string(detail.Status))
		}

		if waited >= e.pollTimeout {
			return nil, errors.LifecycleTimeout(recordID, waited)
		}

		timer := time.NewTimer(e.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		waited += e.pollInterval
	}
}

func recordErrors(errs []sctypes.RecordError) string {
	if len(errs) == 0 {
		return "no error details reported"
	}
	parts := make([]string, 0, len(errs))
	for _, re := range errs {
		parts = append(parts, fmt.Sprintf("%s: %s", aws.ToString(re.Code), aws.ToString(re.Description)))
	}
	return strings.Join(parts, "; ")
}
