package metrics_test

import (
	"context"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cloudx-io/confidentialbid/confidential"
	"github.com/cloudx-io/confidentialbid/core"
	"github.com/cloudx-io/confidentialbid/metrics"
)

func TestInstrumentCompute(t *testing.T) {
	ctx := context.Background()

	km, err := confidential.NewKeyManager()
	assert.NoError(t, err)
	engine := confidential.NewEngine(km)
	cc := metrics.InstrumentCompute(engine)

	before := testutil.ToFloat64(metrics.ComputeCallsTotal.WithLabelValues("encrypt", "success"))
	beforeErr := testutil.ToFloat64(metrics.ComputeCallsTotal.WithLabelValues("encrypt", "error"))

	h, err := cc.Encrypt(ctx, "program", 3)
	assert.NoError(t, err)
	_, err = cc.Encrypt(ctx, "", 3)
	check.Error(t, err)

	check.Equal(t, before+1, testutil.ToFloat64(metrics.ComputeCallsTotal.WithLabelValues("encrypt", "success")))
	check.Equal(t, beforeErr+1, testutil.ToFloat64(metrics.ComputeCallsTotal.WithLabelValues("encrypt", "error")))

	// Calls still reach the wrapped engine.
	gt, err := cc.CompareGT(ctx, "program", h, core.Handle{})
	assert.NoError(t, err)
	check.False(t, gt.IsZero())
	// The unsigned call is rejected before it is traced.
	check.Equal(t, []string{"encrypt", "compare_gt"}, engine.Ops())
}
