package lookup

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluewater-supply/partsync/pkg/dealerdata"
)

type stubPortal struct {
	res dealerdata.PriceResult
	err error
}

func (s *stubPortal) Login(ctx context.Context) error { return nil }

func (s *stubPortal) LookupPrice(ctx context.Context, partNumber string) (dealerdata.PriceResult, error) {
	return s.res, s.err
}

func TestDealerClient_Lookup(t *testing.T) {
	tests := []struct {
		name       string
		portal     stubPortal
		wantCode   Code
		wantPrice  float64
		wantDetail bool
	}{
		{
			name:      "found rounds to cents",
			portal:    stubPortal{res: dealerdata.PriceResult{PartNumber: "6000-125", NetUnitPrice: 18.4999999, Found: true}},
			wantCode:  CodeFound,
			wantPrice: 18.50,
		},
		{
			name:       "not listed",
			portal:     stubPortal{res: dealerdata.PriceResult{PartNumber: "6000-999", Found: false}},
			wantCode:   CodeNotFound,
			wantDetail: true,
		},
		{
			name:       "throttled",
			portal:     stubPortal{err: eris.Wrap(dealerdata.ErrThrottled, "lookup 6000-125")},
			wantCode:   CodeRateLimited,
			wantDetail: true,
		},
		{
			name:       "bad price cell",
			portal:     stubPortal{err: eris.Wrap(dealerdata.ErrBadPrice, `part 6000-125: "N/A"`)},
			wantCode:   CodeInvalid,
			wantDetail: true,
		},
		{
			name:       "transport failure",
			portal:     stubPortal{err: eris.New("dealerdata: lookup 6000-125: connection reset by peer")},
			wantCode:   CodeNetwork,
			wantDetail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewDealerClient(&tt.portal)
			res, err := c.Lookup(context.Background(), "6000-125")
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, res.Code)
			assert.Equal(t, "6000-125", res.PartNumber)
			if tt.wantCode == CodeFound {
				assert.InDelta(t, tt.wantPrice, res.UnitPrice, 0.0001)
			}
			if tt.wantDetail {
				assert.NotEmpty(t, res.Detail)
			}
		})
	}
}

func TestDealerClient_AuthIsFatal(t *testing.T) {
	c := NewDealerClient(&stubPortal{err: eris.Wrap(dealerdata.ErrAuth, "session rejected")})

	_, err := c.Lookup(context.Background(), "6000-125")
	require.ErrorIs(t, err, dealerdata.ErrAuth)
}

func TestDealerClient_CancelledContextIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewDealerClient(&stubPortal{err: eris.New("request aborted")})

	_, err := c.Lookup(ctx, "6000-125")
	require.ErrorIs(t, err, context.Canceled)
}

func TestResult_Retryable(t *testing.T) {
	t.Parallel()
	assert.True(t, Result{Code: CodeNetwork}.Retryable())
	assert.True(t, Result{Code: CodeRateLimited}.Retryable())
	assert.False(t, Result{Code: CodeFound}.Retryable())
	assert.False(t, Result{Code: CodeNotFound}.Retryable())
	assert.False(t, Result{Code: CodeInvalid}.Retryable())
}
