package lookup

import (
	"context"
	"errors"
	"math"

	"github.com/bluewater-supply/partsync/pkg/dealerdata"
)

type dealerClient struct {
	portal dealerdata.Client
}

// NewDealerClient wraps the dealer portal client in the scheduler's
// lookup contract.
func NewDealerClient(portal dealerdata.Client) Client {
	return &dealerClient{portal: portal}
}

func (d *dealerClient) Lookup(ctx context.Context, partNumber string) (Result, error) {
	res, err := d.portal.LookupPrice(ctx, partNumber)

	switch {
	case err == nil && res.Found:
		return Result{
			PartNumber: partNumber,
			Code:       CodeFound,
			UnitPrice:  math.Round(res.NetUnitPrice*100) / 100,
		}, nil
	case err == nil:
		return Result{
			PartNumber: partNumber,
			Code:       CodeNotFound,
			Detail:     "part not listed on dealer portal",
		}, nil
	case ctx.Err() != nil:
		return Result{}, ctx.Err()
	case errors.Is(err, dealerdata.ErrAuth):
		return Result{}, err
	case errors.Is(err, dealerdata.ErrThrottled):
		return Result{
			PartNumber: partNumber,
			Code:       CodeRateLimited,
			Detail:     err.Error(),
		}, nil
	case errors.Is(err, dealerdata.ErrBadPrice):
		return Result{
			PartNumber: partNumber,
			Code:       CodeInvalid,
			Detail:     err.Error(),
		}, nil
	default:
		return Result{
			PartNumber: partNumber,
			Code:       CodeNetwork,
			Detail:     err.Error(),
		}, nil
	}
}
