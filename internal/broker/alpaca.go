package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"momentum/internal/md"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AlpacaOpts struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	QuoteAsset string
}

// Alpaca implements Exchange for Alpaca crypto pairs such as "XRP/USD".
type Alpaca struct {
	trading    *alpaca.Client
	data       *marketdata.Client
	quoteAsset string
	log        *zap.Logger
}

func NewAlpaca(opts AlpacaOpts, log *zap.Logger) *Alpaca {
	if log == nil {
		log = zap.NewNop()
	}
	quote := opts.QuoteAsset
	if quote == "" {
		quote = "USD"
	}
	return &Alpaca{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
		}),
		quoteAsset: strings.ToUpper(quote),
		log:        log,
	}
}

func (a *Alpaca) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	now := time.Now().UTC()
	bars, err := call(ctx, "latest bar", func() ([]marketdata.CryptoBar, error) {
		return a.data.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
			TimeFrame: marketdata.NewTimeFrame(1, marketdata.Min),
			Start:     now.Add(-15 * time.Minute),
			End:       now,
		})
	})
	if err != nil {
		a.log.Error("fetch price failed", zap.String("symbol", symbol), zap.Error(err))
		return decimal.Zero, err
	}
	if len(bars) == 0 {
		return decimal.Zero, errors.Wrapf(ErrCollaboratorUnavailable, "no recent bars for %s", symbol)
	}
	return decimal.NewFromFloat(bars[len(bars)-1].Close), nil
}

func (a *Alpaca) Candles(ctx context.Context, symbol string, interval time.Duration, limit int) ([]md.PricePoint, error) {
	timeFrame, err := parseTimeFrame(interval)
	if err != nil {
		return nil, err
	}
	end := time.Now().UTC()
	start := end.Add(-interval * time.Duration(limit+1))
	bars, err := call(ctx, "candles", func() ([]marketdata.CryptoBar, error) {
		return a.data.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
			TimeFrame:  timeFrame,
			Start:      start,
			End:        end,
			TotalLimit: limit,
		})
	})
	if err != nil {
		a.log.Error("fetch candles failed", zap.String("symbol", symbol), zap.Error(err))
		return nil, err
	}

	points := make([]md.PricePoint, 0, len(bars))
	for _, bar := range bars {
		points = append(points, md.PricePoint{
			Time:   bar.Timestamp.UTC(),
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
		})
	}
	a.log.Info("candles fetched", zap.String("symbol", symbol), zap.Int("count", len(points)))
	return points, nil
}

func (a *Alpaca) Balance(ctx context.Context, asset string) (Balance, error) {
	asset = strings.ToUpper(asset)
	if asset == a.quoteAsset {
		acct, err := call(ctx, "account", a.trading.GetAccount)
		if err != nil {
			a.log.Error("fetch account failed", zap.Error(err))
			return Balance{}, err
		}
		return Balance{Free: acct.Cash, Locked: decimal.Zero}, nil
	}

	positionSymbol := asset + a.quoteAsset
	qty, err := call(ctx, "position", func() (decimal.Decimal, error) {
		pos, err := a.trading.GetPosition(positionSymbol)
		if err != nil {
			var apiErr *alpaca.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
				return decimal.Zero, nil
			}
			return decimal.Zero, err
		}
		return pos.Qty, nil
	})
	if err != nil {
		a.log.Error("fetch position failed", zap.String("asset", asset), zap.Error(err))
		return Balance{}, err
	}

	pairSymbol := asset + "/" + a.quoteAsset
	orders, err := call(ctx, "open orders", func() ([]alpaca.Order, error) {
		return a.trading.GetOrders(alpaca.GetOrdersRequest{
			Status:  "open",
			Symbols: []string{pairSymbol},
		})
	})
	if err != nil {
		a.log.Error("fetch open orders failed", zap.String("asset", asset), zap.Error(err))
		return Balance{}, err
	}

	locked := decimal.Zero
	for _, order := range orders {
		if order.Side != alpaca.Sell || order.Qty == nil {
			continue
		}
		locked = locked.Add(order.Qty.Sub(order.FilledQty))
	}
	free := qty.Sub(locked)
	if free.IsNegative() {
		free = decimal.Zero
	}
	a.log.Info("balance fetched", zap.String("asset", asset), zap.String("free", free.String()), zap.String("locked", locked.String()))
	return Balance{Free: free, Locked: locked}, nil
}

func (a *Alpaca) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	side, err := parseSide(req.Side)
	if err != nil {
		return OrderAck{}, err
	}
	orderType, err := parseOrderType(req.Type)
	if err != nil {
		return OrderAck{}, err
	}
	tif, err := parseTimeInForce(req.TimeInForce)
	if err != nil {
		return OrderAck{}, err
	}

	qty := req.Quantity
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          side,
		Type:          orderType,
		TimeInForce:   tif,
		ClientOrderID: req.ClientOrderID,
	}
	if orderType == alpaca.Limit {
		if req.Price == nil {
			return OrderAck{}, fmt.Errorf("limit order requires a price")
		}
		limitPrice := *req.Price
		orderReq.LimitPrice = &limitPrice
	}

	order, err := call(ctx, "place order", func() (*alpaca.Order, error) {
		return a.trading.PlaceOrder(orderReq)
	})
	if err != nil {
		a.log.Error("place order failed",
			zap.String("side", string(req.Side)),
			zap.String("symbol", req.Symbol),
			zap.String("qty", req.Quantity.String()),
			zap.Error(err),
		)
		return OrderAck{}, err
	}

	a.log.Info("place order success",
		zap.String("order_id", order.ID),
		zap.String("side", string(req.Side)),
		zap.String("symbol", req.Symbol),
		zap.String("qty", req.Quantity.String()),
		zap.String("status", string(order.Status)),
	)
	return OrderAck{OrderID: order.ID, Status: string(order.Status)}, nil
}

func (a *Alpaca) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := call(ctx, "cancel order", func() (struct{}, error) {
		return struct{}{}, a.trading.CancelOrder(orderID)
	})
	if err != nil {
		a.log.Error("cancel order failed", zap.String("symbol", symbol), zap.String("order_id", orderID), zap.Error(err))
		return err
	}
	a.log.Info("order cancelled", zap.String("symbol", symbol), zap.String("order_id", orderID))
	return nil
}

// call runs a blocking SDK request and gives up when ctx expires. Failures
// are wrapped around ErrCollaboratorUnavailable.
func call[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn()
		done <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, errors.Wrapf(ErrCollaboratorUnavailable, "%s: %v", op, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return r.value, errors.Wrapf(ErrCollaboratorUnavailable, "%s: %v", op, r.err)
		}
		return r.value, nil
	}
}

func parseTimeFrame(interval time.Duration) (marketdata.TimeFrame, error) {
	switch {
	case interval <= 0:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported interval: %s", interval)
	case interval%(24*time.Hour) == 0:
		return marketdata.NewTimeFrame(int(interval/(24*time.Hour)), marketdata.Day), nil
	case interval%time.Hour == 0:
		return marketdata.NewTimeFrame(int(interval/time.Hour), marketdata.Hour), nil
	case interval%time.Minute == 0:
		return marketdata.NewTimeFrame(int(interval/time.Minute), marketdata.Min), nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported interval: %s", interval)
	}
}

func parseSide(value Side) (alpaca.Side, error) {
	switch value {
	case SideBuy:
		return alpaca.Buy, nil
	case SideSell:
		return alpaca.Sell, nil
	default:
		return "", fmt.Errorf("unsupported side: %s", value)
	}
}

func parseOrderType(value OrderType) (alpaca.OrderType, error) {
	switch value {
	case OrderMarket, "":
		return alpaca.Market, nil
	case OrderLimit:
		return alpaca.Limit, nil
	default:
		return "", fmt.Errorf("unsupported order type: %s", value)
	}
}

func parseTimeInForce(value TimeInForce) (alpaca.TimeInForce, error) {
	switch value {
	case GTC, "":
		return alpaca.GTC, nil
	case IOC:
		return alpaca.IOC, nil
	default:
		return "", fmt.Errorf("unsupported time in force: %s", value)
	}
}
