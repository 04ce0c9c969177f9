package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/web3guy0/hedgebot/internal/types"
)

type orderPayload struct {
	TokenID   string `json:"tokenID"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	OrderType string `json:"type"`
}

type orderResult struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
	ErrorMsg string `json:"errorMsg"`
	Message  string `json:"message"`
}

// SubmitOrder places a limit order on the CLOB
func (c *Client) SubmitOrder(ctx context.Context, order types.OrderRequest) (*types.OrderResponse, error) {
	if order.OrderType == "" {
		order.OrderType = types.OrderTypeGTC
	}

	payload, err := json.Marshal(orderPayload{
		TokenID:   order.TokenID,
		Price:     order.Price.String(),
		Size:      order.Size.Truncate(2).String(),
		Side:      order.Side,
		OrderType: order.OrderType,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode order: %v", ErrParse, err)
	}

	body, reqErr := c.do(ctx, http.MethodPost, c.clobURL, "/order", payload, true)

	var result orderResult
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil && reqErr == nil {
			return nil, fmt.Errorf("%w: order response: %v", ErrParse, err)
		}
	}

	resp := &types.OrderResponse{
		OrderID: result.OrderID,
		Status:  result.Status,
		Message: result.Message,
	}
	if resp.Message == "" {
		resp.Message = result.ErrorMsg
	}

	if reqErr != nil {
		if resp.Message != "" {
			return resp, fmt.Errorf("polymarket: submit order: %w (%s)", reqErr, resp.Message)
		}
		return resp, fmt.Errorf("polymarket: submit order: %w", reqErr)
	}
	return resp, nil
}
