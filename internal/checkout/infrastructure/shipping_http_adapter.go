package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"storefront/internal/checkout/port"
	orderdomain "storefront/internal/order/domain"
	"storefront/internal/pkg/httpclient"
)

// ShippingHTTPAdapter 是 port.ShippingProvider 的 HTTP 实现。
type ShippingHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewShippingHTTPAdapter(client *httpclient.Client, baseURL string) *ShippingHTTPAdapter {
	return &ShippingHTTPAdapter{client: client, baseURL: baseURL}
}

type createShipmentBody struct {
	OrderID   string `json:"orderId"`
	Recipient string `json:"recipient"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	Items     []struct {
		ProductID string `json:"productId"`
		VariantID string `json:"variantId,omitempty"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}

type createShipmentResponse struct {
	TrackingNumber string `json:"trackingNumber"`
	Carrier        string `json:"carrier"`
}

type trackResponse struct {
	TrackingNumber string    `json:"trackingNumber"`
	Status         string    `json:"status"`
	LastLocation   string    `json:"lastLocation"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (a *ShippingHTTPAdapter) CreateShipment(ctx context.Context, orderID string, recipient orderdomain.Address, items []orderdomain.Item) (port.Shipment, error) {
	body := createShipmentBody{
		OrderID:   orderID,
		Recipient: recipient.Recipient,
		Phone:     recipient.Phone,
		Address:   recipient.Line1 + " " + recipient.Line2 + ", " + recipient.City + " " + recipient.PostCode + ", " + recipient.Country,
	}
	for _, item := range items {
		body.Items = append(body.Items, struct {
			ProductID string `json:"productId"`
			VariantID string `json:"variantId,omitempty"`
			Quantity  int    `json:"quantity"`
		}{item.ProductID, item.VariantID, item.Quantity})
	}

	var resp createShipmentResponse
	if err := a.client.PostJSON(ctx, a.baseURL+"/shipments", body, &resp); err != nil {
		return port.Shipment{}, errors.Wrap(err, "create shipment failed")
	}
	return port.Shipment{TrackingNumber: resp.TrackingNumber, Carrier: resp.Carrier}, nil
}

func (a *ShippingHTTPAdapter) Track(ctx context.Context, trackingNumber string) (port.TrackingInfo, error) {
	var resp trackResponse
	err := a.client.PostJSON(ctx, a.baseURL+"/track", map[string]string{"trackingNumber": trackingNumber}, &resp)
	if err != nil {
		return port.TrackingInfo{}, errors.Wrap(err, "track shipment failed")
	}
	return port.TrackingInfo{
		TrackingNumber: resp.TrackingNumber,
		Status:         resp.Status,
		LastLocation:   resp.LastLocation,
		UpdatedAt:      resp.UpdatedAt,
	}, nil
}
