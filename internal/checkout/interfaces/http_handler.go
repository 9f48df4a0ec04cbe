package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"storefront/internal/checkout"
	checkoutdomain "storefront/internal/checkout/domain"
	"storefront/internal/inventory"
	invdomain "storefront/internal/inventory/domain"
	"storefront/internal/order"
	orderdomain "storefront/internal/order/domain"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/push"
	"storefront/internal/promotion"
)

const serviceName = "storefront"

// CheckoutHandler 封装了 storefront 的 HTTP 处理器。
type CheckoutHandler struct {
	service   *checkout.Service
	inventory *inventory.Store
	orders    *order.Store
	hub       *push.Hub
	promos    *promotion.Engine // 可为 nil：未配置规则时报价接口返回零优惠
}

// NewCheckoutHandler 创建一个新的 HTTP 处理器实例。
func NewCheckoutHandler(service *checkout.Service, inv *inventory.Store, orders *order.Store, hub *push.Hub, promos *promotion.Engine) *CheckoutHandler {
	return &CheckoutHandler{service: service, inventory: inv, orders: orders, hub: hub, promos: promos}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *CheckoutHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	if h.hub != nil {
		mux.HandleFunc("/ws", h.hub.ServeWs)
	}

	mux.HandleFunc("/api/checkout", h.placeOrderHandler)
	mux.HandleFunc("/api/orders/get", h.getOrderHandler)
	mux.HandleFunc("/api/orders/list", h.listOrdersHandler)
	mux.HandleFunc("/api/orders/fulfill", h.fulfillHandler)
	mux.HandleFunc("/api/orders/ship", h.shipHandler)
	mux.HandleFunc("/api/orders/deliver", h.deliverHandler)
	mux.HandleFunc("/api/orders/cancel", h.cancelHandler)
	mux.HandleFunc("/api/orders/track", h.trackHandler)
	mux.HandleFunc("/api/stock", h.stockHandler)
	mux.HandleFunc("/api/stock/set", h.setStockHandler)
	mux.HandleFunc("/api/stock/add", h.addStockHandler)
	mux.HandleFunc("/api/promotions/quote", h.promoQuoteHandler)
}

type checkoutRequestBody struct {
	RequestID  string `json:"requestId"`
	CustomerID string `json:"customerId"`
	Lines      []struct {
		ProductID string `json:"productId"`
		VariantID string `json:"variantId"`
		Quantity  int    `json:"quantity"`
		UnitPrice int64  `json:"unitPrice"`
	} `json:"lines"`
	Pricing struct {
		Subtotal     int64 `json:"subtotal"`
		Discount     int64 `json:"discount"`
		ShippingCost int64 `json:"shippingCost"`
		Total        int64 `json:"total"`
	} `json:"pricing"`
	ShippingAddress addressBody `json:"shippingAddress"`
	ShippingMethod  string      `json:"shippingMethod"`
	PaymentMethod   string      `json:"paymentMethod"`
}

type addressBody struct {
	Recipient string `json:"recipient"`
	Phone     string `json:"phone"`
	Line1     string `json:"line1"`
	Line2     string `json:"line2"`
	City      string `json:"city"`
	PostCode  string `json:"postCode"`
	Country   string `json:"country"`
}

type orderResponse struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"orderNumber"`
	CustomerID    string `json:"customerId"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	Items         []struct {
		ProductID string `json:"productId"`
		VariantID string `json:"variantId,omitempty"`
		Quantity  int    `json:"quantity"`
		UnitPrice int64  `json:"unitPrice"`
	} `json:"items"`
	Subtotal       int64      `json:"subtotal"`
	Discount       int64      `json:"discount"`
	ShippingCost   int64      `json:"shippingCost"`
	Total          int64      `json:"total"`
	TrackingNumber string     `json:"trackingNumber,omitempty"`
	Carrier        string     `json:"carrier,omitempty"`
	CancelReason   string     `json:"cancelReason,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	PaidAt         *time.Time `json:"paidAt,omitempty"`
	ShippedAt      *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
}

func toOrderResponse(o *orderdomain.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		CustomerID:     o.CustomerID,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		Subtotal:       o.Pricing.Subtotal,
		Discount:       o.Pricing.Discount,
		ShippingCost:   o.Pricing.ShippingCost,
		Total:          o.Pricing.Total,
		TrackingNumber: o.TrackingNumber,
		Carrier:        o.ShippingCompany,
		CancelReason:   o.CancelReason,
		CreatedAt:      o.CreatedAt,
		PaidAt:         o.PaidAt,
		ShippedAt:      o.ShippedAt,
		DeliveredAt:    o.DeliveredAt,
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, struct {
			ProductID string `json:"productId"`
			VariantID string `json:"variantId,omitempty"`
			Quantity  int    `json:"quantity"`
			UnitPrice int64  `json:"unitPrice"`
		}{item.ProductID, item.VariantID, item.Quantity, item.UnitPrice})
	}
	return resp
}

func (h *CheckoutHandler) placeOrderHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "api.PlaceOrder")
	defer span.End()

	var body checkoutRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	span.SetAttributes(
		attribute.String("checkout.customer_id", body.CustomerID),
		attribute.Int("checkout.line_count", len(body.Lines)),
	)

	req := &checkoutdomain.PlaceOrderRequest{
		RequestID: body.RequestID,
		Cart: checkoutdomain.CartSnapshot{
			CustomerID: body.CustomerID,
			Pricing: orderdomain.Pricing{
				Subtotal:     body.Pricing.Subtotal,
				Discount:     body.Pricing.Discount,
				ShippingCost: body.Pricing.ShippingCost,
				Total:        body.Pricing.Total,
			},
		},
		ShippingAddress: orderdomain.Address{
			Recipient: body.ShippingAddress.Recipient,
			Phone:     body.ShippingAddress.Phone,
			Line1:     body.ShippingAddress.Line1,
			Line2:     body.ShippingAddress.Line2,
			City:      body.ShippingAddress.City,
			PostCode:  body.ShippingAddress.PostCode,
			Country:   body.ShippingAddress.Country,
		},
		ShippingMethod: body.ShippingMethod,
		PaymentMethod:  body.PaymentMethod,
	}
	for _, l := range body.Lines {
		req.Cart.Lines = append(req.Cart.Lines, checkoutdomain.CartLine{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}

	o, err := h.service.PlaceOrder(ctx, req)
	if err != nil {
		writeCheckoutError(w, o, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// writeCheckoutError 把 checkout 的领域错误映射为 HTTP 状态码。
// 失败时如果订单已经创建（带补偿的 Cancelled 终态），一并返回给调用方。
func writeCheckoutError(w http.ResponseWriter, o *orderdomain.Order, err error) {
	type errBody struct {
		Error string         `json:"error"`
		Items []string       `json:"unavailableItems,omitempty"`
		Order *orderResponse `json:"order,omitempty"`
	}
	body := errBody{Error: err.Error()}
	if o != nil {
		resp := toOrderResponse(o)
		body.Order = &resp
	}

	status := http.StatusInternalServerError
	var insufficient *checkoutdomain.InsufficientStockError
	var invalid *checkoutdomain.InvalidOrderError
	var payment *checkoutdomain.PaymentFailedError
	switch {
	case errors.As(err, &insufficient):
		status = http.StatusConflict
		for _, item := range insufficient.Items {
			body.Items = append(body.Items, item.Key.String())
		}
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
	case errors.As(err, &payment):
		status = http.StatusPaymentRequired
	case errors.Is(err, checkoutdomain.ErrDuplicateRequest):
		status = http.StatusConflict
	}
	writeJSON(w, status, body)
}

func (h *CheckoutHandler) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	var (
		o   *orderdomain.Order
		err error
	)
	if number := r.URL.Query().Get("number"); number != "" {
		o, err = h.orders.GetByOrderNumber(number)
	} else {
		o, err = h.orders.Get(r.URL.Query().Get("id"))
	}
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *CheckoutHandler) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customerId")
	if customerID == "" {
		http.Error(w, "customerId is required", http.StatusBadRequest)
		return
	}
	list := h.orders.ListByCustomer(customerID)
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CheckoutHandler) fulfillHandler(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, "api.StartFulfillment", h.service.StartFulfillment)
}

func (h *CheckoutHandler) shipHandler(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, "api.MarkShipped", h.service.MarkShipped)
}

func (h *CheckoutHandler) deliverHandler(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, "api.MarkDelivered", h.service.MarkDelivered)
}

func (h *CheckoutHandler) cancelHandler(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "cancelled by customer"
	}
	h.lifecycleOp(w, r, "api.CancelOrder", func(ctx context.Context, id string) (*orderdomain.Order, error) {
		return h.service.Cancel(ctx, id, reason)
	})
}

func (h *CheckoutHandler) trackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	info, err := h.service.Track(ctx, id)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type stockResponse struct {
	ProductID string    `json:"productId"`
	VariantID string    `json:"variantId,omitempty"`
	Total     int       `json:"total"`
	Reserved  int       `json:"reserved"`
	Free      int       `json:"free"`
	InStock   bool      `json:"inStock"`
	LowStock  bool      `json:"lowStock"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toStockResponse(rec invdomain.StockRecord) stockResponse {
	return stockResponse{
		ProductID: rec.Key.ProductID,
		VariantID: rec.Key.VariantID,
		Total:     rec.TotalQuantity,
		Reserved:  rec.ReservedQuantity,
		Free:      rec.Free(),
		InStock:   rec.Active && rec.Free() > 0,
		LowStock:  rec.LowStock(),
		UpdatedAt: rec.LastUpdated,
	}
}

func (h *CheckoutHandler) stockHandler(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("productId")
	if productID == "" {
		records := h.inventory.Snapshots()
		out := make([]stockResponse, 0, len(records))
		for _, rec := range records {
			out = append(out, toStockResponse(rec))
		}
		writeJSON(w, http.StatusOK, out)
		return
	}
	key := invdomain.StockKey{ProductID: productID, VariantID: r.URL.Query().Get("variantId")}
	rec, err := h.inventory.Snapshot(key)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockResponse(rec))
}

type stockWriteBody struct {
	ProductID         string `json:"productId"`
	VariantID         string `json:"variantId"`
	Quantity          int    `json:"quantity"`
	LowStockThreshold int    `json:"lowStockThreshold"`
}

// setStockHandler 运营路径：创建或重置一条库存记录。
func (h *CheckoutHandler) setStockHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body stockWriteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.ProductID == "" || body.Quantity < 0 {
		http.Error(w, "productId is required and quantity must be >= 0", http.StatusBadRequest)
		return
	}
	key := invdomain.StockKey{ProductID: body.ProductID, VariantID: body.VariantID}
	if err := h.inventory.SetStock(key, body.Quantity, body.LowStockThreshold); err != nil {
		writeOpError(w, err)
		return
	}

	rec, _ := h.inventory.Snapshot(key)
	writeJSON(w, http.StatusOK, toStockResponse(rec))
}

// addStockHandler 进货路径：向已有记录追加数量。
func (h *CheckoutHandler) addStockHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body stockWriteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.Quantity <= 0 {
		http.Error(w, "quantity must be > 0", http.StatusBadRequest)
		return
	}
	key := invdomain.StockKey{ProductID: body.ProductID, VariantID: body.VariantID}
	if err := h.inventory.AddStock(key, body.Quantity); err != nil {
		writeOpError(w, err)
		return
	}
	rec, _ := h.inventory.Snapshot(key)
	writeJSON(w, http.StatusOK, toStockResponse(rec))
}

func (h *CheckoutHandler) promoQuoteHandler(w http.ResponseWriter, r *http.Request) {
	if h.promos == nil {
		writeJSON(w, http.StatusOK, promotion.Quote{})
		return
	}
	subtotal, _ := strconv.ParseInt(r.URL.Query().Get("subtotal"), 10, 64)
	itemCount, _ := strconv.ParseInt(r.URL.Query().Get("itemCount"), 10, 64)
	quote, err := h.promos.BestDiscount(promotion.Fact{
		SubtotalCents: subtotal,
		ItemCount:     itemCount,
		CustomerTier:  r.URL.Query().Get("tier"),
	})
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("promotion quote failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// lifecycleOp 是 fulfill/ship/deliver/cancel 共同的壳：取 id、开 span、
// 调用对应的状态流转并统一做错误映射。
func (h *CheckoutHandler) lifecycleOp(w http.ResponseWriter, r *http.Request, spanName string, op func(context.Context, string) (*orderdomain.Order, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, spanName)
	defer span.End()

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("order.id", id))

	o, err := op(ctx, id)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// writeOpError 订单生命周期操作的错误映射。
func writeOpError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, invdomain.ErrUnknownStockKey):
		status = http.StatusNotFound
	case errors.Is(err, orderdomain.ErrInvalidTransition),
		errors.Is(err, invdomain.ErrResetBelowReserved),
		errors.Is(err, checkoutdomain.ErrCheckoutInProgress):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
