package gateway

import (
	"net/http"
	"strconv"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 16

type createOrderRequest struct {
	DeliveryAddress string `json:"delivery_address" binding:"required"`
}

type orderStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

type createPaymentRequest struct {
	OrderID       string               `json:"order_id" binding:"required"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
}

type paymentIntentRequest struct {
	OrderID       string               `json:"orderId" binding:"required"`
	Amount        float64              `json:"amount"`
	Currency      string               `json:"currency"`
	Description   string               `json:"description"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod"`
}

func (g *Gateway) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, badRequest(err))
		return
	}
	order, err := g.svc.Orders.CreateOrder(c.Request.Context(), identity(c).Email, req.DeliveryAddress)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (g *Gateway) listOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))
	res, err := g.svc.Orders.ListOrders(c.Request.Context(), identity(c).Email, service.OrderQuery{
		Page:     page,
		PageSize: size,
		Status:   models.OrderStatus(c.Query("status")),
	})
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (g *Gateway) getOrder(c *gin.Context) {
	order, err := g.svc.Orders.GetOrder(c.Request.Context(), identity(c).Email, c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (g *Gateway) updateOrderStatus(c *gin.Context) {
	var req orderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, badRequest(err))
		return
	}
	order, err := g.svc.Orders.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req.Status, identity(c).Email)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (g *Gateway) createPayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, badRequest(err))
		return
	}
	res, err := g.svc.Payments.CreatePayment(c.Request.Context(), identity(c).Email, req.OrderID, req.PaymentMethod)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (g *Gateway) createPaymentIntent(c *gin.Context) {
	var req paymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, badRequest(err))
		return
	}
	res, err := g.svc.Payments.CreatePaymentIntent(c.Request.Context(), identity(c).Email, service.PaymentIntentInput{
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		Method:      req.PaymentMethod,
	})
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (g *Gateway) getPayment(c *gin.Context) {
	payment, err := g.svc.Payments.GetPayment(c.Request.Context(), identity(c).Email, c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (g *Gateway) paymentConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"publishableKey": g.svc.Payments.PublishableKey()})
}

func (g *Gateway) stripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := c.GetRawData()
	if err != nil {
		g.fail(c, apperr.Wrap(apperr.KindInvalidInput, err, "unreadable webhook body"))
		return
	}
	res, err := g.svc.Webhooks.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// stripeCallback acknowledges the browser redirect after a payment attempt.
// The payment status itself only changes through the webhook.
func (g *Gateway) stripeCallback(c *gin.Context) {
	status := c.DefaultQuery("redirect_status", "unknown")
	intent := c.Query("payment_intent")
	g.logger.Info("Payment callback received",
		zap.String("intent_id", intent),
		zap.String("redirect_status", status))
	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"payment_intent": intent,
		"message":        "Payment callback received",
	})
}

func (g *Gateway) auditHistory(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit < 1 {
		g.fail(c, apperr.New(apperr.KindInvalidInput, "limit must be a positive number"))
		return
	}
	entries, err := g.svc.Audit.History(c.Request.Context(), c.Param("entity_id"), limit)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
