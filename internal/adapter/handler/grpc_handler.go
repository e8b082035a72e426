package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront/internal/adapter/handler/rpc"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

type GRPCHandler struct {
	cart     *service.CartService
	checkout *service.CheckoutService
	query    *service.QueryService
}

func NewGRPCHandler(cart *service.CartService, checkout *service.CheckoutService, query *service.QueryService) *GRPCHandler {
	return &GRPCHandler{cart: cart, checkout: checkout, query: query}
}

var _ rpc.StorefrontServer = (*GRPCHandler)(nil)

func (h *GRPCHandler) AddToCart(ctx context.Context, req *rpc.AddToCartRequest) (*rpc.Cart, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	cart, err := h.cart.AddOrMerge(ctx, userID, req.ProductID, int(req.Quantity))
	if err != nil {
		return nil, grpcError(err)
	}
	return toRPCCart(cart), nil
}

func (h *GRPCHandler) GetCart(ctx context.Context, _ *rpc.GetCartRequest) (*rpc.Cart, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	cart, err := h.query.UserCart(ctx, userID)
	if err != nil {
		return nil, grpcError(err)
	}
	return toRPCCart(cart), nil
}

func (h *GRPCHandler) Checkout(ctx context.Context, req *rpc.CheckoutRequest) (*rpc.CheckoutResponse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	result, err := h.checkout.Checkout(ctx, userID, req.RequestID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &rpc.CheckoutResponse{Order: toRPCOrder(result.Order), Replayed: result.Replayed}, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *rpc.GetOrderRequest) (*rpc.Order, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	order, err := h.query.Order(ctx, req.OrderID)
	if err != nil {
		return nil, grpcError(err)
	}
	if order.UserID != userID {
		return nil, status.Error(codes.NotFound, "order not found")
	}
	return toRPCOrder(*order), nil
}

func callerID(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	if ids := md.Get(rpc.UserIDKey); len(ids) > 0 && ids[0] != "" {
		return ids[0], nil
	}
	return "", status.Error(codes.Unauthenticated, "missing "+rpc.UserIDKey)
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		available, _ := domain.AvailableStock(err)
		return status.Error(codes.FailedPrecondition, fmt.Sprintf("insufficient stock: %d available", available))
	case errors.Is(err, domain.ErrEmptyCart):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrTransient):
		return status.Error(codes.Unavailable, "temporarily unavailable, retry")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func toRPCCart(cart domain.Cart) *rpc.Cart {
	out := &rpc.Cart{
		UserID: cart.UserID,
		Items:  make([]rpc.CartItem, 0, len(cart.Items)),
		Total:  cart.Total().String(),
	}
	for _, item := range cart.Items {
		out.Items = append(out.Items, rpc.CartItem{
			LineID:      item.ID,
			ProductID:   item.ProductID,
			ProductName: item.Product.Name,
			UnitPrice:   item.Product.Price.String(),
			Quantity:    int32(item.Quantity),
			Available:   int32(item.Product.Quantity),
		})
	}
	return out
}

func toRPCOrder(order domain.Order) *rpc.Order {
	out := &rpc.Order{
		ID:          order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount.String(),
		CreatedAt:   order.CreatedAt,
	}
	for _, l := range order.Lines {
		out.Lines = append(out.Lines, rpc.OrderLine{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			UnitPrice:   l.UnitPrice.String(),
			Quantity:    int32(l.Quantity),
		})
	}
	return out
}

// UnaryLoggingInterceptor logs every unary call with its status code.
func UnaryLoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		logger.Info("rpc completed",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)))

		return resp, err
	}
}
