package handler

import (
	"context"

	"github.com/Astemirdum/lending-service/internal/model"
	"github.com/Astemirdum/lending-service/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type LendingService interface {
	CreateBorrowRequest(ctx context.Context, in model.CreateBorrowRequestInput) (model.BorrowRequest, error)
	ApproveBorrowRequest(ctx context.Context, in model.ResolveRequestInput) (model.BorrowRequest, error)
	RejectBorrowRequest(ctx context.Context, in model.ResolveRequestInput) (model.BorrowRequest, error)

	CreateReturnRequest(ctx context.Context, in model.CreateReturnRequestInput) (model.ReturnRequest, error)
	ApproveReturnRequest(ctx context.Context, in model.ResolveRequestInput) (model.ReturnRequest, error)
	RejectReturnRequest(ctx context.Context, in model.ResolveRequestInput) (model.ReturnRequest, error)

	RunPenaltySweep(ctx context.Context) (model.SweepResult, error)
	WaiveFine(ctx context.Context, fineID, adminID int64, reason string) error

	InitiatePayment(ctx context.Context, in model.InitiatePaymentInput) (model.PaymentTransaction, error)
	CompletePayment(ctx context.Context, paymentRef, gatewayTxID string) (model.PaymentTransaction, error)
	HandleFailedPayment(ctx context.Context, paymentRef, reason string) error
}

var _ LendingService = (*service.Service)(nil)
