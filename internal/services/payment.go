package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseloop/courseloop-backend/internal/apierr"
	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/repos"
	"github.com/courseloop/courseloop-backend/internal/types"
)

type CheckoutResult struct {
	OrderID     string `json:"order_id"`
	SnapToken   string `json:"snap_token"`
	RedirectURL string `json:"redirect_url"`
}

// PaymentNotification is the subset of the gateway's webhook payload the
// core needs; order_id ties it back to a PaymentRecord.
type PaymentNotification struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
}

type PaymentService interface {
	CreateCheckout(ctx context.Context, user *types.User, courseID uuid.UUID, amount int64, courseName string) (*CheckoutResult, error)
	HandleNotification(ctx context.Context, notif PaymentNotification) error
}

type paymentService struct {
	db             *gorm.DB
	log            *logger.Logger
	snapClient     snap.Client
	paymentRepo    repos.PaymentRepo
	enrollmentRepo repos.EnrollmentRepo
}

func NewPaymentService(
	db *gorm.DB,
	log *logger.Logger,
	serverKey string,
	useProduction bool,
	paymentRepo repos.PaymentRepo,
	enrollmentRepo repos.EnrollmentRepo,
) PaymentService {
	env := midtrans.Sandbox
	if useProduction {
		env = midtrans.Production
	}
	var client snap.Client
	client.New(serverKey, env)

	return &paymentService{
		db:             db,
		log:            log.With("service", "PaymentService"),
		snapClient:     client,
		paymentRepo:    paymentRepo,
		enrollmentRepo: enrollmentRepo,
	}
}

func (ps *paymentService) CreateCheckout(ctx context.Context, user *types.User, courseID uuid.UUID, amount int64, courseName string) (*CheckoutResult, error) {
	if user == nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthenticated", fmt.Errorf("user required"))
	}
	if amount <= 0 {
		return nil, apierr.New(http.StatusBadRequest, "invalid_amount", fmt.Errorf("amount must be positive"))
	}

	enrollment, err := ps.enrollmentRepo.GetByUserAndCourse(ctx, nil, user.ID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if enrollment != nil && enrollment.HasAccess {
		return nil, apierr.New(http.StatusConflict, "already_enrolled", fmt.Errorf("user already has course access"))
	}

	orderID := fmt.Sprintf("course-%s-%s-%d", courseID.String(), user.ID.String(), time.Now().Unix())

	record := &types.PaymentRecord{
		ID:       uuid.New(),
		UserID:   user.ID,
		CourseID: courseID,
		OrderID:  orderID,
		Amount:   amount,
		Status:   types.PaymentStatusPending,
		Provider: "midtrans",
	}
	if err := ps.paymentRepo.Create(ctx, nil, record); err != nil {
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: user.FirstName,
			LName: user.LastName,
			Email: user.Email,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    courseID.String(),
				Price: amount,
				Qty:   1,
				Name:  courseName,
			},
		},
	}

	resp, snapErr := ps.snapClient.CreateTransaction(req)
	if snapErr != nil {
		return nil, fmt.Errorf("failed to create snap transaction: %w", snapErr)
	}

	ps.log.Info("Checkout created", "order_id", orderID, "user_id", user.ID, "course_id", courseID)
	return &CheckoutResult{
		OrderID:     orderID,
		SnapToken:   resp.Token,
		RedirectURL: resp.RedirectURL,
	}, nil
}

// HandleNotification applies the gateway's webhook. Settled payments flip
// the record to paid and grant course access in the same transaction;
// repeated notifications for an already-paid order are no-ops.
func (ps *paymentService) HandleNotification(ctx context.Context, notif PaymentNotification) error {
	record, err := ps.paymentRepo.GetByOrderID(ctx, nil, notif.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load payment record: %w", err)
	}
	if record == nil {
		return apierr.New(http.StatusNotFound, "order_not_found", fmt.Errorf("unknown order %q", notif.OrderID))
	}
	if record.Status == types.PaymentStatusPaid {
		return nil
	}

	switch notif.TransactionStatus {
	case "capture", "settlement":
		if notif.FraudStatus == "challenge" || notif.FraudStatus == "deny" {
			ps.log.Warn("Payment flagged by fraud check", "order_id", notif.OrderID, "fraud_status", notif.FraudStatus)
			return ps.paymentRepo.UpdateStatus(ctx, nil, notif.OrderID, types.PaymentStatusFailed)
		}
		return ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := ps.paymentRepo.UpdateStatus(ctx, tx, notif.OrderID, types.PaymentStatusPaid); err != nil {
				return fmt.Errorf("failed to mark payment paid: %w", err)
			}
			if _, err := ps.enrollmentRepo.GrantAccess(ctx, tx, record.UserID, record.CourseID); err != nil {
				return fmt.Errorf("failed to grant course access: %w", err)
			}
			ps.log.Info("Payment settled, access granted", "order_id", notif.OrderID, "user_id", record.UserID, "course_id", record.CourseID)
			return nil
		})
	case "deny", "cancel":
		return ps.paymentRepo.UpdateStatus(ctx, nil, notif.OrderID, types.PaymentStatusFailed)
	case "expire":
		return ps.paymentRepo.UpdateStatus(ctx, nil, notif.OrderID, types.PaymentStatusExpired)
	default:
		// pending etc: leave the record as-is.
		return nil
	}
}
