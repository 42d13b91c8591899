package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
	PaymentStatusExpired = "expired"
)

// PaymentRecord is checkout bookkeeping for course enrollment. OrderID is
// what the gateway echoes back in its notification webhook.
type PaymentRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	OrderID   string    `gorm:"column:order_id;uniqueIndex;not null" json:"order_id"`
	Amount    int64     `gorm:"column:amount;not null" json:"amount"`
	Status    string    `gorm:"column:status;not null;default:'pending';index" json:"status"`
	Provider  string    `gorm:"column:provider;not null;default:'midtrans'" json:"provider"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (PaymentRecord) TableName() string { return "payment_record" }
