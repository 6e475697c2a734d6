// Package notification is the boundary to the messaging gateway. The real
// SMS/WhatsApp transport lives outside this system; the shipped dispatcher
// records an auditable row per message and hands back the SID the rest of
// the platform correlates delivery callbacks with.
package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	regdomain "github.com/reliefops/disburse/internal/registration/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Message statuses.
const (
	StatusQueued    = "queued"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Template keys used by the payment flows.
const (
	TemplateVisaDebitCardCreated = "visaDebitCardCreated"
	TemplateVisaLoad             = "visaLoad"
	TemplateVoucherPayment       = "whatsappPayment"
	TemplateVoucherReminder      = "whatsappReminder"
)

// Message is one outbound message audit row. Params keeps the template
// substitutions so a failed send can be replayed by hand.
type Message struct {
	ID             snowflake.ID   `gorm:"primaryKey;column:id"`
	RegistrationID snowflake.ID   `gorm:"column:registration_id;index"`
	ReferenceID    string         `gorm:"column:reference_id;index"`
	MessageSID     string         `gorm:"column:message_sid;uniqueIndex"`
	TemplateKey    string         `gorm:"column:template_key"`
	To             string         `gorm:"column:to_address"`
	Language       string         `gorm:"column:language"`
	Status         string         `gorm:"column:status"`
	Params         datatypes.JSON `gorm:"column:params"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

func (Message) TableName() string { return "notification_messages" }

// OperatorAlertRow persists alerts that need human follow-up.
type OperatorAlertRow struct {
	ID        snowflake.ID `gorm:"primaryKey;column:id"`
	Subject   string       `gorm:"column:subject"`
	Body      string       `gorm:"column:body"`
	CreatedAt time.Time    `gorm:"column:created_at"`
}

func (OperatorAlertRow) TableName() string { return "operator_alerts" }

// Dispatcher enqueues templated messages and operator alerts.
type Dispatcher interface {
	EnqueueMessage(ctx context.Context, registration *regdomain.Registration, templateKey string, dynamicParams []string) (messageSID string, err error)
	MarkDelivery(ctx context.Context, messageSID, status string) error
	OperatorAlert(ctx context.Context, subject, body string) error
}

type dispatcher struct {
	db   *gorm.DB
	node *snowflake.Node
	log  *zap.Logger
}

func NewDispatcher(db *gorm.DB, node *snowflake.Node, log *zap.Logger) Dispatcher {
	return &dispatcher{
		db:   db,
		node: node,
		log:  log.Named("notification.dispatcher"),
	}
}

func (d *dispatcher) EnqueueMessage(ctx context.Context, registration *regdomain.Registration, templateKey string, dynamicParams []string) (string, error) {
	now := time.Now().UTC()
	params, err := json.Marshal(dynamicParams)
	if err != nil {
		return "", err
	}
	msg := &Message{
		ID:             d.node.Generate(),
		RegistrationID: registration.ID,
		ReferenceID:    registration.ReferenceID,
		MessageSID:     uuid.NewString(),
		TemplateKey:    templateKey,
		To:             registration.PaymentAddress,
		Language:       registration.PreferredLanguage,
		Status:         StatusQueued,
		Params:         datatypes.JSON(params),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := d.db.WithContext(ctx).Create(msg).Error; err != nil {
		return "", err
	}
	d.log.Info("message enqueued",
		zap.String("reference_id", registration.ReferenceID),
		zap.String("template", templateKey),
		zap.String("message_sid", msg.MessageSID),
		zap.Int("params", len(dynamicParams)),
	)
	return msg.MessageSID, nil
}

func (d *dispatcher) MarkDelivery(ctx context.Context, messageSID, status string) error {
	return d.db.WithContext(ctx).
		Model(&Message{}).
		Where("message_sid = ?", messageSID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (d *dispatcher) OperatorAlert(ctx context.Context, subject, body string) error {
	row := &OperatorAlertRow{
		ID:        d.node.Generate(),
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.db.WithContext(ctx).Create(row).Error; err != nil {
		d.log.Error("operator alert could not be persisted",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return err
	}
	d.log.Error("operator alert",
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}

var Module = fx.Module("notification",
	fx.Provide(NewDispatcher),
)
