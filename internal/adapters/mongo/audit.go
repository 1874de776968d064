package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
	"github.com/robertarktes/camp-registrations-and-payments/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	Actor     string    `bson:"actor"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action, actor string, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Actor:     actor,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.WithError(err).Error("failed to insert audit log")
		return err
	}
	return nil
}

func (a *AuditLogger) LogReservation(ctx context.Context, res domain.Reservation) error {
	data := map[string]interface{}{
		"reservation_id": res.ID,
		"camp_id":        res.CampID,
		"expires_at":     res.ExpiresAt.Format(time.RFC3339),
	}
	return a.LogEvent(ctx, "reservation.created", res.HolderEmail, data)
}

func (a *AuditLogger) LogSettlement(ctx context.Context, reg domain.Registration) error {
	data := map[string]interface{}{
		"registration_id": reg.ID,
		"camp_id":         reg.CampID,
		"amount_cents":    reg.AmountCents,
		"payment_ref":     reg.PaymentRef,
	}
	return a.LogEvent(ctx, "registration.settled", reg.HolderEmail, data)
}

func (a *AuditLogger) LogMismatch(ctx context.Context, intent domain.PaymentIntent, holder string) error {
	data := map[string]interface{}{
		"intent_id":      intent.ID,
		"reservation_id": intent.ReservationID,
		"camp_id":        intent.CampID,
		"amount_cents":   intent.AmountCents,
	}
	return a.LogEvent(ctx, "payment.mismatch", holder, data)
}
