package payments

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
)

// AutoMigrate creates the payment tables through GORM. Postgres deployments use
// the goose migrations; this path serves the sqlite driver and tests.
func AutoMigrate(db *gorm.DB) error {
	for _, kind := range enums.PaymentKinds() {
		if err := db.Table(kind.PaymentsTable()).AutoMigrate(&models.PaymentRecord{}); err != nil {
			return fmt.Errorf("migrate %s: %w", kind.PaymentsTable(), err)
		}
		if err := db.Table(kind.DependentsTable()).AutoMigrate(&models.DependentRecord{}); err != nil {
			return fmt.Errorf("migrate %s: %w", kind.DependentsTable(), err)
		}
	}
	if err := db.AutoMigrate(&models.PlatformCommission{}, &models.OutboxEvent{}, &models.OutboxDLQ{}); err != nil {
		return fmt.Errorf("migrate commissions and outbox: %w", err)
	}
	return nil
}
