package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/kursadbilgin/order-relay/internal/domain"
	"github.com/kursadbilgin/order-relay/internal/repository"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_notification_jobs",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.JobModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_tenant_dedup_key ON notification_jobs (tenant_id, dedup_key)`,
					`CREATE INDEX IF NOT EXISTS idx_jobs_tenant_status_created ON notification_jobs (tenant_id, status, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_jobs_batch_id ON notification_jobs (batch_id) WHERE batch_id IS NOT NULL`,
					`CREATE INDEX IF NOT EXISTS idx_jobs_retry ON notification_jobs (next_retry_at) WHERE status = 'PENDING' AND next_retry_at IS NOT NULL`,
					`CREATE INDEX IF NOT EXISTS idx_jobs_scheduled_due ON notification_jobs (scheduled_at) WHERE status = 'PENDING' AND scheduled_at IS NOT NULL`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.JobModel{})
			},
		},
		{
			ID: "000002_create_dispatch_attempts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.DispatchAttemptModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_job_id ON dispatch_attempts (job_id)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.DispatchAttemptModel{})
			},
		},
		{
			ID: "000003_create_batches",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.BatchModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.BatchModel{})
			},
		},
		{
			ID: "000004_create_email_messages",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.EmailMessageModel{}, &repository.EmailAttachmentModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_tenant_message_id ON email_messages (tenant_id, message_id)`,
					`CREATE INDEX IF NOT EXISTS idx_messages_tenant_received ON email_messages (tenant_id, received_at)`,
					`CREATE INDEX IF NOT EXISTS idx_messages_tenant_status ON email_messages (tenant_id, status)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					&repository.EmailAttachmentModel{},
					&repository.EmailMessageModel{},
				)
			},
		},
		{
			ID: "000005_create_settings_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(
					&domain.Partner{},
					&domain.DeliveryRule{},
					&domain.Holiday{},
					&domain.MessageTemplate{},
					&domain.MailboxSettings{},
					&domain.KeywordConfig{},
					&domain.ChannelRoute{},
				); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_partners_tenant_email ON partners (tenant_id, contact_email)`,
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_rules_tenant_region ON delivery_rules (tenant_id, region) WHERE active`,
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_tenant_name ON message_templates (tenant_id, name)`,
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_routes_tenant_channel ON channel_routes (tenant_id, channel)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					&domain.ChannelRoute{},
					&domain.KeywordConfig{},
					&domain.MailboxSettings{},
					&domain.MessageTemplate{},
					&domain.Holiday{},
					&domain.DeliveryRule{},
					&domain.Partner{},
				)
			},
		},
	})

	return m.Migrate()
}
