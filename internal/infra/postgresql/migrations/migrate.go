package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/studentdesk/backend/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_email_messages",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.EmailModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_email_messages_status_id ON email_messages (status, id)`,
					`CREATE INDEX IF NOT EXISTS idx_email_messages_recipient ON email_messages (recipient)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.EmailModel{})
			},
		},
		{
			ID: "000002_create_report_run_logs",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.RunLogModel{}); err != nil {
					return err
				}
				// One SENT row per (job, date) is the idempotency contract.
				return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_run_logs_sent_once ON report_run_logs (job_name, run_date) WHERE status = 'SENT'`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.RunLogModel{})
			},
		},
		{
			ID: "000003_create_report_schedule",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.ScheduleModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.ScheduleModel{})
			},
		},
		{
			ID: "000004_create_students",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.StudentModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_students_email ON students (email)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.StudentModel{})
			},
		},
		{
			ID: "000005_create_broadcast_templates",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.BroadcastTemplateModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.BroadcastTemplateModel{})
			},
		},
		{
			ID: "000006_create_notifications",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.NotificationModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.NotificationModel{})
			},
		},
	})

	return m.Migrate()
}
