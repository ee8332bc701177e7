package models

import (
	"log"

	"github.com/earnflowhq/earnflow_backend/config"
	"gorm.io/gorm"
)

func MigrateTable() {
	if err := Migrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&CommissionEntry{},
		&PayoutBatch{},
		&PayoutEventRecord{},
	)
}
