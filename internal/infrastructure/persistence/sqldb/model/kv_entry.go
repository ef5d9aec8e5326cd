package model

// KVEntry backs the SQL cache. ExpiresAt is unix millis; nil never expires.
type KVEntry struct {
	Key       string `gorm:"column:key;type:varchar(255);primaryKey"`
	Value     string `gorm:"column:value;type:text;not null"`
	ExpiresAt *int64 `gorm:"column:expires_at;index"`
	UpdatedAt int64  `gorm:"column:updated_at;not null"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
