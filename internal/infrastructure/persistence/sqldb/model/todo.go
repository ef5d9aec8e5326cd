package model

type Todo struct {
	ID          string  `gorm:"column:id;type:varchar(36);primaryKey"`
	Title       string  `gorm:"column:title;type:text;not null"`
	Description *string `gorm:"column:description;type:text"`
	Completed   bool    `gorm:"column:completed;not null;default:false"`
}

func (Todo) TableName() string {
	return "todos"
}
