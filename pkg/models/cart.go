package models

import "time"

// Cart is kept for the lifetime of the user; checkout only deletes its items.
type Cart struct {
	ID        string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"user_id"`
	Items     []CartItem `gorm:"foreignKey:CartID" json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Cart) TableName() string {
	return "carts"
}

type CartItem struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CartID    string    `gorm:"type:varchar(36);not null;index" json:"cart_id"`
	ProductID string    `gorm:"type:varchar(36);not null" json:"product_id"`
	Product   Product   `json:"product"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{}, &PasswordResetToken{}, &Category{}, &Product{}, &Cart{}, &CartItem{}, &Order{}, &OrderItem{}, &Payment{},
	}
}
